// iotmon watches the availability of a fixed set of network devices.
//
// Each cycle it pings every configured device, debounces failures through a
// per-device suppress count, records state transitions in SQLite and sends
// a notification for every confirmed change over email, Telegram and MQTT.
//
// Usage:
//
//	iotmon [-config path] [-debug n] [-version]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/iotmon/migrations"

	"github.com/nerrad567/iotmon/internal/api"
	"github.com/nerrad567/iotmon/internal/device"
	"github.com/nerrad567/iotmon/internal/infrastructure/config"
	"github.com/nerrad567/iotmon/internal/infrastructure/database"
	"github.com/nerrad567/iotmon/internal/infrastructure/influxdb"
	"github.com/nerrad567/iotmon/internal/infrastructure/lock"
	"github.com/nerrad567/iotmon/internal/infrastructure/logging"
	"github.com/nerrad567/iotmon/internal/infrastructure/mqtt"
	"github.com/nerrad567/iotmon/internal/monitor"
	"github.com/nerrad567/iotmon/internal/notify"
	"github.com/nerrad567/iotmon/internal/probe"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath  = "configs/iotmon.yaml"
	configPathEnv      = "IOTMON_CONFIG"
	dotenvPath         = ".env"
	healthCheckTimeout = 5 * time.Second
)

// options are the command line settings.
type options struct {
	configPath  string
	debug       int
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("iotmon %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses args. Usage and parse errors are written to output.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	flags := flag.NewFlagSet("iotmon", flag.ContinueOnError)
	flags.SetOutput(output)
	flags.StringVar(&opts.configPath, "config", "", "path to the configuration file (default $"+configPathEnv+" or "+defaultConfigPath+")")
	flags.IntVar(&opts.debug, "debug", logging.DebugUnset, "diagnostics: 0 off, 1 stderr, 2 log file, 9 stderr at debug level")
	flags.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if flags.NArg() > 0 {
		fmt.Fprintf(output, "unexpected arguments: %v\n", flags.Args())
		flags.Usage()
		return options{}, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	return opts, nil
}

// getConfigPath returns the flag value, then $IOTMON_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadDotenv loads secrets from .env into the environment. A missing file
// is not an error; variables already set are not overwritten.
func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, opts options) error {
	if err := loadDotenv(dotenvPath); err != nil {
		return err
	}

	configPath := getConfigPath(opts.configPath)
	// Read before loading so an edit in between is picked up by the monitor.
	configModTime, err := config.ModTime(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Logging = logging.ApplyDebugSwitch(cfg.Logging, opts.debug)

	log, err := logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // nothing left to log to

	log.Info("starting iotmon",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	// Single instance
	fileLock, err := lock.Acquire(cfg.Lock.Path)
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	defer func() {
		if releaseErr := fileLock.Release(); releaseErr != nil {
			log.Error("error releasing lock", "error", releaseErr)
		}
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	devices := device.NewSQLiteRepository(db.DB)
	transitions := device.NewSQLiteTransitionLog(db.DB)

	mqttClient := connectMQTT(cfg.Notify.MQTT, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient := connectInfluxDB(cfg.InfluxDB, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Observers see every committed probe and transition.
	var observers []monitor.Observer
	if influxClient != nil {
		observers = append(observers, monitor.NewInfluxObserver(influxClient))
	}
	var publisher notify.Publisher
	if mqttClient != nil {
		publisher = mqttClient
		observers = append(observers, notify.NewMQTTNotifier(mqttClient))
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(log.With("component", "websocket"))
		observers = append(observers, hub)
	}

	mon, err := monitor.New(cfg, monitor.Options{
		ConfigPath:    configPath,
		ConfigModTime: configModTime,
		Devices:       devices,
		Transitions:   transitions,
		Build:         newBuilder(publisher, log),
		Observers:     observers,
		Logger:        log.With("component", "monitor"),
	})
	if err != nil {
		return fmt.Errorf("creating monitor: %w", err)
	}

	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			Logger:      log.With("component", "api"),
			Devices:     devices,
			Transitions: transitions,
			Status:      mon,
			Hub:         hub,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	healthCheck(ctx, log, db, mqttClient, influxClient)

	if runErr := mon.Run(ctx); runErr != nil {
		return fmt.Errorf("monitor: %w", runErr)
	}

	log.Info("shutdown signal received, stopping services")
	return nil
}

// newBuilder returns the monitor.Builder used at startup and on every
// configuration reload. publisher is nil when MQTT is unavailable.
func newBuilder(publisher notify.Publisher, log *logging.Logger) monitor.Builder {
	return func(cfg *config.Config) (probe.Prober, *notify.Dispatcher, error) {
		prober, err := probe.New(cfg.Probe)
		if err != nil {
			return nil, nil, err
		}

		if cfg.Notify.MQTT.Enabled && publisher == nil {
			log.Warn("MQTT notifications enabled but broker not connected; restart to enable")
		}
		notifiers, err := notify.FromConfig(cfg.Notify, publisher)
		if err != nil {
			return nil, nil, err
		}

		dispatcher := notify.NewDispatcher(notifiers...)
		dispatcher.SetTimeout(cfg.Notify.Timeout)
		dispatcher.SetLogger(log.With("component", "notify"))
		log.Info("notification channels configured", "channels", dispatcher.Channels())
		return prober, dispatcher, nil
	}
}

// connectMQTT connects to the broker when MQTT notifications are enabled.
// A broker that is down at startup only disables the channel.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) *mqtt.Client {
	if !cfg.Enabled {
		return nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		log.Warn("MQTT unavailable, channel disabled",
			"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
			"error", err,
		)
		return nil
	}
	client.SetLogger(log.With("component", "mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client
}

// connectInfluxDB connects to InfluxDB when enabled. Failure disables
// metrics export and is otherwise ignored.
func connectInfluxDB(cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, metrics export disabled", "url", cfg.URL, "error", err)
		return nil
	}
	client.SetOnError(func(writeErr error) {
		log.Warn("InfluxDB write failed", "error", writeErr)
	})
	log.Info("InfluxDB connected", "url", cfg.URL, "bucket", cfg.Bucket)
	return client
}

// healthCheck logs the state of each dependency before the first cycle.
func healthCheck(ctx context.Context, log *logging.Logger, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		log.Error("database health check failed", "error", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			log.Warn("MQTT health check failed", "error", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			log.Warn("InfluxDB health check failed", "error", err)
		}
	}
}
