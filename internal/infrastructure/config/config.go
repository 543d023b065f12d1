package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for iotmon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Probe    ProbeConfig    `yaml:"probe"`
	Devices  DeviceList     `yaml:"devices"`
	Database DatabaseConfig `yaml:"database"`
	Lock     LockConfig     `yaml:"lock"`
	Logging  LoggingConfig  `yaml:"logging"`
	Notify   NotifyConfig   `yaml:"notify"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
}

// MonitorConfig contains the monitor loop tunables.
type MonitorConfig struct {
	// PingCycle is the sleep between monitor cycles, in seconds.
	PingCycle int `yaml:"ping_cycle"`

	// PurgeAfterDays is the transition log retention horizon. 0 disables purging.
	PurgeAfterDays int `yaml:"purge_after_days"`

	// DefaultSuppressCount applies to devices without their own suppress_count.
	DefaultSuppressCount int `yaml:"default_suppress_count"`

	// Workers bounds the number of probes in flight during a cycle.
	Workers int `yaml:"workers"`

	// NotifyUnconfirmedDown enables DOWN notifications for devices that have
	// never been observed UP since they were registered.
	NotifyUnconfirmedDown bool `yaml:"notify_unconfirmed_down"`
}

// ProbeConfig contains reachability probe settings.
type ProbeConfig struct {
	// Method is "icmp" (native echo requests) or "exec" (system ping binary).
	Method string `yaml:"method"`

	// Timeout bounds each echo attempt; a probe takes at most Count attempts.
	Timeout time.Duration `yaml:"timeout"`

	// Count is the number of echo attempts per probe.
	Count int `yaml:"count"`

	// Privileged selects raw ICMP sockets instead of unprivileged UDP-ICMP.
	Privileged bool `yaml:"privileged"`

	// PingBinary is the executable used by the exec method.
	PingBinary string `yaml:"ping_binary"`
}

// DeviceConfig describes a single monitored device.
type DeviceConfig struct {
	Address       string `yaml:"address"`
	Description   string `yaml:"description"`
	SuppressCount *int   `yaml:"suppress_count,omitempty"`
}

// DeviceList is the configured device set.
//
// It accepts either a list of DeviceConfig entries or a plain mapping of
// address to description:
//
//	devices:
//	  192.168.1.20: Garage camera
type DeviceList []DeviceConfig

// UnmarshalYAML implements yaml.Unmarshaler for both device list forms.
func (l *DeviceList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []DeviceConfig
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		list := make([]DeviceConfig, 0, len(m))
		for addr, descr := range m {
			list = append(list, DeviceConfig{Address: addr, Description: descr})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Address < list[j].Address })
		*l = list
		return nil
	default:
		return fmt.Errorf("devices must be a list or a mapping, line %d", node.Line)
	}
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LockConfig contains the single-instance lock settings.
type LockConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig groups the notification channels. Any number may be enabled.
type NotifyConfig struct {
	// Timeout bounds each channel's delivery of one message.
	Timeout time.Duration `yaml:"timeout"`

	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

// EmailConfig contains SMTP notification settings.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// TelegramConfig contains Telegram bot notification settings.
type TelegramConfig struct {
	Enabled bool    `yaml:"enabled"`
	Token   string  `yaml:"token"`
	ChatIDs []int64 `yaml:"chat_ids"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the status API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: IOTMON_SECTION_KEY
// For example: IOTMON_DATABASE_PATH, IOTMON_SMTP_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ModTime returns the modification time of the configuration file.
// The monitor compares it between cycles to detect edits.
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat config file: %w", err)
	}
	return info.ModTime(), nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			PingCycle:            60,
			PurgeAfterDays:       30,
			DefaultSuppressCount: 2,
			Workers:              8,
		},
		Probe: ProbeConfig{
			Method:     "icmp",
			Timeout:    2 * time.Second,
			Count:      2,
			PingBinary: "ping",
		},
		Database: DatabaseConfig{
			Path:        "./data/iotmon.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Lock: LockConfig{
			Path: "./data/iotmon.lock",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path: "./logs/iotmon.log",
			},
		},
		Notify: NotifyConfig{
			Timeout: 30 * time.Second,
			Email: EmailConfig{
				SMTPHost: "smtp.gmail.com",
				SMTPPort: 587,
			},
			MQTT: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host:     "localhost",
					Port:     1883,
					ClientID: "iotmon",
				},
				QoS: 1,
				Reconnect: MQTTReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets belong here rather than in the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IOTMON_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("IOTMON_LOCK_PATH"); v != "" {
		cfg.Lock.Path = v
	}
	if v := os.Getenv("IOTMON_SMTP_PASSWORD"); v != "" {
		cfg.Notify.Email.Password = v
	}
	if v := os.Getenv("IOTMON_TELEGRAM_TOKEN"); v != "" {
		cfg.Notify.Telegram.Token = v
	}
	if v := os.Getenv("IOTMON_MQTT_USERNAME"); v != "" {
		cfg.Notify.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IOTMON_MQTT_PASSWORD"); v != "" {
		cfg.Notify.MQTT.Auth.Password = v
	}
	if v := os.Getenv("IOTMON_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// normalise trims device fields and lower-cases enum-like settings.
func (c *Config) normalise() {
	c.Probe.Method = strings.ToLower(strings.TrimSpace(c.Probe.Method))
	for i := range c.Devices {
		d := &c.Devices[i]
		d.Address = strings.TrimSpace(d.Address)
		d.Description = strings.TrimSpace(d.Description)
		if d.Description == "" {
			d.Description = d.Address
		}
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected so an operator sees every mistake at once.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Monitor.PingCycle < 1 {
		errs = append(errs, "monitor.ping_cycle must be at least 1 second")
	}
	if c.Monitor.PurgeAfterDays < 0 {
		errs = append(errs, "monitor.purge_after_days cannot be negative")
	}
	if c.Monitor.DefaultSuppressCount < 0 {
		errs = append(errs, "monitor.default_suppress_count cannot be negative")
	}
	if c.Monitor.Workers < 1 {
		errs = append(errs, "monitor.workers must be at least 1")
	}

	switch c.Probe.Method {
	case "icmp", "exec":
	default:
		errs = append(errs, fmt.Sprintf("probe.method %q is not supported (use icmp or exec)", c.Probe.Method))
	}
	if c.Probe.Timeout <= 0 {
		errs = append(errs, "probe.timeout must be positive")
	}
	if c.Probe.Count < 1 {
		errs = append(errs, "probe.count must be at least 1")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "devices: at least one device is required")
	}
	seen := make(map[string]struct{}, len(c.Devices))
	for i, d := range c.Devices {
		if d.Address == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].address is required", i))
			continue
		}
		if _, dup := seen[d.Address]; dup {
			errs = append(errs, fmt.Sprintf("devices: duplicate address %q", d.Address))
		}
		seen[d.Address] = struct{}{}
		if strings.HasPrefix(d.Address, "-") || strings.ContainsAny(d.Address, " \t/") {
			errs = append(errs, fmt.Sprintf("devices[%d].address %q is not a hostname or IP", i, d.Address))
		}
		if d.SuppressCount != nil && *d.SuppressCount < 0 {
			errs = append(errs, fmt.Sprintf("devices[%d].suppress_count cannot be negative", i))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Lock.Path == "" {
		errs = append(errs, "lock.path is required")
	}

	errs = append(errs, c.Notify.validate()...)

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (n NotifyConfig) validate() []string {
	var errs []string

	if n.Timeout <= 0 {
		errs = append(errs, "notify.timeout must be positive")
	}

	if n.Email.Enabled {
		if n.Email.SMTPHost == "" {
			errs = append(errs, "notify.email.smtp_host is required")
		}
		if n.Email.SMTPPort < 1 || n.Email.SMTPPort > 65535 {
			errs = append(errs, "notify.email.smtp_port must be between 1 and 65535")
		}
		if len(n.Email.To) == 0 {
			errs = append(errs, "notify.email.to needs at least one recipient")
		}
	}

	if n.Telegram.Enabled {
		if n.Telegram.Token == "" {
			errs = append(errs, "notify.telegram.token is required (set IOTMON_TELEGRAM_TOKEN)")
		}
		if len(n.Telegram.ChatIDs) == 0 {
			errs = append(errs, "notify.telegram.chat_ids needs at least one chat")
		}
	}

	if n.MQTT.Enabled {
		if n.MQTT.Broker.Host == "" {
			errs = append(errs, "notify.mqtt.broker.host is required")
		}
		if n.MQTT.QoS < 0 || n.MQTT.QoS > 2 {
			errs = append(errs, "notify.mqtt.qos must be 0, 1, or 2")
		}
	}

	return errs
}

// SuppressCountFor returns the effective suppress count of a device.
func (c *Config) SuppressCountFor(d DeviceConfig) int {
	if d.SuppressCount != nil {
		return *d.SuppressCount
	}
	return c.Monitor.DefaultSuppressCount
}

// GetPingCycle returns the sleep between monitor cycles as a Duration.
func (c *Config) GetPingCycle() time.Duration {
	return time.Duration(c.Monitor.PingCycle) * time.Second
}

// GetPurgeHorizon returns the transition log retention as a Duration.
func (c *Config) GetPurgeHorizon() time.Duration {
	return time.Duration(c.Monitor.PurgeAfterDays) * 24 * time.Hour
}

// ReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
