package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/iotmon/internal/infrastructure/config"
)

// Output destinations understood by New.
const (
	OutputStdout  = "stdout"
	OutputStderr  = "stderr"
	OutputFile    = "file"
	OutputDiscard = "discard"
)

// Debug switch values accepted on the command line.
const (
	DebugUnset  = -1 // use the logging section of the config file
	DebugOff    = 0  // discard all diagnostics
	DebugStderr = 1  // diagnostics to stderr
	DebugFile   = 2  // diagnostics to the configured log file
	DebugTrace  = 9  // stderr at debug level
)

const (
	logDirPermissions  = 0750
	logFilePermissions = 0640
)

// Logger wraps slog.Logger with iotmon-specific functionality.
//
// It provides structured logging with default fields and level-based filtering.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination (stdout, stderr, file, discard)
//
// Parameters:
//   - cfg: Logging configuration from iotmon.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
//   - error: If the log file cannot be opened
func New(cfg config.LoggingConfig, version string) (*Logger, error) {
	output, closer, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "iotmon"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
		closer: closer,
	}, nil
}

// openOutput resolves the configured destination to a writer.
func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(cfg.Output) {
	case OutputStderr:
		return os.Stderr, nil, nil
	case OutputDiscard:
		return io.Discard, nil, nil
	case OutputFile:
		path := cfg.File.Path
		if path == "" {
			return nil, nil, fmt.Errorf("logging.file.path is required for file output")
		}
		if err := os.MkdirAll(filepath.Dir(path), logDirPermissions); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ApplyDebugSwitch overlays the -debug command line switch on the logging config.
//
//	-1  config file decides
//	 0  off
//	 1  stderr
//	 2  log file
//	 9  stderr, debug level
//
// Unknown values behave like 1.
func ApplyDebugSwitch(cfg config.LoggingConfig, debug int) config.LoggingConfig {
	switch debug {
	case DebugUnset:
		return cfg
	case DebugOff:
		cfg.Output = OutputDiscard
	case DebugFile:
		cfg.Output = OutputFile
	case DebugTrace:
		cfg.Output = OutputStderr
		cfg.Level = "debug"
		cfg.Format = "text"
	default:
		cfg.Output = OutputStderr
		cfg.Format = "text"
	}
	return cfg
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	probeLogger := logger.With("component", "probe")
//	probeLogger.Info("started") // Includes component=probe
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Close releases the log file, if any. Child loggers created with With
// share the parent's file and must not be closed separately.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stderr in text format at info level.
// It should only be used during early startup before config is available.
func Default() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})).
			With(slog.String("service", "iotmon")),
	}
}
