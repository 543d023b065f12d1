// Package logging provides structured logging for iotmon.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for interactive debugging
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - stdout, stderr, append-only file, or discard destinations
//
// # Configuration
//
// Logging is configured via the logging section of iotmon.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file, discard
//	  file:
//	    path: "./logs/iotmon.log"
//
// The -debug command line switch overrides the destination, see ApplyDebugSwitch.
//
// # Security
//
// Never log SMTP passwords, bot tokens or broker credentials.
package logging
