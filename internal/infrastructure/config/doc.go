// Package config handles loading and validating iotmon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - SMTP passwords, bot tokens and broker credentials should be set via
//     environment variables (or a .env file) rather than the YAML file
//   - The config file should have restricted permissions (0600)
//
// Reload:
//
// The monitor polls ModTime once per cycle. When the modification time
// changes it calls Load again and, if the new file validates, rebuilds the
// device registry from it. An invalid file on reload leaves the running
// configuration in place.
//
// Usage:
//
//	cfg, err := config.Load("configs/iotmon.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GetPingCycle())
package config
