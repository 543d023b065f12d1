// Package database provides SQLite connectivity for iotmon.
//
// This package manages:
//   - The connection, with WAL mode and a busy timeout
//   - Schema migrations embedded in the binary
//   - The monitor_meta key/value table (config mtime, last purge date)
//
// All queries use parameterised statements and the database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each version ships an .up.sql and a .down.sql
// named YYYYMMDD_HHMMSS_description.
package database
