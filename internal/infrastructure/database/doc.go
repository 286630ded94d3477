// Package database provides SQLite connectivity and embedded schema
// migrations.
//
// It backs the "values" device adapter, which keeps its current parameter
// values in a local file so they survive restarts.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to 0600
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
