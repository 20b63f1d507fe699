// Package database owns the SQLite connection behind the camera
// catalogue, device groups, and user accounts.
//
// It opens the database in WAL mode so API reads proceed while the
// lifecycle service writes, pins the pool to a single connection to
// match SQLite's one-writer model, and applies embedded schema
// migrations at startup:
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
// The migration files themselves live in the top-level migrations
// package, which assigns MigrationsFS from its //go:embed directive.
// All queries throughout the repo use parameterised statements, and
// the database file is restricted to the service account (0600).
package database
