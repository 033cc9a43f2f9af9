// Package database opens the bridge's SQLite database and applies the
// embedded schema migrations.
//
// The database currently holds a single table, scene_config, which backs
// the "sqlite" scene store. WAL mode and a busy timeout are configured
// through the connection string.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each file pair is named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql.
package database
