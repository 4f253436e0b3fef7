// Package database provides SQLite storage for the media server.
//
// The database holds server settings that must survive a restart, most
// importantly the device UDN. The media catalog is not persisted.
//
// This package manages:
//   - Database connection with WAL mode
//   - Schema migrations embedded in the binary
//   - The settings key/value store
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
//	store := database.NewSettings(db)
//
// Migrations are additive: each version has an .up.sql and a .down.sql file.
package database
