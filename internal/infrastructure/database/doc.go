// Package database opens the SQLite file that stores device state history
// and applies schema migrations to it.
//
// Device identities and profiles live in YAML, not here; losing the
// database loses history only.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx, migrations.FS)
//
// Migrations are additive. Each NNN_name.up.sql has a matching .down.sql.
package database
