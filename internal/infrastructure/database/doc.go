// Package database provides SQLite connectivity for the bridge.
//
// The database backs the sqlite context store (flow, global and node
// scoped values, including persisted item directories). Schema changes
// are plain *.up.sql files embedded by the migrations package and applied
// in version order by Migrate.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
