// Package catalog persists every discovered acquisition in a per-project
// sqlite database. The state store answers "is this step done"; the catalog
// answers "which scenes were considered, which were selected, and where
// their products landed" so operators can audit a run without re-querying
// the remote archive.
package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the catalog database handle.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the catalog at path and applies pending
// schema migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c := &DB{db}
	if err := c.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}
