package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one forward-only, idempotent schema step, applied in a
// transaction and recorded in schema_version.
type migration struct {
	version     int
	description string
	apply       func(tx *sql.Tx) error
}

// migrations lists every step in order. The teacher's list also carried
// query_log token columns, multi-language columns and a chunk_images table;
// none of those apply to this schema (the query_log token breakdown and
// multi-language support were dropped along with the rest of the graph
// subsystem, see DESIGN.md), so this list is just the base schema.
var migrations = []migration{
	{
		version:     1,
		description: "base schema: documents, chunks, collections, query_logs",
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(schemaSQL)
			return err
		},
	},
}

// Migrate applies any pending migrations, tracked via a schema_version table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("store: creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("store: reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: beginning migration tx: %w", err)
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: applying migration %d (%s): %w", m.version, m.description, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: committing migration %d: %w", m.version, err)
		}
	}
	return nil
}
