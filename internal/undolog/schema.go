package undolog

import (
	"database/sql"
	"fmt"
)

const actionsTableDDL = `
CREATE TABLE IF NOT EXISTS actions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    op TEXT NOT NULL,
    original_path TEXT NOT NULL,
    dest_path TEXT NOT NULL,
    state TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    finalized_at INTEGER
);
`

const actionsOriginalIndexDDL = `CREATE INDEX IF NOT EXISTS idx_actions_original ON actions(original_path);`
const actionsStateIndexDDL = `CREATE INDEX IF NOT EXISTS idx_actions_state ON actions(state);`

// initSchema creates the log table and its indexes.
func initSchema(db *sql.DB) error {
	ddls := []string{
		actionsTableDDL,
		actionsOriginalIndexDDL,
		actionsStateIndexDDL,
	}
	for _, ddl := range ddls {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}
	return nil
}

// applyPragmas configures SQLite for durable appends. synchronous=FULL
// because the pre-image write must be on disk before the filesystem
// mutation it describes; WAL keeps appends crash-safe and lets a
// trailing incomplete transaction be discarded rather than trusted.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}
