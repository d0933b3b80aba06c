package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "round history and topic ledger",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS rounds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id TEXT NOT NULL,
    round_index INTEGER NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('published', 'failed')),
    prompt TEXT NOT NULL DEFAULT '',
    title TEXT,
    description TEXT,
    tags TEXT,
    article_date TEXT,
    name TEXT,
    article_path TEXT,
    image_path TEXT,
    cover_url TEXT,
    base_ref TEXT,
    ref TEXT,
    error TEXT,
    document TEXT,
    cover BLOB,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(batch_id, round_index)
);

CREATE TABLE IF NOT EXISTS used_topics (
    url TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    used_at TEXT DEFAULT (datetime('now'))
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "round source urls and lookup indexes",
		Up: func(tx *sql.Tx) error {
			var n int
			if err := tx.QueryRow(
				"SELECT COUNT(*) FROM pragma_table_info('rounds') WHERE name = 'source_url'",
			).Scan(&n); err != nil {
				return err
			}
			if n == 0 {
				if _, err := tx.Exec("ALTER TABLE rounds ADD COLUMN source_url TEXT"); err != nil {
					return err
				}
			}
			_, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_rounds_batch ON rounds(batch_id);
CREATE INDEX IF NOT EXISTS idx_rounds_status ON rounds(status);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
