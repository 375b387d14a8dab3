// Package index provides the SQLite-backed scene catalog.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS scenes (
	workspace_id     TEXT NOT NULL,
	id               TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	workspace_slug   TEXT NOT NULL DEFAULT '',
	access           TEXT NOT NULL DEFAULT 'owner',
	room_id          TEXT NOT NULL DEFAULT '',
	room_key         TEXT NOT NULL DEFAULT '',
	checksum         TEXT NOT NULL DEFAULT '',
	preview_checksum TEXT NOT NULL DEFAULT '',
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (workspace_id, id)
);

CREATE INDEX IF NOT EXISTS idx_scenes_updated ON scenes(workspace_id, updated_at);
`

// DB wraps a sql.DB with catalog-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
