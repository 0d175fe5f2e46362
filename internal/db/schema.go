package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    username   TEXT NOT NULL DEFAULT '',
    expires_at INTEGER NOT NULL,
    revoked_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS datasets (
    path       TEXT PRIMARY KEY,
    content    BLOB NOT NULL,
    version    TEXT NOT NULL,
    message    TEXT,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS movements (
    id          TEXT PRIMARY KEY,
    lot_number  TEXT NOT NULL,
    test_name   TEXT NOT NULL,
    quantity    INTEGER NOT NULL,
    expiry_date TEXT NOT NULL,
    from_status TEXT NOT NULL CHECK (from_status IN ('active', 'expired', 'deleted')),
    to_status   TEXT NOT NULL CHECK (to_status IN ('active', 'expired', 'deleted')),
    actor       TEXT NOT NULL,
    moved_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_movements_moved_at ON movements(moved_at);

CREATE TABLE IF NOT EXISTS alerts (
    id          INTEGER PRIMARY KEY,
    lot_number  TEXT NOT NULL,
    test_name   TEXT NOT NULL,
    expiry_date TEXT NOT NULL,
    days_left   INTEGER NOT NULL,
    destination TEXT NOT NULL,
    outcome     TEXT NOT NULL CHECK (outcome IN ('delivered', 'skipped', 'failed')),
    reason      TEXT,
    sent_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: movement log lookups by natural key.
	`CREATE INDEX IF NOT EXISTS idx_movements_key ON movements(lot_number, test_name)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
