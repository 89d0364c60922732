package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	// Pragmas to improve reliability
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

// Timestamps are stored as integer unix nanoseconds so range comparisons
// stay exact regardless of formatting.

const schemaWatermarks = `
CREATE TABLE IF NOT EXISTS watermarks (
    plant_id INTEGER NOT NULL,
    machine_id INTEGER NOT NULL,
    last_processed INTEGER NOT NULL,
    PRIMARY KEY (plant_id, machine_id)
);
`

const schemaKPIRecords = `
CREATE TABLE IF NOT EXISTS kpi_records (
    plant_id INTEGER NOT NULL,
    machine_id INTEGER NOT NULL,
    uptime_min REAL NOT NULL DEFAULT 0,
    downtime_min REAL NOT NULL DEFAULT 0,
    num_alerts INTEGER NOT NULL DEFAULT 0,
    failure_rate REAL NOT NULL DEFAULT 0,
    last_processed INTEGER NOT NULL,
    PRIMARY KEY (plant_id, machine_id)
);
`

const schemaNotifications = `
CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    machine_id INTEGER NOT NULL,
    plant_id INTEGER NOT NULL,
    parameter TEXT NOT NULL,
    threshold REAL NOT NULL,
    timestamp INTEGER NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'unresolved'
);
`

const schemaNotificationsIndex = `
CREATE INDEX IF NOT EXISTS idx_notifications_key_time
ON notifications (plant_id, machine_id, timestamp);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaWatermarks,
		schemaKPIRecords,
		schemaNotifications,
		schemaNotificationsIndex,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
