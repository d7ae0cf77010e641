package repository

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes a SQLite database
func NewSQLiteDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}

	if strings.Contains(dbPath, "mode=memory") || dbPath == ":memory:" {
		// every pooled connection must see the same in-memory database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(time.Hour)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return newDB(db, DialectSQLite), nil
}

// sqliteDSN turns on foreign keys and a busy timeout for every connection
func sqliteDSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on&_busy_timeout=5000"
}

func createTables(db *sql.DB) error {
	schema := `
	-- Gallery recipients
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT,
		email TEXT UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Magic-link sessions
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		token TEXT NOT NULL UNIQUE,
		client_id TEXT REFERENCES clients(id) ON DELETE SET NULL,
		primary_album_id INTEGER NOT NULL,
		client_name TEXT,
		client_email TEXT,
		expires_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_client_id ON sessions(client_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_primary_album_id ON sessions(primary_album_id);

	-- Additional album grants
	CREATE TABLE IF NOT EXISTS session_album_grants (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		album_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, album_id)
	);

	CREATE INDEX IF NOT EXISTS idx_session_album_grants_album_id ON session_album_grants(album_id);

	-- Edited image replacements
	CREATE TABLE IF NOT EXISTS image_replacements (
		original_image_id INTEGER PRIMARY KEY,
		edited_image_id INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Debounced edit notifications
	CREATE TABLE IF NOT EXISTS edit_notifications (
		album_id INTEGER PRIMARY KEY,
		last_edit_detected_at INTEGER NOT NULL,
		last_notified_at INTEGER
	);

	-- Background job leases
	CREATE TABLE IF NOT EXISTS job_leases (
		name TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	`

	_, err := db.Exec(schema)
	return err
}
