package repository

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return newDB(db, DialectPostgres), nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT,
		email TEXT UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		token TEXT NOT NULL UNIQUE,
		client_id TEXT REFERENCES clients(id) ON DELETE SET NULL,
		primary_album_id BIGINT NOT NULL,
		client_name TEXT,
		client_email TEXT,
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_client_id ON sessions(client_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_primary_album_id ON sessions(primary_album_id);

	CREATE TABLE IF NOT EXISTS session_album_grants (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		album_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(session_id, album_id)
	);

	CREATE INDEX IF NOT EXISTS idx_session_album_grants_album_id ON session_album_grants(album_id);

	CREATE TABLE IF NOT EXISTS image_replacements (
		original_image_id BIGINT PRIMARY KEY,
		edited_image_id BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS edit_notifications (
		album_id BIGINT PRIMARY KEY,
		last_edit_detected_at BIGINT NOT NULL,
		last_notified_at BIGINT
	);

	CREATE TABLE IF NOT EXISTS job_leases (
		name TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		expires_at BIGINT NOT NULL
	);
	`

	_, err := db.Exec(schema)
	return err
}
