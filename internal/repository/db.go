package repository

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Dialect names the SQL engine behind a DB
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps the connection pool with a statement builder matching its
// placeholder style.
type DB struct {
	*sql.DB
	Dialect Dialect
	builder sq.StatementBuilderType
}

func newDB(db *sql.DB, dialect Dialect) *DB {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		format = sq.Dollar
	}
	return &DB{
		DB:      db,
		Dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Builder returns a squirrel builder for this dialect
func (d *DB) Builder() sq.StatementBuilderType {
	return d.builder
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}
