package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/photosync/proofing/internal/models"
)

// SessionGrantRepository implements SessionGrantRepo for PostgreSQL/SQLite
type SessionGrantRepository struct {
	db *DB
}

// NewSessionGrantRepository creates a new SessionGrantRepository
func NewSessionGrantRepository(db *DB) *SessionGrantRepository {
	return &SessionGrantRepository{db: db}
}

func (r *SessionGrantRepository) Exists(ctx context.Context, sessionID string, albumID int64) (bool, error) {
	query, args, err := r.db.Builder().
		Select("1").
		Prefix("SELECT EXISTS(").
		From("session_album_grants").
		Where(sq.Eq{"session_id": sessionID, "album_id": albumID}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build grant exists sql: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check grant: %w", err)
	}
	return exists, nil
}

func (r *SessionGrantRepository) ListBySessionID(ctx context.Context, sessionID string) ([]*models.SessionAlbumGrant, error) {
	query, args, err := r.db.Builder().
		Select("id", "session_id", "album_id", "created_at").
		From("session_album_grants").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at ASC", "album_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list grants sql: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []*models.SessionAlbumGrant
	for rows.Next() {
		var g models.SessionAlbumGrant
		if err := rows.Scan(&g.ID, &g.SessionID, &g.AlbumID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, &g)
	}
	return grants, rows.Err()
}

// Add inserts a grant. It reports false if the (session, album) pair
// already existed.
func (r *SessionGrantRepository) Add(ctx context.Context, grant *models.SessionAlbumGrant) (bool, error) {
	query, args, err := r.db.Builder().Insert("session_album_grants").
		Columns("id", "session_id", "album_id", "created_at").
		Values(grant.ID, grant.SessionID, grant.AlbumID, grant.CreatedAt).
		Suffix("ON CONFLICT (session_id, album_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert grant sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert grant: %w", err)
	}
	n, err := result.RowsAffected()
	return n == 1, err
}
