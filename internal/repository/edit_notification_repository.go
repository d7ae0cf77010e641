package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/photosync/proofing/internal/models"
)

// EditNotificationRepository implements EditNotificationRepo for PostgreSQL/SQLite.
// Timestamps are stored as unix milliseconds so both engines compare them numerically.
type EditNotificationRepository struct {
	db *DB
}

// NewEditNotificationRepository creates a new EditNotificationRepository
func NewEditNotificationRepository(db *DB) *EditNotificationRepository {
	return &EditNotificationRepository{db: db}
}

func scanEditState(row rowScanner) (*models.AlbumEditState, error) {
	var st models.AlbumEditState
	var detected int64
	var notified sql.NullInt64
	if err := row.Scan(&st.AlbumID, &detected, &notified); err != nil {
		return nil, err
	}
	st.LastEditDetectedAt = fromMillis(detected)
	if notified.Valid {
		t := fromMillis(notified.Int64)
		st.LastNotifiedAt = &t
	}
	return &st, nil
}

func (r *EditNotificationRepository) Get(ctx context.Context, albumID int64) (*models.AlbumEditState, error) {
	query, args, err := r.db.Builder().
		Select("album_id", "last_edit_detected_at", "last_notified_at").
		From("edit_notifications").
		Where(sq.Eq{"album_id": albumID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select edit state sql: %w", err)
	}

	st, err := scanEditState(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select edit state: %w", err)
	}
	return st, nil
}

// List returns every album with edit bookkeeping, oldest edit first
func (r *EditNotificationRepository) List(ctx context.Context) ([]*models.AlbumEditState, error) {
	query, args, err := r.db.Builder().
		Select("album_id", "last_edit_detected_at", "last_notified_at").
		From("edit_notifications").
		OrderBy("last_edit_detected_at ASC", "album_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list edit states sql: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list edit states: %w", err)
	}
	defer rows.Close()

	var states []*models.AlbumEditState
	for rows.Next() {
		st, err := scanEditState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edit state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// Touch marks an album dirty at `at`, never moving the detection time backwards
func (r *EditNotificationRepository) Touch(ctx context.Context, albumID int64, at time.Time) error {
	query, args, err := r.db.Builder().Insert("edit_notifications").
		Columns("album_id", "last_edit_detected_at").
		Values(albumID, toMillis(at)).
		Suffix(`ON CONFLICT (album_id) DO UPDATE SET last_edit_detected_at =
			CASE WHEN excluded.last_edit_detected_at > edit_notifications.last_edit_detected_at
				THEN excluded.last_edit_detected_at
				ELSE edit_notifications.last_edit_detected_at END`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch edit state sql: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch edit state: %w", err)
	}
	return nil
}

func (r *EditNotificationRepository) MarkNotified(ctx context.Context, albumID int64, at time.Time) error {
	query, args, err := r.db.Builder().Update("edit_notifications").
		Set("last_notified_at", toMillis(at)).
		Where(sq.Eq{"album_id": albumID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark notified sql: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}
