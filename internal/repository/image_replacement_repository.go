package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/photosync/proofing/internal/models"
)

// ImageReplacementRepository implements ReplacementRepo for PostgreSQL/SQLite
type ImageReplacementRepository struct {
	db *DB
}

// NewImageReplacementRepository creates a new ImageReplacementRepository
func NewImageReplacementRepository(db *DB) *ImageReplacementRepository {
	return &ImageReplacementRepository{db: db}
}

// Record stores originalID -> editedID. The insert and the conditional
// update are each a single statement, so concurrent writers for the same
// original never both observe "unchanged" for a mapping that moved.
func (r *ImageReplacementRepository) Record(ctx context.Context, originalID, editedID int64, at time.Time) (models.ReplacementOutcome, error) {
	insert, args, err := r.db.Builder().Insert("image_replacements").
		Columns("original_image_id", "edited_image_id", "updated_at").
		Values(originalID, editedID, toMillis(at)).
		Suffix("ON CONFLICT (original_image_id) DO NOTHING").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert replacement sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, insert, args...)
	if err != nil {
		return "", fmt.Errorf("insert replacement: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return "", err
	} else if n == 1 {
		return models.ReplacementCreated, nil
	}

	update, args, err := r.db.Builder().Update("image_replacements").
		Set("edited_image_id", editedID).
		Set("updated_at", toMillis(at)).
		Where(sq.Eq{"original_image_id": originalID}).
		Where(sq.NotEq{"edited_image_id": editedID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build update replacement sql: %w", err)
	}

	result, err = r.db.ExecContext(ctx, update, args...)
	if err != nil {
		return "", fmt.Errorf("update replacement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 1 {
		return models.ReplacementChanged, nil
	}
	return models.ReplacementUnchanged, nil
}

func (r *ImageReplacementRepository) Resolve(ctx context.Context, originalID int64) (*int64, error) {
	query, args, err := r.db.Builder().Select("edited_image_id").
		From("image_replacements").
		Where(sq.Eq{"original_image_id": originalID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build resolve replacement sql: %w", err)
	}

	var edited int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&edited)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve replacement: %w", err)
	}
	return &edited, nil
}

// ResolveMany returns the edited id for every original that has one
func (r *ImageReplacementRepository) ResolveMany(ctx context.Context, originalIDs []int64) (map[int64]int64, error) {
	resolved := make(map[int64]int64)
	if len(originalIDs) == 0 {
		return resolved, nil
	}

	query, args, err := r.db.Builder().Select("original_image_id", "edited_image_id").
		From("image_replacements").
		Where(sq.Eq{"original_image_id": originalIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build resolve replacements sql: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve replacements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var original, edited int64
		if err := rows.Scan(&original, &edited); err != nil {
			return nil, fmt.Errorf("scan replacement: %w", err)
		}
		resolved[original] = edited
	}
	return resolved, rows.Err()
}
