package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/photosync/proofing/internal/models"
)

// JobLeaseRepository implements JobLeaseRepo for PostgreSQL/SQLite
type JobLeaseRepository struct {
	db *DB
}

// NewJobLeaseRepository creates a new JobLeaseRepository
func NewJobLeaseRepository(db *DB) *JobLeaseRepository {
	return &JobLeaseRepository{db: db}
}

// TryClaim takes the named lease for holder until now+ttl. It succeeds when
// the lease does not exist or the previous claim has expired.
func (r *JobLeaseRepository) TryClaim(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error) {
	query, args, err := r.db.Builder().Insert("job_leases").
		Columns("name", "holder", "expires_at").
		Values(name, holder, toMillis(now.Add(ttl))).
		Suffix(`ON CONFLICT (name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
			WHERE job_leases.expires_at <= ?`, toMillis(now)).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build claim lease sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("claim lease: %w", err)
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

// Release gives the lease back if holder still owns it
func (r *JobLeaseRepository) Release(ctx context.Context, name, holder string) error {
	query, args, err := r.db.Builder().Update("job_leases").
		Set("expires_at", 0).
		Where(sq.Eq{"name": name, "holder": holder}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release lease sql: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (r *JobLeaseRepository) Get(ctx context.Context, name string) (*models.JobLease, error) {
	query, args, err := r.db.Builder().Select("name", "holder", "expires_at").
		From("job_leases").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select lease sql: %w", err)
	}

	var lease models.JobLease
	var expires int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&lease.Name, &lease.Holder, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select lease: %w", err)
	}
	lease.ExpiresAt = fromMillis(expires)
	return &lease, nil
}
