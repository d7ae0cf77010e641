package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/photosync/proofing/internal/models"
)

var clientColumns = []string{"id", "name", "email", "created_at"}

// ClientRepository implements ClientRepo for PostgreSQL/SQLite
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new ClientRepository
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

// GetByEmail looks up a client by normalized email
func (r *ClientRepository) GetByEmail(ctx context.Context, email string) (*models.Client, error) {
	return r.getOne(ctx, sq.Eq{"email": models.NormalizeEmail(email)})
}

func (r *ClientRepository) getOne(ctx context.Context, where sq.Eq) (*models.Client, error) {
	query, args, err := r.db.Builder().Select(clientColumns...).From("clients").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select client sql: %w", err)
	}

	var c models.Client
	var name, email sql.NullString
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &name, &email, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select client: %w", err)
	}
	c.Name = stringPtr(name)
	c.Email = stringPtr(email)
	return &c, nil
}

func (r *ClientRepository) Add(ctx context.Context, client *models.Client) error {
	query, args, err := r.db.Builder().Insert("clients").
		Columns(clientColumns...).
		Values(client.ID, nullString(client.Name), nullString(client.Email), client.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert client sql: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

// AddIfEmailAbsent inserts the client unless another row already owns its
// email. It reports whether this call created the row.
func (r *ClientRepository) AddIfEmailAbsent(ctx context.Context, client *models.Client) (bool, error) {
	query, args, err := r.db.Builder().Insert("clients").
		Columns(clientColumns...).
		Values(client.ID, nullString(client.Name), nullString(client.Email), client.CreatedAt).
		Suffix("ON CONFLICT (email) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert client sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert client: %w", err)
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

// BackfillName sets the name only when it is still null
func (r *ClientRepository) BackfillName(ctx context.Context, id, name string) (bool, error) {
	query, args, err := r.db.Builder().Update("clients").
		Set("name", name).
		Where(sq.Eq{"id": id, "name": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build backfill client name sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("backfill client name: %w", err)
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

// SetEmailIfEmpty attaches an email to a client that has none. The name is
// only filled when absent. It reports whether the email was written.
func (r *ClientRepository) SetEmailIfEmpty(ctx context.Context, id, email, name string) (bool, error) {
	update := r.db.Builder().Update("clients").
		Set("email", models.NormalizeEmail(email)).
		Where(sq.Eq{"id": id, "email": nil})
	if name != "" {
		update = update.Set("name", sq.Expr("COALESCE(name, ?)", name))
	}

	query, args, err := update.ToSql()
	if err != nil {
		return false, fmt.Errorf("build set client email sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("set client email: %w", err)
	}
	n, err := result.RowsAffected()
	return n == 1, err
}
