package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/photosync/proofing/internal/models"
)

var sessionColumns = []string{
	"s.id", "s.token", "s.client_id", "s.primary_album_id",
	"s.client_name", "s.client_email", "s.expires_at", "s.created_at",
}

// SessionRepository implements SessionRepo for PostgreSQL/SQLite
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner, extra ...interface{}) (*models.Session, error) {
	var s models.Session
	var clientID, name, email sql.NullString
	var expiresAt sql.NullTime
	dest := []interface{}{&s.ID, &s.Token, &clientID, &s.PrimaryAlbumID, &name, &email, &expiresAt, &s.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	s.ClientID = stringPtr(clientID)
	s.ClientName = stringPtr(name)
	s.ClientEmail = stringPtr(email)
	s.ExpiresAt = timePtr(expiresAt)
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	return r.getOne(ctx, sq.Eq{"s.token": token})
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return r.getOne(ctx, sq.Eq{"s.id": id})
}

func (r *SessionRepository) getOne(ctx context.Context, where sq.Eq) (*models.Session, error) {
	query, args, err := r.db.Builder().Select(sessionColumns...).From("sessions s").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return s, nil
}

// ListByClientID returns every session of a client, oldest first
func (r *SessionRepository) ListByClientID(ctx context.Context, clientID string) ([]*models.Session, error) {
	query, args, err := r.db.Builder().Select(sessionColumns...).
		From("sessions s").
		Where(sq.Eq{"s.client_id": clientID}).
		OrderBy("s.created_at ASC", "s.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListContactsForAlbum returns sessions that can see albumID, either as
// their primary album or through a grant, joined with client contact data.
func (r *SessionRepository) ListContactsForAlbum(ctx context.Context, albumID int64) ([]*models.SessionContact, error) {
	columns := append(append([]string{}, sessionColumns...), "c.email", "c.name")
	query, args, err := r.db.Builder().Select(columns...).
		From("sessions s").
		LeftJoin("clients c ON c.id = s.client_id").
		Where(sq.Or{
			sq.Eq{"s.primary_album_id": albumID},
			sq.Expr("EXISTS (SELECT 1 FROM session_album_grants g WHERE g.session_id = s.id AND g.album_id = ?)", albumID),
		}).
		OrderBy("s.created_at ASC", "s.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list album contacts sql: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list album contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*models.SessionContact
	for rows.Next() {
		var clientEmail, clientName sql.NullString
		s, err := scanSession(rows, &clientEmail, &clientName)
		if err != nil {
			return nil, fmt.Errorf("scan album contact: %w", err)
		}
		contacts = append(contacts, &models.SessionContact{
			Session:     s,
			ClientEmail: stringPtr(clientEmail),
			ClientName:  stringPtr(clientName),
		})
	}
	return contacts, rows.Err()
}

func (r *SessionRepository) Add(ctx context.Context, session *models.Session) error {
	var expiresAt interface{}
	if session.ExpiresAt != nil {
		expiresAt = *session.ExpiresAt
	}

	query, args, err := r.db.Builder().Insert("sessions").
		Columns("id", "token", "client_id", "primary_album_id", "client_name", "client_email", "expires_at", "created_at").
		Values(
			session.ID,
			session.Token,
			nullString(session.ClientID),
			session.PrimaryAlbumID,
			nullString(session.ClientName),
			nullString(session.ClientEmail),
			expiresAt,
			session.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AttachClient links a client to a session that has none yet. It reports
// false when another writer linked the session first.
func (r *SessionRepository) AttachClient(ctx context.Context, sessionID, clientID string, name, email *string) (bool, error) {
	update := r.db.Builder().Update("sessions").
		Set("client_id", clientID).
		Where(sq.Eq{"id": sessionID, "client_id": nil})
	if name != nil {
		update = update.Set("client_name", sq.Expr("COALESCE(client_name, ?)", *name))
	}
	if email != nil {
		update = update.Set("client_email", *email)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return false, fmt.Errorf("build attach client sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("attach client: %w", err)
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

// ReassignClient moves a session from one client to another, only if it is
// still owned by fromClientID.
func (r *SessionRepository) ReassignClient(ctx context.Context, sessionID, fromClientID, toClientID string, email *string) (bool, error) {
	update := r.db.Builder().Update("sessions").
		Set("client_id", toClientID).
		Where(sq.Eq{"id": sessionID, "client_id": fromClientID})
	if email != nil {
		update = update.Set("client_email", *email)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return false, fmt.Errorf("build reassign session sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("reassign session: %w", err)
	}
	n, err := result.RowsAffected()
	return n == 1, err
}

// UpdateSnapshot refreshes the name/email captured on the session row.
// Nil values leave the column untouched.
func (r *SessionRepository) UpdateSnapshot(ctx context.Context, sessionID string, name, email *string) error {
	if name == nil && email == nil {
		return nil
	}
	update := r.db.Builder().Update("sessions").Where(sq.Eq{"id": sessionID})
	if name != nil {
		update = update.Set("client_name", *name)
	}
	if email != nil {
		update = update.Set("client_email", *email)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build update session snapshot sql: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update session snapshot: %w", err)
	}
	return nil
}

// DeleteExpiredBefore removes sessions that expired before cutoff. Grants
// cascade.
func (r *SessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query, args, err := r.db.Builder().Delete("sessions").
		Where(sq.And{
			sq.NotEq{"expires_at": nil},
			sq.Lt{"expires_at": cutoff.UTC()},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired sessions sql: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}
