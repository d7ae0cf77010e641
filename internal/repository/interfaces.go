package repository

import (
	"context"
	"time"

	"github.com/photosync/proofing/internal/models"
)

// ClientRepo defines persistence for gallery recipients
type ClientRepo interface {
	GetByID(ctx context.Context, id string) (*models.Client, error)
	GetByEmail(ctx context.Context, email string) (*models.Client, error)
	Add(ctx context.Context, client *models.Client) error
	AddIfEmailAbsent(ctx context.Context, client *models.Client) (bool, error)
	BackfillName(ctx context.Context, id, name string) (bool, error)
	SetEmailIfEmpty(ctx context.Context, id, email, name string) (bool, error)
}

// SessionRepo defines persistence for magic-link sessions
type SessionRepo interface {
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListByClientID(ctx context.Context, clientID string) ([]*models.Session, error)
	ListContactsForAlbum(ctx context.Context, albumID int64) ([]*models.SessionContact, error)
	Add(ctx context.Context, session *models.Session) error
	AttachClient(ctx context.Context, sessionID, clientID string, name, email *string) (bool, error)
	ReassignClient(ctx context.Context, sessionID, fromClientID, toClientID string, email *string) (bool, error)
	UpdateSnapshot(ctx context.Context, sessionID string, name, email *string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionGrantRepo defines persistence for additional album grants
type SessionGrantRepo interface {
	Exists(ctx context.Context, sessionID string, albumID int64) (bool, error)
	ListBySessionID(ctx context.Context, sessionID string) ([]*models.SessionAlbumGrant, error)
	Add(ctx context.Context, grant *models.SessionAlbumGrant) (bool, error)
}

// ReplacementRepo defines persistence for original -> edited image mappings
type ReplacementRepo interface {
	Record(ctx context.Context, originalID, editedID int64, at time.Time) (models.ReplacementOutcome, error)
	Resolve(ctx context.Context, originalID int64) (*int64, error)
	ResolveMany(ctx context.Context, originalIDs []int64) (map[int64]int64, error)
}

// EditNotificationRepo defines persistence for per-album digest bookkeeping
type EditNotificationRepo interface {
	Get(ctx context.Context, albumID int64) (*models.AlbumEditState, error)
	List(ctx context.Context) ([]*models.AlbumEditState, error)
	Touch(ctx context.Context, albumID int64, at time.Time) error
	MarkNotified(ctx context.Context, albumID int64, at time.Time) error
}

// JobLeaseRepo defines persistence for cross-process job leases
type JobLeaseRepo interface {
	TryClaim(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holder string) error
	Get(ctx context.Context, name string) (*models.JobLease, error)
}
