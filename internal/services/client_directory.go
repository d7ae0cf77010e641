package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/observability"
	"github.com/photosync/proofing/internal/repository"
)

// ClientDirectory maps email addresses to durable client identities.
// Uniqueness is enforced by the store, so concurrent callers for the same
// email converge on one row.
type ClientDirectory struct {
	clientRepo repository.ClientRepo
}

// NewClientDirectory creates a new ClientDirectory
func NewClientDirectory(clientRepo repository.ClientRepo) *ClientDirectory {
	return &ClientDirectory{clientRepo: clientRepo}
}

// EnsureClient returns the client owning email, creating it if needed. A
// name hint only fills a missing name.
func (d *ClientDirectory) EnsureClient(ctx context.Context, email, nameHint string) (*models.Client, error) {
	email, err := models.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	nameHint = strings.TrimSpace(nameHint)

	existing, err := d.clientRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup client: %w", err)
	}
	if existing != nil {
		return d.backfillName(ctx, existing, nameHint)
	}

	client := models.NewClient(email, nameHint)
	created, err := d.clientRepo.AddIfEmailAbsent(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	if created {
		observability.WithContext(ctx).WithField("client_id", client.ID).Debug("Client created")
		return client, nil
	}

	// Lost the insert race; the winner's row is authoritative
	winner, err := d.clientRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup client: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("client for %s vanished after conflicting insert", email)
	}
	return d.backfillName(ctx, winner, nameHint)
}

func (d *ClientDirectory) backfillName(ctx context.Context, client *models.Client, name string) (*models.Client, error) {
	if client.Name != nil || name == "" {
		return client, nil
	}
	updated, err := d.clientRepo.BackfillName(ctx, client.ID, name)
	if err != nil {
		return nil, fmt.Errorf("backfill client name: %w", err)
	}
	if updated {
		client.Name = &name
		return client, nil
	}
	return d.Get(ctx, client.ID)
}

// PromoteAnonymous never invents an identity: a client without an email
// stays anonymous until an email is linked explicitly.
func (d *ClientDirectory) PromoteAnonymous(ctx context.Context, client *models.Client) (*models.Client, error) {
	if client == nil {
		return nil, models.ErrClientNotFound
	}
	if client.HasEmail() {
		return client, nil
	}
	current, err := d.Get(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	return current, nil
}

// CreatePlaceholder creates an email-less client for an anonymous session
func (d *ClientDirectory) CreatePlaceholder(ctx context.Context, name string) (*models.Client, error) {
	client := models.NewClient("", models.FirstNonEmpty(name, models.PlaceholderClientName))
	if err := d.clientRepo.Add(ctx, client); err != nil {
		return nil, fmt.Errorf("create placeholder client: %w", err)
	}
	return client, nil
}

// Get returns a client by id
func (d *ClientDirectory) Get(ctx context.Context, id string) (*models.Client, error) {
	client, err := d.clientRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return nil, models.ErrClientNotFound
	}
	return client, nil
}

// AttachEmail sets the email of an email-less client. It reports false when
// the client already had one.
func (d *ClientDirectory) AttachEmail(ctx context.Context, client *models.Client, email, nameHint string) (bool, error) {
	written, err := d.clientRepo.SetEmailIfEmpty(ctx, client.ID, models.NormalizeEmail(email), strings.TrimSpace(nameHint))
	if err != nil {
		return false, fmt.Errorf("attach client email: %w", err)
	}
	return written, nil
}

// FindByEmail returns the client owning email, or nil
func (d *ClientDirectory) FindByEmail(ctx context.Context, email string) (*models.Client, error) {
	client, err := d.clientRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup client: %w", err)
	}
	return client, nil
}
