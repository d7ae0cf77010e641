package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/observability"
	"github.com/photosync/proofing/internal/repository"
)

const (
	defaultNotifyTimeout = 30 * time.Second
	thankYouPreviewCount = 3
)

// SessionService owns magic-link sessions and their album grants
type SessionService struct {
	sessionRepo repository.SessionRepo
	grantRepo   repository.SessionGrantRepo
	clients     *ClientDirectory
	catalog     Catalog
	notifier    Notifier
	links       *LinkBuilder
	metrics     *observability.ProofingMetrics

	lifetime      time.Duration
	notifyTimeout time.Duration
	now           func() time.Time

	background sync.WaitGroup
}

// NewSessionService creates a new SessionService. A zero lifetime issues
// non-expiring sessions.
func NewSessionService(
	sessionRepo repository.SessionRepo,
	grantRepo repository.SessionGrantRepo,
	clients *ClientDirectory,
	catalog Catalog,
	notifier Notifier,
	links *LinkBuilder,
	lifetime time.Duration,
) *SessionService {
	return &SessionService{
		sessionRepo:   sessionRepo,
		grantRepo:     grantRepo,
		clients:       clients,
		catalog:       catalog,
		notifier:      notifier,
		links:         links,
		lifetime:      lifetime,
		notifyTimeout: defaultNotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches business counters
func (s *SessionService) SetMetrics(m *observability.ProofingMetrics) {
	s.metrics = m
}

// SetClock replaces the time source
func (s *SessionService) SetClock(now func() time.Time) {
	s.now = now
}

// Links returns the service's link builder
func (s *SessionService) Links() *LinkBuilder {
	return s.links
}

// Wait blocks until background notifications have finished
func (s *SessionService) Wait() {
	s.background.Wait()
}

// CreateAnonymousSession creates a session for albumID without a client
func (s *SessionService) CreateAnonymousSession(ctx context.Context, albumID int64) (*models.Session, error) {
	if albumID <= 0 {
		return nil, models.ErrInvalidAlbumID
	}

	session, err := models.NewSession(albumID, s.lifetime, s.now())
	if err != nil {
		return nil, fmt.Errorf("mint session: %w", err)
	}
	if err := s.sessionRepo.Add(ctx, session); err != nil {
		return nil, err
	}

	s.metrics.RecordSessionCreated(ctx, true)
	return session, nil
}

// CreateSession creates a session for albumID owned by the client with email
func (s *SessionService) CreateSession(ctx context.Context, albumID int64, email, nameHint string) (*models.Session, error) {
	ctx, span := observability.StartServiceSpan(ctx, "SessionDirectory", "CreateSession")
	defer span.End()

	if albumID <= 0 {
		return nil, models.ErrInvalidAlbumID
	}

	client, err := s.clients.EnsureClient(ctx, email, nameHint)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	session, err := models.NewSession(albumID, s.lifetime, s.now())
	if err != nil {
		return nil, fmt.Errorf("mint session: %w", err)
	}
	session.ClientID = &client.ID
	session.ClientEmail = client.Email
	if name := models.FirstNonEmpty(client.DisplayName(), nameHint); name != "" {
		name = strings.TrimSpace(name)
		session.ClientName = &name
	}

	if err := s.sessionRepo.Add(ctx, session); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordSessionCreated(ctx, false)
	span.SetAttributes(observability.SessionID(session.ID), observability.AlbumID(albumID))
	return session, nil
}

// IssueMagicLink creates a session for email and mails its link. Delivery
// happens in the background and never fails the call.
func (s *SessionService) IssueMagicLink(ctx context.Context, albumID int64, email, nameHint string) (*models.Session, string, error) {
	session, err := s.CreateSession(ctx, albumID, email, nameHint)
	if err != nil {
		return nil, "", err
	}

	link := s.links.MagicLink(session.Token, albumID)
	msg := MagicLinkMessage{
		Email:      *session.ClientEmail,
		ClientName: derefString(session.ClientName),
		Link:       link,
	}
	s.notifyAsync(ctx, "magic_link", func(ctx context.Context) error {
		msg.AlbumTitle = s.albumTitle(ctx, albumID)
		return s.notifier.SendMagicLink(ctx, msg)
	})
	return session, link, nil
}

// LinkEmailToSession attaches email to the token's session. An email that
// is already set on the session's client is never overwritten. A thank-you
// note is sent only when this call attached the email.
func (s *SessionService) LinkEmailToSession(ctx context.Context, token, email, nameHint string) (*models.Session, error) {
	ctx, span := observability.StartServiceSpan(ctx, "SessionDirectory", "LinkEmail")
	defer span.End()

	email, err := models.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	nameHint = strings.TrimSpace(nameHint)

	session, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	attached, err := s.attachEmail(ctx, session, email, nameHint)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	current, err := s.sessionRepo.GetByID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, models.ErrSessionNotFound
	}

	if attached {
		observability.WithContext(ctx).WithField("session_id", current.ID).Info("Email linked to session")
		s.sendThankYou(ctx, current, email)
	}
	return current, nil
}

func (s *SessionService) attachEmail(ctx context.Context, session *models.Session, email, nameHint string) (bool, error) {
	if !session.HasClient() {
		client, err := s.clients.EnsureClient(ctx, email, nameHint)
		if err != nil {
			return false, err
		}
		return s.sessionRepo.AttachClient(ctx, session.ID, client.ID, optionalString(nameHint), &email)
	}

	client, err := s.clients.Get(ctx, *session.ClientID)
	if err != nil {
		return false, err
	}
	if client.HasEmail() {
		return false, nil
	}

	// The address may already belong to another client; move the session
	// there instead of creating a duplicate identity.
	owner, err := s.clients.FindByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if owner != nil && owner.ID != client.ID {
		return s.moveToOwner(ctx, session, client, owner, email, nameHint)
	}

	written, err := s.clients.AttachEmail(ctx, client, email, nameHint)
	if err != nil {
		// Another client may have claimed the address since the lookup.
		owner, lookupErr := s.clients.FindByEmail(ctx, email)
		if lookupErr != nil || owner == nil || owner.ID == client.ID {
			return false, err
		}
		return s.moveToOwner(ctx, session, client, owner, email, nameHint)
	}
	if !written {
		return false, nil
	}

	var name *string
	if session.ClientName == nil {
		name = optionalString(nameHint)
	}
	if err := s.sessionRepo.UpdateSnapshot(ctx, session.ID, name, &email); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SessionService) moveToOwner(ctx context.Context, session *models.Session, from, owner *models.Client, email, nameHint string) (bool, error) {
	moved, err := s.sessionRepo.ReassignClient(ctx, session.ID, from.ID, owner.ID, &email)
	if err != nil || !moved {
		return false, err
	}
	if _, err := s.clients.EnsureClient(ctx, email, nameHint); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SessionService) sendThankYou(ctx context.Context, session *models.Session, email string) {
	msg := ThankYouMessage{
		Email:      email,
		ClientName: derefString(session.ClientName),
	}
	albumID := session.PrimaryAlbumID
	s.notifyAsync(ctx, "thank_you", func(ctx context.Context) error {
		msg.AlbumTitle = s.albumTitle(ctx, albumID)
		msg.Previews = s.previewURLs(ctx, albumID, thankYouPreviewCount)
		return s.notifier.SendThankYou(ctx, msg)
	})
}

// Validate returns the session for token. Unknown and expired tokens are
// indistinguishable.
func (s *SessionService) Validate(ctx context.Context, token string) (*models.Session, error) {
	token, err := models.NormalizeToken(token)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil || session.IsExpired(s.now()) {
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}

// AssertAccess validates token and checks it may view albumID. The returned
// session is scoped to albumID.
func (s *SessionService) AssertAccess(ctx context.Context, token string, albumID int64) (*models.Session, error) {
	session, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if albumID == session.PrimaryAlbumID {
		return session.ForAlbum(albumID), nil
	}

	granted, err := s.grantRepo.Exists(ctx, session.ID, albumID)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, models.ErrAlbumNotGranted
	}
	return session.ForAlbum(albumID), nil
}

// AddAlbumGrant extends token's session to albumID. Anonymous sessions
// cannot receive grants.
func (s *SessionService) AddAlbumGrant(ctx context.Context, token string, albumID int64) error {
	if albumID <= 0 {
		return models.ErrInvalidAlbumID
	}

	session, err := s.Validate(ctx, token)
	if err != nil {
		return err
	}
	if !session.HasClient() {
		return models.ErrAnonymousSession
	}
	if albumID == session.PrimaryAlbumID {
		return nil
	}

	added, err := s.grantRepo.Add(ctx, models.NewSessionAlbumGrant(session.ID, albumID))
	if err != nil {
		return err
	}
	if added {
		observability.WithContext(ctx).WithFields(map[string]interface{}{
			"session_id": session.ID,
			"album_id":   albumID,
		}).Info("Album grant added")
	}
	return nil
}

// LandingBundle lists every (session, album) pair reachable by the client
// that owns token. A session without a client is first given a placeholder
// client.
func (s *SessionService) LandingBundle(ctx context.Context, token string) (*models.LandingBundle, error) {
	ctx, span := observability.StartServiceSpan(ctx, "SessionDirectory", "LandingBundle")
	defer span.End()

	session, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	if !session.HasClient() {
		session, err = s.attachPlaceholder(ctx, session)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
	}

	client, err := s.clients.Get(ctx, *session.ClientID)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessionRepo.ListByClientID(ctx, client.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	bundle := &models.LandingBundle{Client: client, Sessions: []models.LandingEntry{}}
	seen := make(map[string]bool)
	titles := make(map[int64]string)

	add := func(sess *models.Session, albumID int64, primary bool) error {
		key := fmt.Sprintf("%s/%d", sess.Token, albumID)
		if seen[key] {
			return nil
		}
		seen[key] = true

		title, ok := titles[albumID]
		if !ok {
			title, err = s.lookupAlbumTitle(ctx, albumID)
			if err != nil {
				return err
			}
			titles[albumID] = title
		}

		bundle.Sessions = append(bundle.Sessions, models.LandingEntry{
			SessionID:  sess.ID,
			Token:      sess.Token,
			AlbumID:    albumID,
			AlbumTitle: title,
			MagicLink:  s.links.MagicLink(sess.Token, albumID),
			IsPrimary:  primary,
		})
		return nil
	}

	for _, sess := range sessions {
		if sess.IsExpired(now) {
			continue
		}
		if bundle.LandingLink == "" {
			bundle.LandingLink = s.links.LandingLink(sess.Token)
		}
		if err := add(sess, sess.PrimaryAlbumID, true); err != nil {
			return nil, err
		}

		grants, err := s.grantRepo.ListBySessionID(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		for _, g := range grants {
			if err := add(sess, g.AlbumID, false); err != nil {
				return nil, err
			}
		}
	}

	if bundle.LandingLink == "" {
		bundle.LandingLink = s.links.LandingLink(session.Token)
	}
	return bundle, nil
}

func (s *SessionService) attachPlaceholder(ctx context.Context, session *models.Session) (*models.Session, error) {
	placeholder, err := s.clients.CreatePlaceholder(ctx, derefString(session.ClientName))
	if err != nil {
		return nil, err
	}
	if _, err := s.sessionRepo.AttachClient(ctx, session.ID, placeholder.ID, nil, nil); err != nil {
		return nil, err
	}

	// Another request may have linked the session first; the stored row wins
	current, err := s.sessionRepo.GetByID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.HasClient() {
		return nil, models.ErrSessionNotFound
	}
	return current, nil
}

// RecipientsForAlbum resolves the digest recipients for albumID: one entry
// per normalized email, carrying every distinct magic link its unexpired
// sessions hold for the album.
func (s *SessionService) RecipientsForAlbum(ctx context.Context, albumID int64, now time.Time) ([]models.DigestRecipient, error) {
	contacts, err := s.sessionRepo.ListContactsForAlbum(ctx, albumID)
	if err != nil {
		return nil, err
	}

	var recipients []models.DigestRecipient
	index := make(map[string]int)
	links := make(map[string]map[string]bool)

	for _, c := range contacts {
		if c.Session.IsExpired(now) {
			continue
		}
		email := c.Email()
		if email == "" {
			continue
		}

		i, ok := index[email]
		if !ok {
			i = len(recipients)
			index[email] = i
			links[email] = make(map[string]bool)
			recipients = append(recipients, models.DigestRecipient{
				Email:       email,
				LandingLink: s.links.LandingLink(c.Session.Token),
			})
		}
		if recipients[i].Name == "" {
			recipients[i].Name = c.Name()
		}

		link := s.links.MagicLink(c.Session.Token, albumID)
		if !links[email][link] {
			links[email][link] = true
			recipients[i].Links = append(recipients[i].Links, link)
		}
	}
	return recipients, nil
}

// CleanupExpired deletes sessions that expired before cutoff
func (s *SessionService) CleanupExpired(ctx context.Context, cutoff time.Time) (int, error) {
	return s.sessionRepo.DeleteExpiredBefore(ctx, cutoff)
}

func (s *SessionService) lookupAlbumTitle(ctx context.Context, albumID int64) (string, error) {
	album, err := s.catalog.GetAlbum(ctx, albumID)
	if errors.Is(err, models.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return album.Title, nil
}

// albumTitle is the best-effort variant used for notifications
func (s *SessionService) albumTitle(ctx context.Context, albumID int64) string {
	title, err := s.lookupAlbumTitle(ctx, albumID)
	if err != nil {
		observability.WithContext(ctx).WithError(err).WithField("album_id", albumID).Debug("Album title unavailable")
	}
	return title
}

func (s *SessionService) previewURLs(ctx context.Context, albumID int64, limit int) []string {
	images, err := s.catalog.ListImages(ctx, albumID)
	if err != nil {
		observability.WithContext(ctx).WithError(err).WithField("album_id", albumID).Debug("Album previews unavailable")
		return nil
	}
	var previews []string
	for i := range images {
		if len(previews) == limit {
			break
		}
		if u := images[i].ThumbnailURL(); u != "" {
			previews = append(previews, u)
		}
	}
	return previews
}

// notifyAsync runs fn detached from the request. Failures are logged only.
func (s *SessionService) notifyAsync(ctx context.Context, kind string, fn func(ctx context.Context) error) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			observability.WithContext(ctx).WithError(err).WithField("notification", kind).Warn("Notification failed")
		}
	}()
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
