package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/repository"
)

// fakeCatalog is an in-memory catalog with per-call failure injection
type fakeCatalog struct {
	mu          sync.Mutex
	albums      map[int64]models.CatalogAlbum
	images      map[int64]models.CatalogImage
	members     map[int64][]int64
	listErr     map[int64]error
	getAlbumErr error

	// onListAlbums runs before ListAlbums answers, outside the lock
	onListAlbums func()
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		albums:  make(map[int64]models.CatalogAlbum),
		images:  make(map[int64]models.CatalogImage),
		members: make(map[int64][]int64),
		listErr: make(map[int64]error),
	}
}

func (c *fakeCatalog) addAlbum(id int64, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.albums[id] = models.CatalogAlbum{ID: id, Title: title}
}

func (c *fakeCatalog) addImage(albumID, id int64, filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.images[id]; !ok {
		c.images[id] = models.CatalogImage{
			ID:         id,
			Filename:   filename,
			URL:        fmt.Sprintf("https://cdn.example.com/%d/full.jpg", id),
			Thumbnails: map[string]string{models.ThumbPresetMedium: fmt.Sprintf("https://cdn.example.com/%d/medium.jpg", id)},
		}
	}
	c.members[albumID] = append(c.members[albumID], id)
}

func (c *fakeCatalog) removeImage(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.images, id)
	for albumID, members := range c.members {
		kept := members[:0]
		for _, m := range members {
			if m != id {
				kept = append(kept, m)
			}
		}
		c.members[albumID] = kept
	}
}

func (c *fakeCatalog) failListImages(albumID int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.listErr, albumID)
		return
	}
	c.listErr[albumID] = err
}

func (c *fakeCatalog) albumsOf(imageID int64) []int64 {
	var ids []int64
	for albumID, members := range c.members {
		for _, id := range members {
			if id == imageID {
				ids = append(ids, albumID)
				break
			}
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

func (c *fakeCatalog) imageCopy(id int64) models.CatalogImage {
	img := c.images[id]
	img.AlbumIDs = c.albumsOf(id)
	return img
}

func (c *fakeCatalog) ListAlbums(ctx context.Context) ([]models.CatalogAlbum, error) {
	if c.onListAlbums != nil {
		c.onListAlbums()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var albums []models.CatalogAlbum
	for _, a := range c.albums {
		albums = append(albums, a)
	}
	sort.Slice(albums, func(a, b int) bool { return albums[a].ID < albums[b].ID })
	return albums, nil
}

func (c *fakeCatalog) GetAlbum(ctx context.Context, id int64) (*models.CatalogAlbum, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getAlbumErr != nil {
		return nil, c.getAlbumErr
	}
	a, ok := c.albums[id]
	if !ok {
		return nil, models.ErrCatalogNotFound
	}
	return &a, nil
}

func (c *fakeCatalog) ListImages(ctx context.Context, albumID int64) ([]models.CatalogImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.listErr[albumID]; err != nil {
		return nil, err
	}
	if _, ok := c.albums[albumID]; !ok {
		return nil, models.ErrCatalogNotFound
	}
	var images []models.CatalogImage
	for _, id := range c.members[albumID] {
		images = append(images, c.imageCopy(id))
	}
	return images, nil
}

func (c *fakeCatalog) GetImage(ctx context.Context, id int64) (*models.CatalogImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.images[id]; !ok {
		return nil, models.ErrCatalogNotFound
	}
	img := c.imageCopy(id)
	return &img, nil
}

func (c *fakeCatalog) FindImageByFilename(ctx context.Context, filename string) (*models.CatalogImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Like the HTTP catalog, a filename search carries no album membership.
	var found *models.CatalogImage
	for id, img := range c.images {
		if img.Filename == filename && (found == nil || id < found.ID) {
			cp := img
			cp.AlbumIDs = nil
			found = &cp
		}
	}
	if found == nil {
		return nil, models.ErrCatalogNotFound
	}
	return found, nil
}

// fakeNotifier records every message and can fail sends per address
type fakeNotifier struct {
	mu         sync.Mutex
	magicLinks []MagicLinkMessage
	digests    []EditedDigestMessage
	thankYous  []ThankYouMessage
	failFor    map[string]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: make(map[string]error)}
}

func (n *fakeNotifier) fail(email string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.failFor, email)
		return
	}
	n.failFor[email] = err
}

func (n *fakeNotifier) SendMagicLink(ctx context.Context, msg MagicLinkMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failFor[msg.Email]; err != nil {
		return err
	}
	n.magicLinks = append(n.magicLinks, msg)
	return nil
}

func (n *fakeNotifier) SendEditedDigest(ctx context.Context, msg EditedDigestMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failFor[msg.Email]; err != nil {
		return err
	}
	n.digests = append(n.digests, msg)
	return nil
}

func (n *fakeNotifier) SendThankYou(ctx context.Context, msg ThankYouMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failFor[msg.Email]; err != nil {
		return err
	}
	n.thankYous = append(n.thankYous, msg)
	return nil
}

func (n *fakeNotifier) digestsSent() []EditedDigestMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]EditedDigestMessage(nil), n.digests...)
}

func (n *fakeNotifier) thankYousSent() []ThankYouMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ThankYouMessage(nil), n.thankYous...)
}

func (n *fakeNotifier) magicLinksSent() []MagicLinkMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]MagicLinkMessage(nil), n.magicLinks...)
}

// recordedEvent is one Publish call seen by eventRecorder
type recordedEvent struct {
	topic     string
	eventType string
	payload   interface{}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Publish(topic, eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{topic: topic, eventType: eventType, payload: payload})
}

func (r *eventRecorder) ofType(eventType string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// testClock is a settable time source
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	db           *repository.DB
	catalog      *fakeCatalog
	notifier     *fakeNotifier
	clock        *testClock
	clientRepo   *repository.ClientRepository
	sessionRepo  *repository.SessionRepository
	grantRepo    *repository.SessionGrantRepository
	editRepo     *repository.EditNotificationRepository
	leaseRepo    *repository.JobLeaseRepository
	clients      *ClientDirectory
	sessions     *SessionService
	replacements *ReplacementService
}

var testEpoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewSQLiteDB(fmt.Sprintf("file:svc-%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:          db,
		catalog:     newFakeCatalog(),
		notifier:    newFakeNotifier(),
		clock:       &testClock{now: testEpoch},
		clientRepo:  repository.NewClientRepository(db),
		sessionRepo: repository.NewSessionRepository(db),
		grantRepo:   repository.NewSessionGrantRepository(db),
		editRepo:    repository.NewEditNotificationRepository(db),
		leaseRepo:   repository.NewJobLeaseRepository(db),
	}
	env.clients = NewClientDirectory(env.clientRepo)
	env.sessions = NewSessionService(
		env.sessionRepo,
		env.grantRepo,
		env.clients,
		env.catalog,
		env.notifier,
		NewLinkBuilder("https://proof.example.com/"),
		models.DefaultSessionLifetime,
	)
	env.sessions.SetClock(env.clock.Now)
	env.replacements = NewReplacementService(repository.NewImageReplacementRepository(db))
	t.Cleanup(env.sessions.Wait)
	return env
}

func (e *testEnv) newReconciler(cfg ReconcilerConfig) *EditReconciler {
	return NewEditReconciler(e.catalog, e.replacements, e.editRepo, e.leaseRepo, e.sessions, e.notifier, cfg)
}
