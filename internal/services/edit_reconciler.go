package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/observability"
	"github.com/photosync/proofing/internal/repository"
)

// ReconcilerLeaseName is the job lease shared by every process instance
const ReconcilerLeaseName = "edit-reconciler"

const maxStatusErrors = 50

// ErrReconcileInProgress is returned when a run is already active in this process
var ErrReconcileInProgress = errors.New("reconcile already running")

// ReconcilerConfig holds the reconciler's timing and matching settings
type ReconcilerConfig struct {
	Interval         time.Duration
	IdleThreshold    time.Duration
	LeaseTTL         time.Duration
	AlbumTimeout     time.Duration
	SessionRetention time.Duration
	EditMarker       string
}

// SessionDirectory is the narrow view of sessions the reconciler needs
type SessionDirectory interface {
	RecipientsForAlbum(ctx context.Context, albumID int64, now time.Time) ([]models.DigestRecipient, error)
	CleanupExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// ReconcileSummary counts what one run did
type ReconcileSummary struct {
	Skipped              bool     `json:"skipped"`
	ImagesScanned        int      `json:"imagesScanned"`
	EditsMatched         int      `json:"editsMatched"`
	OrphanEdits          int      `json:"orphanEdits"`
	ReplacementsRecorded int      `json:"replacementsRecorded"`
	DeferredEdits        int      `json:"deferredEdits"`
	AlbumsDirtied        int      `json:"albumsDirtied"`
	DigestsSent          int      `json:"digestsSent"`
	DigestsFailed        int      `json:"digestsFailed"`
	SessionsRemoved      int      `json:"sessionsRemoved"`
	Errors               []string `json:"errors,omitempty"`
}

func (s *ReconcileSummary) addError(format string, args ...interface{}) {
	if len(s.Errors) < maxStatusErrors {
		s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
	}
}

// ReconcilerStatus represents the current state of the reconciler
type ReconcilerStatus struct {
	Running          bool              `json:"running"`
	Enabled          bool              `json:"enabled"`
	Holder           string            `json:"holder"`
	LastRun          time.Time         `json:"lastRun,omitempty"`
	LastRunDuration  string            `json:"lastRunDuration,omitempty"`
	LastSummary      *ReconcileSummary `json:"lastSummary,omitempty"`
	NextScheduledRun time.Time         `json:"nextScheduledRun,omitempty"`
}

// EditReconciler detects edited images in the catalog, records them as
// replacements and sends a digest per album once edits have gone quiet.
type EditReconciler struct {
	catalog      Catalog
	replacements *ReplacementService
	editRepo     repository.EditNotificationRepo
	leaseRepo    repository.JobLeaseRepo
	directory    SessionDirectory
	notifier     Notifier
	events       EventPublisher
	metrics      *observability.ProofingMetrics
	matcher      *models.EditMatcher
	cfg          ReconcilerConfig
	holder       string

	mu       sync.RWMutex
	enabled  bool
	running  bool
	stopChan chan struct{}
	cancel   context.CancelFunc
	status   ReconcilerStatus
	ticker   *time.Ticker
}

// NewEditReconciler creates a new EditReconciler
func NewEditReconciler(
	catalog Catalog,
	replacements *ReplacementService,
	editRepo repository.EditNotificationRepo,
	leaseRepo repository.JobLeaseRepo,
	directory SessionDirectory,
	notifier Notifier,
	cfg ReconcilerConfig,
) *EditReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = models.DefaultIdleThreshold
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.Interval + cfg.Interval/2
	}
	if cfg.AlbumTimeout <= 0 {
		cfg.AlbumTimeout = time.Minute
	}

	holder := uuid.New().String()
	return &EditReconciler{
		catalog:      catalog,
		replacements: replacements,
		editRepo:     editRepo,
		leaseRepo:    leaseRepo,
		directory:    directory,
		notifier:     notifier,
		matcher:      models.NewEditMatcher(cfg.EditMarker),
		cfg:          cfg,
		holder:       holder,
		stopChan:     make(chan struct{}),
		status:       ReconcilerStatus{Holder: holder},
	}
}

// SetEvents attaches an event publisher
func (r *EditReconciler) SetEvents(events EventPublisher) {
	r.events = events
}

// SetMetrics attaches business counters
func (r *EditReconciler) SetMetrics(m *observability.ProofingMetrics) {
	r.metrics = m
}

// Start begins the background reconcile loop
func (r *EditReconciler) Start() {
	r.mu.Lock()
	if r.ticker != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.enabled = true
	r.status.Enabled = true
	r.stopChan = make(chan struct{})
	r.cancel = cancel
	r.ticker = time.NewTicker(r.cfg.Interval)
	r.status.NextScheduledRun = time.Now().UTC().Add(r.cfg.Interval)
	ticker, stop := r.ticker, r.stopChan
	r.mu.Unlock()

	observability.WithField("interval", r.cfg.Interval.String()).Info("Edit reconciler started")

	go r.run(ctx)

	go func() {
		for {
			select {
			case <-ticker.C:
				r.mu.Lock()
				r.status.NextScheduledRun = time.Now().UTC().Add(r.cfg.Interval)
				r.mu.Unlock()
				r.run(ctx)
			case <-stop:
				ticker.Stop()
				observability.Info("Edit reconciler stopped")
				return
			}
		}
	}()
}

// Stop stops the loop and cancels an in-flight run
func (r *EditReconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker == nil {
		return
	}

	r.enabled = false
	r.status.Enabled = false
	r.ticker = nil
	r.cancel()
	close(r.stopChan)
}

// IsEnabled returns whether the background loop is running
func (r *EditReconciler) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// GetStatus returns the current reconciler status
func (r *EditReconciler) GetStatus() ReconcilerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// RunNow triggers an immediate run in the background
func (r *EditReconciler) RunNow() {
	go r.run(context.Background())
}

func (r *EditReconciler) run(ctx context.Context) {
	_, err := r.RunOnce(ctx, time.Now().UTC())
	if errors.Is(err, ErrReconcileInProgress) {
		observability.Debug("Reconcile already running, skipping")
		return
	}
	if err != nil {
		observability.WithError(err).Error("Reconcile run failed")
	}
}

// RunOnce performs one reconcile pass at now: detection, then the idle
// sweep, then expired-session cleanup. The pass is skipped when another
// holder owns the job lease.
func (r *EditReconciler) RunOnce(ctx context.Context, now time.Time) (*ReconcileSummary, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrReconcileInProgress
	}
	r.running = true
	r.status.Running = true
	r.mu.Unlock()

	summary := &ReconcileSummary{}
	startTime := time.Now()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.status.Running = false
		r.status.LastRun = now
		r.status.LastRunDuration = time.Since(startTime).Round(time.Millisecond).String()
		r.status.LastSummary = summary
		r.mu.Unlock()
	}()

	ctx, span := observability.StartServiceSpan(ctx, "EditReconciler", "Run")
	defer span.End()
	logger := observability.WithContext(ctx)

	claimed, err := r.leaseRepo.TryClaim(ctx, ReconcilerLeaseName, r.holder, now, r.cfg.LeaseTTL)
	if err != nil {
		observability.RecordError(span, err)
		r.metrics.RecordReconcileRun(ctx, "error")
		return summary, fmt.Errorf("claim reconciler lease: %w", err)
	}
	if !claimed {
		summary.Skipped = true
		logger.Debug("Reconciler lease held elsewhere, skipping run")
		r.metrics.RecordReconcileRun(ctx, "skipped")
		return summary, nil
	}
	defer func() {
		if err := r.leaseRepo.Release(context.WithoutCancel(ctx), ReconcilerLeaseName, r.holder); err != nil {
			logger.WithError(err).Warn("Failed to release reconciler lease")
		}
	}()

	r.detect(ctx, now, summary)
	r.sweep(ctx, now, summary)
	r.cleanupSessions(ctx, now, summary)

	outcome := "ok"
	if len(summary.Errors) > 0 {
		outcome = "partial"
	}
	r.metrics.RecordReconcileRun(ctx, outcome)
	r.publish(TopicReconciler, EventReconcileCompleted, summary)
	observability.SetSuccess(span)

	logger.WithFields(map[string]interface{}{
		"edits":        summary.EditsMatched,
		"replacements": summary.ReplacementsRecorded,
		"digests":      summary.DigestsSent,
		"failed":       summary.DigestsFailed,
		"errors":       len(summary.Errors),
	}).Info("Reconcile run completed")
	return summary, nil
}

// detect scans every album for edited files and records replacements.
// A replacement is recorded only after every album holding the original has
// been marked dirty, so a run that cannot do that leaves the edit pending
// for the next tick.
func (r *EditReconciler) detect(ctx context.Context, now time.Time, summary *ReconcileSummary) {
	logger := observability.WithContext(ctx)

	albums, err := r.catalog.ListAlbums(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list catalog albums")
		summary.addError("list albums: %v", err)
		return
	}

	scan := &albumScan{albumsOf: make(map[int64][]int64)}
	seen := make(map[int64]bool)
	var edited []models.CatalogImage

	for _, album := range albums {
		albumCtx, cancel := context.WithTimeout(ctx, r.cfg.AlbumTimeout)
		images, err := r.catalog.ListImages(albumCtx, album.ID)
		cancel()
		if err != nil {
			logger.WithError(err).WithField("album_id", album.ID).Warn("Failed to list album images")
			summary.addError("list images of album %d: %v", album.ID, err)
			scan.incomplete = true
			continue
		}

		for _, img := range images {
			scan.albumsOf[img.ID] = appendUnique(scan.albumsOf[img.ID], album.ID)
			if seen[img.ID] {
				continue
			}
			seen[img.ID] = true
			summary.ImagesScanned++
			if r.matcher.IsEdited(img.Filename) {
				edited = append(edited, img)
			}
		}
	}

	dirtied := make(map[int64]bool)
	for _, img := range edited {
		summary.EditsMatched++
		r.reconcileEdit(ctx, img, scan, now, summary, dirtied)
	}
	summary.AlbumsDirtied = len(dirtied)
}

// albumScan is the image to album membership seen by one run. It is
// incomplete when at least one album could not be listed.
type albumScan struct {
	albumsOf   map[int64][]int64
	incomplete bool
}

func (r *EditReconciler) reconcileEdit(
	ctx context.Context,
	edited models.CatalogImage,
	scan *albumScan,
	now time.Time,
	summary *ReconcileSummary,
	dirtied map[int64]bool,
) {
	logger := observability.WithContext(ctx).WithField("filename", edited.Filename)

	originalName, _ := r.matcher.OriginalName(edited.Filename)
	lookupCtx, cancel := context.WithTimeout(ctx, r.cfg.AlbumTimeout)
	original, err := r.catalog.FindImageByFilename(lookupCtx, originalName)
	cancel()
	if errors.Is(err, models.ErrNotFound) {
		summary.OrphanEdits++
		logger.Warn("Edited image has no original, skipping")
		return
	}
	if err != nil {
		logger.WithError(err).Warn("Failed to look up original image")
		summary.addError("find original of %s: %v", edited.Filename, err)
		return
	}
	if original.ID == edited.ID {
		return
	}
	logger = logger.WithFields(map[string]interface{}{
		"original_id": original.ID,
		"edited_id":   edited.ID,
	})

	current, err := r.replacements.Resolve(ctx, original.ID)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve replacement")
		summary.addError("resolve replacement of %d: %v", original.ID, err)
		return
	}
	if current != nil && *current == edited.ID {
		return
	}

	// Without a full listing some album holding the original may be
	// missing from the scan.
	if scan.incomplete {
		summary.DeferredEdits++
		logger.Warn("Album listing incomplete, deferring replacement to next run")
		return
	}

	albumIDs := scan.albumsOf[original.ID]
	for _, id := range original.AlbumIDs {
		albumIDs = appendUnique(albumIDs, id)
	}

	var touched []int64
	for _, albumID := range albumIDs {
		if err := r.editRepo.Touch(ctx, albumID, now); err != nil {
			logger.WithError(err).WithField("album_id", albumID).Error("Failed to mark album dirty")
			summary.addError("touch album %d: %v", albumID, err)
			summary.DeferredEdits++
			return
		}
		touched = append(touched, albumID)
	}

	outcome, err := r.replacements.RecordReplacement(ctx, original.ID, edited.ID, now)
	if err != nil {
		logger.WithError(err).Error("Failed to record replacement")
		summary.addError("record replacement %d -> %d: %v", original.ID, edited.ID, err)
		return
	}
	if !outcome.Dirties() {
		return
	}
	summary.ReplacementsRecorded++
	r.metrics.RecordReplacement(ctx, string(outcome))

	for _, albumID := range touched {
		dirtied[albumID] = true
		r.publish(AlbumTopic(albumID), EventReplacementDetected, ReplacementEvent{
			OriginalImageID: original.ID,
			EditedImageID:   edited.ID,
			Outcome:         string(outcome),
			AlbumIDs:        albumIDs,
		})
	}

	logger.WithField("outcome", string(outcome)).Info("Replacement recorded")
}

// sweep sends digests for albums whose edits have been quiet for the idle
// threshold. A failed album is left untouched so the next run retries it.
func (r *EditReconciler) sweep(ctx context.Context, now time.Time, summary *ReconcileSummary) {
	ctx, span := observability.StartServiceSpan(ctx, "EditReconciler", "Sweep")
	defer span.End()
	logger := observability.WithContext(ctx)

	states, err := r.editRepo.List(ctx)
	if err != nil {
		observability.RecordError(span, err)
		logger.WithError(err).Error("Failed to list album edit states")
		summary.addError("list edit states: %v", err)
		return
	}

	for _, st := range states {
		if !st.IsEligible(now, r.cfg.IdleThreshold) {
			continue
		}

		recipients, err := r.notifyAlbum(ctx, st.AlbumID, now)
		if err != nil {
			summary.DigestsFailed++
			r.metrics.RecordDigest(ctx, st.AlbumID, false)
			logger.WithError(err).WithField("album_id", st.AlbumID).Warn("Edited digest failed, will retry")
			summary.addError("digest for album %d: %v", st.AlbumID, err)
			r.publish(AlbumTopic(st.AlbumID), EventDigestFailed, DigestEvent{
				AlbumID:    st.AlbumID,
				Recipients: recipients,
				Error:      err.Error(),
			})
			continue
		}

		if err := r.editRepo.MarkNotified(ctx, st.AlbumID, now); err != nil {
			logger.WithError(err).WithField("album_id", st.AlbumID).Error("Failed to mark album notified")
			summary.addError("mark album %d notified: %v", st.AlbumID, err)
			continue
		}
		summary.DigestsSent++
		r.metrics.RecordDigest(ctx, st.AlbumID, true)
		r.publish(AlbumTopic(st.AlbumID), EventDigestSent, DigestEvent{
			AlbumID:    st.AlbumID,
			Recipients: recipients,
		})
	}
}

// notifyAlbum sends one digest per recipient email and reports how many
// recipients there were. Any failed send fails the album.
func (r *EditReconciler) notifyAlbum(ctx context.Context, albumID int64, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.AlbumTimeout)
	defer cancel()

	recipients, err := r.directory.RecipientsForAlbum(ctx, albumID, now)
	if err != nil {
		return 0, fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	var title string
	album, err := r.catalog.GetAlbum(ctx, albumID)
	switch {
	case err == nil:
		title = album.Title
	case !errors.Is(err, models.ErrNotFound):
		return len(recipients), fmt.Errorf("get album: %w", err)
	}

	var errs []error
	for _, rcpt := range recipients {
		err := r.notifier.SendEditedDigest(ctx, EditedDigestMessage{
			Email:        rcpt.Email,
			ClientName:   rcpt.Name,
			AlbumTitle:   title,
			SessionLinks: rcpt.Links,
			LandingLink:  rcpt.LandingLink,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", rcpt.Email, err))
		}
	}
	return len(recipients), errors.Join(errs...)
}

func (r *EditReconciler) cleanupSessions(ctx context.Context, now time.Time, summary *ReconcileSummary) {
	if r.cfg.SessionRetention <= 0 {
		return
	}
	removed, err := r.directory.CleanupExpired(ctx, now.Add(-r.cfg.SessionRetention))
	if err != nil {
		observability.WithContext(ctx).WithError(err).Warn("Failed to remove expired sessions")
		summary.addError("cleanup sessions: %v", err)
		return
	}
	summary.SessionsRemoved = removed
	if removed > 0 {
		observability.WithContext(ctx).Infof("Removed %d expired sessions", removed)
	}
}

func (r *EditReconciler) publish(topic, eventType string, payload interface{}) {
	if r.events != nil {
		r.events.Publish(topic, eventType, payload)
	}
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
