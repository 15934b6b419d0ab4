package draft

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
)

// DefaultSuccessTTL is how long ReadmeSuccess stays set after an enrichment
const DefaultSuccessTTL = 5 * time.Second

// Fetcher retrieves a README for an endpoint URL. ok is false when there is
// nothing to apply, for any reason.
type Fetcher interface {
	FetchReadme(ctx context.Context, endpointUrl string) (content string, ok bool)
}

// Scheduler runs enrichment work off the caller's goroutine. Schedule must
// not call run before returning.
type Scheduler interface {
	Schedule(name string, run func(ctx context.Context)) error
}

// Saver commits a draft to the store
type Saver interface {
	CreateServer(ctx context.Context, listing models.ServerListing) (models.ServerListing, error)
	UpdateServer(ctx context.Context, id string, patch models.ServerPatch) (models.ServerListing, error)
}

// Deps are the collaborators of a draft
type Deps struct {
	Fetcher   Fetcher
	Scheduler Scheduler // nil runs each enrichment in its own goroutine
}

// Option configures a draft
type Option func(*Draft)

// WithSuccessTTL overrides DefaultSuccessTTL
func WithSuccessTTL(d time.Duration) Option {
	return func(dr *Draft) { dr.successTTL = d }
}

// WithId sets the draft id instead of generating one
func WithId(id string) Option {
	return func(dr *Draft) { dr.id = id }
}

type goScheduler struct{}

func (goScheduler) Schedule(_ string, run func(ctx context.Context)) error {
	go run(context.Background())
	return nil
}

// Draft is a local, unsaved copy of a listing under edit. It watches the
// endpoint URL and fills Documentation from the repository README.
type Draft struct {
	id         string
	mode       models.DraftMode
	fetcher    Fetcher
	scheduler  Scheduler
	successTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	idle     *sync.Cond
	listing  models.ServerListing
	original models.ServerListing

	// watermark is the last URL whose enrichment completed, requested the
	// last URL an enrichment was started for.
	watermark  string
	requested  string
	generation uint64
	inflight   int

	loadingReadme bool
	readmeSuccess bool
	successTimer  *time.Timer
	saving        bool
	saved         bool
	errMsg        string
	fieldErrors   map[string]string
	updatedAt     time.Time
	closed        bool

	subscribers map[int]func(models.DraftSnapshot)
	nextSub     int
}

// NewCreateDraft starts a registration draft carrying the defaults
func NewCreateDraft(ownerId string, deps Deps, opts ...Option) *Draft {
	d := newDraft(models.DraftCreate, deps, opts)
	d.listing = models.NewServerListing(ownerId)
	return d
}

// NewEditDraft starts an edit of an existing listing. An existing endpoint
// URL is enriched right away since nothing has been fetched yet.
func NewEditDraft(listing models.ServerListing, deps Deps, opts ...Option) *Draft {
	d := newDraft(models.DraftEdit, deps, opts)
	d.original = listing.Clone()
	d.listing = listing.Clone()
	d.mu.Lock()
	d.maybeEnrichLocked()
	d.mu.Unlock()
	return d
}

func newDraft(mode models.DraftMode, deps Deps, opts []Option) *Draft {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Draft{
		id:          uuid.NewString(),
		mode:        mode,
		fetcher:     deps.Fetcher,
		scheduler:   deps.Scheduler,
		successTTL:  DefaultSuccessTTL,
		ctx:         ctx,
		cancel:      cancel,
		updatedAt:   time.Now().UTC(),
		subscribers: map[int]func(models.DraftSnapshot){},
	}
	d.idle = sync.NewCond(&d.mu)
	if d.scheduler == nil {
		d.scheduler = goScheduler{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Id returns the draft id
func (d *Draft) Id() string { return d.id }

// Mode returns whether the draft registers or edits a listing
func (d *Draft) Mode() models.DraftMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// OwnerId returns the owner of the listing under edit
func (d *Draft) OwnerId() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listing.OwnerId
}

// Listing returns a copy of the current draft listing
func (d *Draft) Listing() models.ServerListing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listing.Clone()
}

func (d *Draft) SetName(v string) {
	d.edit(func(l *models.ServerListing) { l.Name = v })
}

func (d *Draft) SetDescription(v string) {
	d.edit(func(l *models.ServerListing) { l.Description = v })
}

// SetEndpointUrl changes the endpoint and may start an enrichment
func (d *Draft) SetEndpointUrl(v string) {
	d.edit(func(l *models.ServerListing) { l.EndpointUrl = strings.TrimSpace(v) })
}

func (d *Draft) SetProtocolVersion(v string) {
	d.edit(func(l *models.ServerListing) { l.ProtocolVersion = v })
}

// SetDocumentation edits the markdown. A later successful enrichment
// still replaces it.
func (d *Draft) SetDocumentation(v string) {
	d.edit(func(l *models.ServerListing) { l.Documentation = v })
}

func (d *Draft) SetStatus(v models.ServerStatus) {
	d.edit(func(l *models.ServerListing) { l.Status = v })
}

// AddTag appends a tag unless it is empty or already present
func (d *Draft) AddTag(tag string) {
	d.edit(func(l *models.ServerListing) {
		l.Tags = models.NormalizeTags(append(append([]string{}, l.Tags...), tag))
	})
}

func (d *Draft) RemoveTag(tag string) {
	d.edit(func(l *models.ServerListing) {
		l.Tags = lo.Without(l.Tags, tag)
	})
}

// Apply writes every field set in p
func (d *Draft) Apply(p models.ServerPatch) {
	d.edit(func(l *models.ServerListing) {
		if p.EndpointUrl != nil {
			p.EndpointUrl = lo.ToPtr(strings.TrimSpace(*p.EndpointUrl))
		}
		p.ApplyTo(l)
	})
}

func (d *Draft) edit(fn func(l *models.ServerListing)) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	fn(&d.listing)
	d.saved = false
	d.maybeEnrichLocked()
	snap, subs := d.changedLocked()
	d.mu.Unlock()

	publish(subs, snap)
}

// maybeEnrichLocked starts an enrichment when the endpoint is non-empty
// and differs from both the watermark and the URL already being fetched.
func (d *Draft) maybeEnrichLocked() {
	url := d.listing.EndpointUrl
	if d.closed || url == d.requested {
		return
	}
	if url == "" || url == d.watermark {
		// the endpoint moved away from the URL being fetched
		if d.requested != "" {
			d.generation++
			d.requested = ""
			d.loadingReadme = false
		}
		return
	}

	d.generation++
	gen := d.generation
	d.requested = url
	d.loadingReadme = true
	d.readmeSuccess = false
	d.inflight++

	logger.WithFields(map[string]interface{}{
		"draft_id":   d.id,
		"url":        url,
		"generation": gen,
	}).Debug("Starting README enrichment")

	err := d.scheduler.Schedule("readme:"+d.id, func(ctx context.Context) {
		d.enrich(ctx, gen, url)
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"draft_id": d.id,
			"url":      url,
			"error":    err.Error(),
		}).Warn("Failed to schedule README enrichment")
		d.finishLocked(gen, url, "", false)
	}
}

func (d *Draft) enrich(taskCtx context.Context, gen uint64, url string) {
	ctx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(taskCtx, cancel)
	defer stop()

	var content string
	var ok bool
	if d.fetcher != nil && ctx.Err() == nil {
		content, ok = d.fetcher.FetchReadme(ctx, url)
	}

	d.mu.Lock()
	applied := d.finishLocked(gen, url, content, ok)
	var snap models.DraftSnapshot
	var subs []func(models.DraftSnapshot)
	if applied {
		snap, subs = d.changedLocked()
	}
	d.mu.Unlock()

	publish(subs, snap)
}

// finishLocked records the end of an enrichment. Only the current
// generation is applied; it reports whether state changed.
func (d *Draft) finishLocked(gen uint64, url, content string, ok bool) bool {
	d.inflight--
	defer d.idle.Broadcast()

	if d.closed || gen != d.generation {
		logger.WithFields(map[string]interface{}{
			"draft_id":   d.id,
			"url":        url,
			"generation": gen,
			"current":    d.generation,
		}).Debug("Discarding superseded README enrichment")
		return false
	}

	d.watermark = url
	d.requested = ""
	d.loadingReadme = false

	if !ok || content == "" {
		logger.WithFields(map[string]interface{}{
			"draft_id": d.id,
			"url":      url,
		}).Debug("No README applied")
		return true
	}

	d.listing.Documentation = content
	d.readmeSuccess = true
	if d.successTimer != nil {
		d.successTimer.Stop()
	}
	d.successTimer = time.AfterFunc(d.successTTL, func() { d.clearSuccess(gen) })

	logger.WithFields(map[string]interface{}{
		"draft_id": d.id,
		"url":      url,
		"bytes":    len(content),
	}).Info("README applied to draft")
	return true
}

func (d *Draft) clearSuccess(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.generation || !d.readmeSuccess {
		d.mu.Unlock()
		return
	}
	d.readmeSuccess = false
	snap, subs := d.changedLocked()
	d.mu.Unlock()

	publish(subs, snap)
}

// Validate checks the draft without saving it
func (d *Draft) Validate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fields := ValidateListing(d.listing); fields != nil {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Save validates the draft and commits it through saver. A registration
// becomes an edit of the stored listing once it has been created.
func (d *Draft) Save(ctx context.Context, saver Saver) (models.ServerListing, error) {
	d.mu.Lock()
	switch {
	case d.closed:
		d.mu.Unlock()
		return models.ServerListing{}, ErrClosed
	case d.saving:
		d.mu.Unlock()
		return models.ServerListing{}, ErrSaveInProgress
	case d.mode == models.DraftCreate && d.listing.OwnerId == "":
		d.errMsg = ErrNotSignedIn.Error()
		snap, subs := d.changedLocked()
		d.mu.Unlock()
		publish(subs, snap)
		return models.ServerListing{}, ErrNotSignedIn
	}

	if fields := ValidateListing(d.listing); fields != nil {
		d.fieldErrors = fields
		d.errMsg = ""
		snap, subs := d.changedLocked()
		d.mu.Unlock()
		publish(subs, snap)
		return models.ServerListing{}, &ValidationError{Fields: fields}
	}

	d.saving = true
	d.errMsg = ""
	d.fieldErrors = nil
	mode := d.mode
	listing := d.listing.Clone()
	original := d.original.Clone()
	snap, subs := d.changedLocked()
	d.mu.Unlock()
	publish(subs, snap)

	var stored models.ServerListing
	var err error
	if mode == models.DraftCreate {
		stored, err = saver.CreateServer(ctx, listing)
	} else {
		stored, err = saver.UpdateServer(ctx, original.Id, models.DiffListings(original, listing))
	}

	d.mu.Lock()
	d.saving = false
	if err != nil {
		d.errMsg = err.Error()
		var fe fieldErrorer
		if errors.As(err, &fe) {
			d.fieldErrors = fe.FieldErrors()
		}
		logger.WithFields(map[string]interface{}{
			"draft_id": d.id,
			"mode":     mode,
			"error":    err.Error(),
		}).Warn("Failed to save draft")
	} else {
		d.saved = true
		d.mode = models.DraftEdit
		d.original = stored.Clone()
		d.listing.Id = stored.Id
		d.listing.OwnerId = stored.OwnerId
		d.listing.CreatedAt = stored.CreatedAt
		d.listing.UpdatedAt = stored.UpdatedAt
	}
	snap, subs = d.changedLocked()
	d.mu.Unlock()
	publish(subs, snap)

	if err != nil {
		return models.ServerListing{}, err
	}
	return stored, nil
}

// Snapshot returns a copy of the draft state
func (d *Draft) Snapshot() models.DraftSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Draft) snapshotLocked() models.DraftSnapshot {
	var fields map[string]string
	if d.fieldErrors != nil {
		fields = make(map[string]string, len(d.fieldErrors))
		for k, v := range d.fieldErrors {
			fields[k] = v
		}
	}
	listing := d.listing.Clone()
	return models.DraftSnapshot{
		Id:            d.id,
		Mode:          d.mode,
		ServerId:      d.original.Id,
		Listing:       listing.ToResponse(),
		LoadingReadme: d.loadingReadme,
		ReadmeSuccess: d.readmeSuccess,
		Saving:        d.saving,
		Saved:         d.saved,
		Error:         d.errMsg,
		FieldErrors:   fields,
		UpdatedAt:     d.updatedAt,
	}
}

// Subscribe registers fn to receive a snapshot after every change
func (d *Draft) Subscribe(fn func(models.DraftSnapshot)) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := d.nextSub
	d.nextSub++
	d.subscribers[key] = fn
	return func() {
		d.mu.Lock()
		delete(d.subscribers, key)
		d.mu.Unlock()
	}
}

func (d *Draft) changedLocked() (models.DraftSnapshot, []func(models.DraftSnapshot)) {
	d.updatedAt = time.Now().UTC()
	if len(d.subscribers) == 0 {
		return models.DraftSnapshot{}, nil
	}
	return d.snapshotLocked(), lo.Values(d.subscribers)
}

func publish(subs []func(models.DraftSnapshot), snap models.DraftSnapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

// Wait blocks until no enrichment is in flight or the draft is closed
func (d *Draft) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.inflight > 0 && !d.closed {
		d.idle.Wait()
	}
}

// Close cancels in-flight enrichment and stops the success timer
func (d *Draft) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.loadingReadme = false
	d.cancel()
	if d.successTimer != nil {
		d.successTimer.Stop()
	}
	d.subscribers = map[int]func(models.DraftSnapshot){}
	d.idle.Broadcast()
}

// Closed reports whether Close has been called
func (d *Draft) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
