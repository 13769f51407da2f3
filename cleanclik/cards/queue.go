package cards

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cleanclik/core/cleanclik/database/models"
	"github.com/cleanclik/core/cleanclik/database/repositories"
)

var (
	ErrRendering     = errors.New("card rendering failed")
	ErrDelivery      = errors.New("card delivery failed")
	ErrNotCancelable = errors.New("card job can no longer be cancelled")
	ErrNotOwner      = errors.New("card job belongs to another user")
	ErrInvalidInput  = errors.New("invalid card request")
)

const (
	defaultMaxRetries    = 3
	defaultRetryBackoff  = 2 * time.Second
	defaultRenderTimeout = 15 * time.Second
	defaultResultTTL     = time.Hour
	jobIDLength          = 8
)

// Request is one share action. An empty Kind means "rotate": the engine
// picks the next template in the user's persisted cycle.
type Request struct {
	UserID   string
	Kind     TemplateKind
	Platform PlatformTarget
}

// Result is what the caller gets back: a finished artifact, a queued job
// handle, or a terminal failure.
type Result struct {
	JobID    string               `json:"job_id"`
	UserID   string               `json:"-"`
	Status   models.CardJobStatus `json:"status"`
	Template TemplateKind         `json:"template"`
	Platform PlatformTarget       `json:"platform"`
	ShareURL string               `json:"share_url,omitempty"`
	Image    []byte               `json:"-"`
	Error    string               `json:"error,omitempty"`
}

// Deliverer hands a finished artifact to the share surface and returns its
// public URL.
type Deliverer interface {
	Deliver(ctx context.Context, userID, jobID string, platform PlatformTarget, image []byte) (string, error)
}

type Config struct {
	MaxRetries    int
	RetryBackoff  time.Duration
	RenderTimeout time.Duration
	ResultTTL     time.Duration
	AppLink       string
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = defaultRenderTimeout
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = defaultResultTTL
	}
	return c
}

// Generator runs card generation end to end: aggregate, render, deliver.
// When aggregation hits connectivity loss the request is frozen into a
// durable queued job and drained later by the background worker.
type Generator struct {
	jobs      repositories.CardJobRepository
	rotator   *Rotator
	agg       *Aggregator
	assets    *AssetCache
	renderer  Renderer
	deliverer Deliverer
	cfg       Config

	online atomic.Bool
	wake   chan struct{}
	// results records terminal outcomes of drained jobs for a TTL window.
	// In-memory only: after a restart Status reports drained jobs as not
	// found, since their durable rows are gone.
	results sync.Map // jobID -> drainedResult
	idGenMu sync.Mutex
	logger  *slog.Logger
}

type drainedResult struct {
	res     Result
	expires time.Time
}

func NewGenerator(
	jobs repositories.CardJobRepository,
	rotator *Rotator,
	agg *Aggregator,
	assets *AssetCache,
	renderer Renderer,
	deliverer Deliverer,
	cfg Config,
) *Generator {
	if jobs == nil {
		panic("card job repository cannot be nil")
	}
	if rotator == nil {
		panic("rotator cannot be nil")
	}
	if agg == nil {
		panic("aggregator cannot be nil")
	}
	if assets == nil {
		panic("asset cache cannot be nil")
	}
	if renderer == nil {
		panic("renderer cannot be nil")
	}
	if deliverer == nil {
		panic("deliverer cannot be nil")
	}

	g := &Generator{
		jobs:      jobs,
		rotator:   rotator,
		agg:       agg,
		assets:    assets,
		renderer:  renderer,
		deliverer: deliverer,
		cfg:       cfg.withDefaults(),
		wake:      make(chan struct{}, 1),
		logger:    slog.With(slog.String("service", "card_queue")),
	}
	g.online.Store(true)
	return g
}

// Generate runs one share request. Happy path returns a Ready result with
// the artifact and its share URL; connectivity loss during aggregation
// returns a Queued result instead.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidInput)
	}
	if !ValidPlatform(string(req.Platform)) {
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, req.Platform)
	}
	if !ValidKind(string(req.Kind)) {
		return nil, fmt.Errorf("%w: unknown template %q", ErrInvalidInput, req.Kind)
	}

	start := time.Now()

	kind := req.Kind
	rotated := kind == ""
	if rotated {
		kind = g.rotator.Next(ctx, req.UserID)
	}

	snap, err := g.agg.Snapshot(ctx, req.UserID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Connectivity-class failure: freeze what we have and defer
		result, enqErr := g.enqueue(ctx, req, kind, err)
		if enqErr == nil && rotated {
			g.rotator.Commit(ctx, req.UserID)
		}
		return result, enqErr
	}

	image, err := g.renderWithRetry(ctx, kind, req.Platform, snap)
	if err != nil {
		return nil, err
	}

	jobID := g.generateJobID()
	shareURL, err := g.deliverer.Deliver(ctx, req.UserID, jobID, req.Platform, image)
	if err != nil {
		g.logger.Error("Card delivery rejected",
			slog.String("job_id", jobID),
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	if rotated {
		g.rotator.Commit(ctx, req.UserID)
	}

	g.logger.Info("Card generated",
		slog.String("job_id", jobID),
		slog.String("user_id", req.UserID),
		slog.String("template", string(kind)),
		slog.String("platform", string(req.Platform)),
		slog.Duration("took", time.Since(start)))

	return &Result{
		JobID:    jobID,
		UserID:   req.UserID,
		Status:   models.CardJobStatusReady,
		Template: kind,
		Platform: req.Platform,
		ShareURL: shareURL,
		Image:    image,
	}, nil
}

func (g *Generator) enqueue(ctx context.Context, req Request, kind TemplateKind, cause error) (*Result, error) {
	snap, ok := g.agg.LastGood(req.UserID)
	if !ok {
		snap = models.StatsSnapshot{
			UserID:     req.UserID,
			Level:      1,
			CapturedAt: time.Now(),
		}
		g.logger.Warn("No cached stats for offline card, freezing minimal snapshot",
			slog.String("user_id", req.UserID))
	}

	job := &models.CardJob{
		JobID:       g.generateJobID(),
		UserID:      req.UserID,
		Template:    string(kind),
		Platform:    string(req.Platform),
		Status:      models.CardJobStatusQueued,
		Snapshot:    snap,
		NextRetryAt: time.Now(),
	}

	if err := g.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to queue card job: %w", err)
	}

	g.SetOnline(false)

	g.logger.Info("Card job queued for later delivery",
		slog.String("job_id", job.JobID),
		slog.String("user_id", req.UserID),
		slog.String("template", string(kind)),
		slog.String("cause", cause.Error()))

	return &Result{
		JobID:    job.JobID,
		UserID:   req.UserID,
		Status:   models.CardJobStatusQueued,
		Template: kind,
		Platform: req.Platform,
	}, nil
}

// Status reports the state of a job: a live queue row, or the recorded
// outcome of a drained one.
func (g *Generator) Status(ctx context.Context, jobID, userID string) (*Result, error) {
	if v, ok := g.results.Load(jobID); ok {
		drained := v.(drainedResult)
		if time.Now().Before(drained.expires) {
			if drained.res.UserID != userID {
				return nil, ErrNotOwner
			}
			result := drained.res
			return &result, nil
		}
		g.results.Delete(jobID)
	}

	job, err := g.jobs.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrNotOwner
	}

	return &Result{
		JobID:    job.JobID,
		UserID:   job.UserID,
		Status:   job.Status,
		Template: TemplateKind(job.Template),
		Platform: PlatformTarget(job.Platform),
	}, nil
}

// Cancel removes a queued job. Jobs that already reached a terminal state
// cannot be cancelled.
func (g *Generator) Cancel(ctx context.Context, jobID, userID string) error {
	job, err := g.jobs.GetByJobID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.UserID != userID {
		return ErrNotOwner
	}
	if job.Status != models.CardJobStatusQueued {
		return ErrNotCancelable
	}

	if err := g.jobs.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to cancel card job: %w", err)
	}

	g.logger.Info("Card job cancelled",
		slog.String("job_id", jobID),
		slog.String("user_id", userID))
	return nil
}

// SetOnline records connectivity state; an offline-to-online transition
// wakes the drain worker.
func (g *Generator) SetOnline(online bool) {
	prev := g.online.Swap(online)
	if online && !prev {
		select {
		case g.wake <- struct{}{}:
		default:
		}
	}
}

// Start launches the drain worker. It runs once at startup to resume
// persisted jobs, then on every connectivity-restored signal and whenever a
// deferred retry comes due.
func (g *Generator) Start(ctx context.Context) {
	go g.drainLoop(ctx)
}

func (g *Generator) drainLoop(ctx context.Context) {
	g.logger.Info("Card queue drain worker started", slog.String("type", "job"))

	for {
		next := g.drain(ctx)

		var timerC <-chan time.Time
		if !next.IsZero() {
			timerC = time.After(time.Until(next))
		}

		select {
		case <-ctx.Done():
			g.logger.Info("Card queue drain worker stopped", slog.String("type", "job"))
			return
		case <-g.wake:
		case <-timerC:
		}
	}
}

// drain processes pending jobs in per-user enqueue order and returns the
// earliest deferred retry time, or zero when nothing is waiting on a timer.
func (g *Generator) drain(ctx context.Context) time.Time {
	g.sweepResults()

	if !g.online.Load() {
		return time.Time{}
	}

	pending, err := g.jobs.GetPending(ctx)
	if err != nil {
		g.logger.Error("Failed to load pending card jobs",
			slog.String("type", "job"),
			slog.String("error", err.Error()))
		return time.Time{}
	}
	if len(pending) == 0 {
		return time.Time{}
	}

	now := time.Now()
	var earliest time.Time
	deferEarliest := func(t time.Time) {
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}

	// A deferred job blocks the rest of that user's queue so per-user
	// enqueue order holds.
	blocked := make(map[string]bool)

	for _, job := range pending {
		if ctx.Err() != nil {
			return time.Time{}
		}
		if blocked[job.UserID] {
			continue
		}
		if job.NextRetryAt.After(now) {
			blocked[job.UserID] = true
			deferEarliest(job.NextRetryAt)
			continue
		}

		if retryAt, done := g.drainJob(ctx, job); !done {
			blocked[job.UserID] = true
			deferEarliest(retryAt)
		}
	}

	return earliest
}

// drainJob renders one queued job from its frozen snapshot. Returns done =
// false with the next retry time when the job stays queued.
func (g *Generator) drainJob(ctx context.Context, job *models.CardJob) (time.Time, bool) {
	kind := TemplateKind(job.Template)
	platform := PlatformTarget(job.Platform)

	image, err := g.renderOnce(ctx, kind, platform, job.Snapshot)
	if err != nil {
		retries := job.RetryCount + 1
		if retries > g.cfg.MaxRetries {
			g.finishJob(job, Result{
				JobID:    job.JobID,
				UserID:   job.UserID,
				Status:   models.CardJobStatusFailed,
				Template: kind,
				Platform: platform,
				Error:    fmt.Sprintf("rendering failed after %d attempts", retries),
			})
			g.logger.Error("Card job failed permanently",
				slog.String("type", "job"),
				slog.String("job_id", job.JobID),
				slog.Int("attempts", retries),
				slog.String("error", err.Error()))
			return time.Time{}, true
		}

		retryAt := time.Now().Add(g.backoff(job.RetryCount))
		if bumpErr := g.jobs.BumpRetry(ctx, job.JobID, retryAt); bumpErr != nil {
			g.logger.Error("Failed to record card job retry",
				slog.String("type", "job"),
				slog.String("job_id", job.JobID),
				slog.String("error", bumpErr.Error()))
		}
		g.logger.Warn("Card job render failed, will retry",
			slog.String("type", "job"),
			slog.String("job_id", job.JobID),
			slog.Int("retry", retries),
			slog.String("error", err.Error()))
		return retryAt, false
	}

	shareURL, err := g.deliverer.Deliver(ctx, job.UserID, job.JobID, platform, image)
	if err != nil {
		// Delivery is a user-facing action; surface it instead of retrying
		g.finishJob(job, Result{
			JobID:    job.JobID,
			UserID:   job.UserID,
			Status:   models.CardJobStatusFailed,
			Template: kind,
			Platform: platform,
			Error:    fmt.Sprintf("delivery failed: %v", err),
		})
		g.logger.Error("Card job delivery rejected",
			slog.String("type", "job"),
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()))
		return time.Time{}, true
	}

	g.finishJob(job, Result{
		JobID:    job.JobID,
		UserID:   job.UserID,
		Status:   models.CardJobStatusReady,
		Template: kind,
		Platform: platform,
		ShareURL: shareURL,
	})
	g.logger.Info("Queued card delivered",
		slog.String("type", "job"),
		slog.String("job_id", job.JobID),
		slog.String("user_id", job.UserID),
		slog.String("share_url", shareURL))
	return time.Time{}, true
}

// finishJob records a terminal outcome and removes the durable row.
func (g *Generator) finishJob(job *models.CardJob, result Result) {
	g.results.Store(job.JobID, drainedResult{
		res:     result,
		expires: time.Now().Add(g.cfg.ResultTTL),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.jobs.Delete(ctx, job.JobID); err != nil {
		g.logger.Error("Failed to remove finished card job",
			slog.String("type", "job"),
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()))
	}
}

// sweepResults drops drained outcomes past their retention window so the
// result map stays bounded.
func (g *Generator) sweepResults() {
	now := time.Now()
	g.results.Range(func(key, value any) bool {
		if now.After(value.(drainedResult).expires) {
			g.results.Delete(key)
		}
		return true
	})
}

func (g *Generator) renderWithRetry(ctx context.Context, kind TemplateKind, platform PlatformTarget, snap models.StatsSnapshot) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.backoff(attempt - 1)):
			}
		}

		image, err := g.renderOnce(ctx, kind, platform, snap)
		if err == nil {
			return image, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrRendering, lastErr)
}

func (g *Generator) renderOnce(ctx context.Context, kind TemplateKind, platform PlatformTarget, snap models.StatsSnapshot) ([]byte, error) {
	asset, err := g.assets.Get(ctx, kind, platform)
	if err != nil {
		return nil, err
	}

	content, err := ComposeContent(snap, kind, g.cfg.AppLink)
	if err != nil {
		return nil, err
	}

	renderCtx, cancel := context.WithTimeout(ctx, g.cfg.RenderTimeout)
	defer cancel()

	return g.renderer.Render(renderCtx, asset, content)
}

// backoff doubles per retry, capped at one minute.
func (g *Generator) backoff(retries int) time.Duration {
	d := g.cfg.RetryBackoff << uint(retries)
	if d > time.Minute {
		d = time.Minute
	}
	return d
}

func (g *Generator) generateJobID() string {
	g.idGenMu.Lock()
	defer g.idGenMu.Unlock()

	bytes := make([]byte, jobIDLength)
	if _, err := rand.Read(bytes); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to a timestamp id rather than aborting the share
		return fmt.Sprintf("card%d", time.Now().UnixNano())
	}
	return strings.ToLower(strings.TrimRight(base32.StdEncoding.EncodeToString(bytes), "="))
}
