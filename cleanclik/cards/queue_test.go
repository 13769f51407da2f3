package cards

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanclik/core/cleanclik/database/models"
	"github.com/cleanclik/core/cleanclik/database/repositories"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.CardJob
	seq  int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.CardJob)}
}

func (f *fakeJobStore) Create(ctx context.Context, job *models.CardJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	job.CreatedAt = time.Now().Add(time.Duration(f.seq) * time.Millisecond)
	clone := *job
	f.jobs[job.JobID] = &clone
	return nil
}

func (f *fakeJobStore) GetByJobID(ctx context.Context, jobID string) (*models.CardJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, repositories.ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobStore) GetPending(ctx context.Context) ([]*models.CardJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []*models.CardJob
	for _, job := range f.jobs {
		if job.Status == models.CardJobStatusQueued {
			clone := *job
			pending = append(pending, &clone)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].UserID != pending[j].UserID {
			return pending[i].UserID < pending[j].UserID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (f *fakeJobStore) BumpRetry(ctx context.Context, jobID string, nextRetryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return repositories.ErrJobNotFound
	}
	job.RetryCount++
	job.NextRetryAt = nextRetryAt
	return nil
}

func (f *fakeJobStore) Delete(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, jobID)
	return nil
}

func (f *fakeJobStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *fakeJobStore) resetRetryTimers() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		job.NextRetryAt = time.Now().Add(-time.Second)
	}
}

type fakeProfiles struct {
	mu     sync.Mutex
	user   *models.User
	weekly int64
	err    error
}

func (f *fakeProfiles) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	clone := *f.user
	return &clone, nil
}

func (f *fakeProfiles) GetPointsInWindow(ctx context.Context, userID string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.weekly, nil
}

func (f *fakeProfiles) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProfiles) setPoints(points int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user.TotalPoints = points
}

type fakeAchievements struct {
	title string
	err   error
}

func (f *fakeAchievements) LatestAchievement(ctx context.Context, userID string) (string, error) {
	return f.title, f.err
}

type fakeRenderer struct {
	mu          sync.Mutex
	failures    int
	calls       int
	lastContent CardContent
}

func (f *fakeRenderer) Render(ctx context.Context, asset *TemplateAsset, content CardContent) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("headless browser crashed")
	}
	f.lastContent = content
	return []byte("png-bytes-" + string(asset.Kind)), nil
}

type fakeDeliverer struct {
	mu     sync.Mutex
	err    error
	jobIDs []string
	users  []string
}

func (f *fakeDeliverer) Deliver(ctx context.Context, userID, jobID string, platform PlatformTarget, image []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.jobIDs = append(f.jobIDs, jobID)
	f.users = append(f.users, userID)
	return fmt.Sprintf("https://cdn.example.com/cards/%s_%s.png", jobID, platform), nil
}

type generatorFixture struct {
	gen       *Generator
	jobs      *fakeJobStore
	profiles  *fakeProfiles
	renderer  *fakeRenderer
	deliverer *fakeDeliverer
}

func newGeneratorFixture(t *testing.T, maxRetries int) *generatorFixture {
	t.Helper()

	jobs := newFakeJobStore()
	profiles := &fakeProfiles{
		user: &models.User{
			ID:             "u1",
			DisplayName:    "Aki",
			TotalPoints:    1200,
			CurrentStreak:  3,
			ItemsCollected: 42,
			CO2SavedGrams:  3500,
		},
		weekly: 320,
	}
	renderer := &fakeRenderer{}
	deliverer := &fakeDeliverer{}

	assets, err := NewAssetCache(0)
	require.NoError(t, err)

	gen := NewGenerator(
		jobs,
		NewRotator(&fakeRotationStore{}),
		NewAggregator(profiles, &fakeAchievements{title: "Eco Warrior"}),
		assets,
		renderer,
		deliverer,
		Config{
			MaxRetries:   maxRetries,
			RetryBackoff: time.Millisecond,
			AppLink:      "https://cleanclik.app/join",
		},
	)

	return &generatorFixture{
		gen:       gen,
		jobs:      jobs,
		profiles:  profiles,
		renderer:  renderer,
		deliverer: deliverer,
	}
}

func TestGenerator_Generate_HappyPath(t *testing.T) {
	fx := newGeneratorFixture(t, 3)

	result, err := fx.gen.Generate(context.Background(), Request{
		UserID:   "u1",
		Kind:     TemplateImpact,
		Platform: PlatformSquare,
	})
	require.NoError(t, err)

	assert.Equal(t, models.CardJobStatusReady, result.Status)
	assert.Equal(t, TemplateImpact, result.Template)
	assert.NotEmpty(t, result.JobID)
	assert.NotEmpty(t, result.ShareURL)
	assert.NotEmpty(t, result.Image)
	assert.Equal(t, []string{"u1"}, fx.deliverer.users)
	// Nothing was queued
	assert.Equal(t, 0, fx.jobs.count())
}

func TestGenerator_Generate_ImpactCardEndToEnd(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	fx.gen.agg = NewAggregator(fx.profiles, &fakeAchievements{title: "First Cleanup"})

	result, err := fx.gen.Generate(context.Background(), Request{
		UserID:   "u1",
		Kind:     TemplateImpact,
		Platform: PlatformSquare,
	})
	require.NoError(t, err)
	require.Equal(t, models.CardJobStatusReady, result.Status)

	content := fx.renderer.lastContent
	assert.Equal(t, "1200 points · Level 5", content.PointsLine)
	assert.Equal(t, "3.5 kg CO2 avoided", content.Impact)
	assert.Contains(t, content.Fact, "First Cleanup")
	assert.NotEmpty(t, content.CallToAction)
	assert.NotEmpty(t, content.QRBase64)
}

func TestGenerator_Generate_RotatesUnthemedRequests(t *testing.T) {
	fx := newGeneratorFixture(t, 3)

	want := []TemplateKind{TemplateAchievement, TemplateImpact, TemplateProgress, TemplateAchievement}
	for i, kind := range want {
		result, err := fx.gen.Generate(context.Background(), Request{
			UserID:   "u1",
			Platform: PlatformSquare,
		})
		require.NoError(t, err)
		assert.Equal(t, kind, result.Template, "request %d", i)
	}
}

func TestGenerator_Generate_ThemedRequestSkipsRotation(t *testing.T) {
	store := &fakeRotationStore{}
	fx := newGeneratorFixture(t, 3)
	fx.gen.rotator = NewRotator(store)

	_, err := fx.gen.Generate(context.Background(), Request{
		UserID:   "u1",
		Kind:     TemplateProgress,
		Platform: PlatformSquare,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, store.calls)
}

func TestGenerator_Generate_FailedRenderKeepsRotation(t *testing.T) {
	fx := newGeneratorFixture(t, 1)
	fx.renderer.failures = 100

	_, err := fx.gen.Generate(context.Background(), Request{
		UserID:   "u1",
		Platform: PlatformSquare,
	})
	require.ErrorIs(t, err, ErrRendering)

	// The failed attempt did not consume the rotation slot
	fx.renderer.failures = 0
	result, err := fx.gen.Generate(context.Background(), Request{
		UserID:   "u1",
		Platform: PlatformSquare,
	})
	require.NoError(t, err)
	assert.Equal(t, TemplateAchievement, result.Template)
}

func TestGenerator_Generate_OfflineEnqueueAdvancesRotation(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	fx.profiles.setError(errors.New("connection refused"))

	result, err := fx.gen.Generate(context.Background(), Request{
		UserID:   "u1",
		Platform: PlatformSquare,
	})
	require.NoError(t, err)
	require.Equal(t, models.CardJobStatusQueued, result.Status)
	assert.Equal(t, TemplateAchievement, result.Template)

	// Queuing counts as a generation, so the next unthemed request moves on
	result, err = fx.gen.Generate(context.Background(), Request{
		UserID:   "u1",
		Platform: PlatformSquare,
	})
	require.NoError(t, err)
	assert.Equal(t, TemplateImpact, result.Template)
}

func TestGenerator_Generate_InvalidInput(t *testing.T) {
	fx := newGeneratorFixture(t, 3)

	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing user", req: Request{Platform: PlatformSquare}},
		{name: "unknown platform", req: Request{UserID: "u1", Platform: "billboard"}},
		{name: "unknown template", req: Request{UserID: "u1", Kind: "holiday", Platform: PlatformSquare}},
		{name: "empty platform", req: Request{UserID: "u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.gen.Generate(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestGenerator_Generate_OfflineFreezesLastGoodSnapshot(t *testing.T) {
	fx := newGeneratorFixture(t, 3)

	// A successful generation caches the stats bundle
	_, err := fx.gen.Generate(context.Background(), Request{
		UserID: "u1", Kind: TemplateImpact, Platform: PlatformSquare,
	})
	require.NoError(t, err)

	// Points move on, then connectivity drops
	fx.profiles.setPoints(9999)
	fx.profiles.setError(errors.New("connection refused"))

	result, err := fx.gen.Generate(context.Background(), Request{
		UserID: "u1", Kind: TemplateImpact, Platform: PlatformSquare,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CardJobStatusQueued, result.Status)
	assert.Empty(t, result.ShareURL)

	job, err := fx.jobs.GetByJobID(context.Background(), result.JobID)
	require.NoError(t, err)
	// The queued job carries the stats from before the outage, not the
	// newer total
	assert.Equal(t, int64(1200), job.Snapshot.Points)
	assert.Equal(t, "Aki", job.Snapshot.DisplayName)

	// The queue flipped itself offline
	assert.False(t, fx.gen.online.Load())
}

func TestGenerator_Generate_OfflineWithoutHistory(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	fx.profiles.setError(errors.New("connection refused"))

	result, err := fx.gen.Generate(context.Background(), Request{
		UserID: "u2", Kind: TemplateAchievement, Platform: PlatformStory,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CardJobStatusQueued, result.Status)

	job, err := fx.jobs.GetByJobID(context.Background(), result.JobID)
	require.NoError(t, err)
	assert.Equal(t, "u2", job.Snapshot.UserID)
	assert.Equal(t, 1, job.Snapshot.Level)
}

func TestGenerator_Generate_RenderRetriesTransientFailure(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	fx.renderer.failures = 2

	result, err := fx.gen.Generate(context.Background(), Request{
		UserID: "u1", Kind: TemplateImpact, Platform: PlatformSquare,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CardJobStatusReady, result.Status)
	assert.Equal(t, 3, fx.renderer.calls)
}

func TestGenerator_Generate_RenderExhaustion(t *testing.T) {
	fx := newGeneratorFixture(t, 2)
	fx.renderer.failures = 100

	_, err := fx.gen.Generate(context.Background(), Request{
		UserID: "u1", Kind: TemplateImpact, Platform: PlatformSquare,
	})
	assert.ErrorIs(t, err, ErrRendering)
}

func TestGenerator_Generate_DeliveryFailureSurfaces(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	fx.deliverer.err = errors.New("bucket rejected upload")

	_, err := fx.gen.Generate(context.Background(), Request{
		UserID: "u1", Kind: TemplateImpact, Platform: PlatformSquare,
	})
	assert.ErrorIs(t, err, ErrDelivery)
	// A failed delivery of a live request is not retried through the queue
	assert.Equal(t, 0, fx.jobs.count())
}

func enqueueOffline(t *testing.T, fx *generatorFixture, userID string) *Result {
	t.Helper()
	fx.profiles.setError(errors.New("connection refused"))
	result, err := fx.gen.Generate(context.Background(), Request{
		UserID: userID, Kind: TemplateAchievement, Platform: PlatformSquare,
	})
	require.NoError(t, err)
	require.Equal(t, models.CardJobStatusQueued, result.Status)
	fx.profiles.setError(nil)
	return result
}

func TestGenerator_Drain_DeliversQueuedJobs(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	queued := enqueueOffline(t, fx, "u1")

	fx.gen.SetOnline(true)
	fx.gen.drain(context.Background())

	status, err := fx.gen.Status(context.Background(), queued.JobID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.CardJobStatusReady, status.Status)
	assert.NotEmpty(t, status.ShareURL)

	// Terminal jobs leave the durable queue
	assert.Equal(t, 0, fx.jobs.count())
}

func TestGenerator_Drain_SkipsWhileOffline(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	enqueueOffline(t, fx, "u1")

	fx.gen.drain(context.Background())

	assert.Equal(t, 1, fx.jobs.count())
	assert.Equal(t, 0, fx.renderer.calls)
}

func TestGenerator_Drain_RetriesThenFailsPermanently(t *testing.T) {
	fx := newGeneratorFixture(t, 2)
	queued := enqueueOffline(t, fx, "u1")
	fx.renderer.failures = 100

	fx.gen.SetOnline(true)
	for i := 0; i < 3; i++ {
		fx.jobs.resetRetryTimers()
		fx.gen.drain(context.Background())
	}

	status, err := fx.gen.Status(context.Background(), queued.JobID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.CardJobStatusFailed, status.Status)
	assert.NotEmpty(t, status.Error)
	assert.Equal(t, 0, fx.jobs.count())
}

func TestGenerator_Drain_QueuedDeliveryFailureIsTerminal(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	queued := enqueueOffline(t, fx, "u1")
	fx.deliverer.err = errors.New("bucket rejected upload")

	fx.gen.SetOnline(true)
	fx.gen.drain(context.Background())

	status, err := fx.gen.Status(context.Background(), queued.JobID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.CardJobStatusFailed, status.Status)
	assert.Contains(t, status.Error, "delivery failed")
	assert.Equal(t, 0, fx.jobs.count())
}

func TestGenerator_Drain_DeferredJobBlocksUserQueue(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	firstA := enqueueOffline(t, fx, "a-user")
	secondA := enqueueOffline(t, fx, "a-user")
	onlyB := enqueueOffline(t, fx, "b-user")

	// a-user's head of queue is waiting on a retry timer
	require.NoError(t, fx.jobs.BumpRetry(context.Background(), firstA.JobID, time.Now().Add(time.Hour)))

	fx.gen.SetOnline(true)
	fx.gen.drain(context.Background())

	// Both of a-user's jobs still sit in the queue, in order
	if _, err := fx.jobs.GetByJobID(context.Background(), firstA.JobID); err != nil {
		t.Errorf("deferred head job removed: %v", err)
	}
	if _, err := fx.jobs.GetByJobID(context.Background(), secondA.JobID); err != nil {
		t.Errorf("job behind deferred head was drained: %v", err)
	}

	// b-user's queue is independent and drained
	status, err := fx.gen.Status(context.Background(), onlyB.JobID, "b-user")
	require.NoError(t, err)
	assert.Equal(t, models.CardJobStatusReady, status.Status)
}

func TestGenerator_Status_Ownership(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	queued := enqueueOffline(t, fx, "u1")

	_, err := fx.gen.Status(context.Background(), queued.JobID, "intruder")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = fx.gen.Status(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, repositories.ErrJobNotFound)
}

func TestGenerator_Status_DrainedJobOwnership(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	queued := enqueueOffline(t, fx, "u1")

	fx.gen.SetOnline(true)
	fx.gen.drain(context.Background())

	// The recorded outcome is just as private as the queue row was
	_, err := fx.gen.Status(context.Background(), queued.JobID, "intruder")
	assert.ErrorIs(t, err, ErrNotOwner)

	status, err := fx.gen.Status(context.Background(), queued.JobID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.CardJobStatusReady, status.Status)
}

func TestGenerator_Status_DrainedOutcomeExpires(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	fx.gen.cfg.ResultTTL = time.Millisecond
	queued := enqueueOffline(t, fx, "u1")

	fx.gen.SetOnline(true)
	fx.gen.drain(context.Background())

	time.Sleep(5 * time.Millisecond)
	fx.gen.drain(context.Background())

	_, err := fx.gen.Status(context.Background(), queued.JobID, "u1")
	assert.ErrorIs(t, err, repositories.ErrJobNotFound)
}

func TestGenerator_Cancel(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	queued := enqueueOffline(t, fx, "u1")

	if err := fx.gen.Cancel(context.Background(), queued.JobID, "intruder"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Cancel() by non-owner error = %v, want %v", err, ErrNotOwner)
	}

	require.NoError(t, fx.gen.Cancel(context.Background(), queued.JobID, "u1"))
	assert.Equal(t, 0, fx.jobs.count())

	err := fx.gen.Cancel(context.Background(), queued.JobID, "u1")
	assert.ErrorIs(t, err, repositories.ErrJobNotFound)
}

func TestGenerator_Cancel_TerminalJob(t *testing.T) {
	fx := newGeneratorFixture(t, 3)
	queued := enqueueOffline(t, fx, "u1")

	// Force the job into a non-queued state
	fx.jobs.mu.Lock()
	fx.jobs.jobs[queued.JobID].Status = models.CardJobStatusRendering
	fx.jobs.mu.Unlock()

	err := fx.gen.Cancel(context.Background(), queued.JobID, "u1")
	assert.ErrorIs(t, err, ErrNotCancelable)
}
