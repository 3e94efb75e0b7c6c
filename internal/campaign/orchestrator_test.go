package campaign

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/applyforge/applyforge/internal/config"
	"github.com/applyforge/applyforge/internal/store"
	"github.com/applyforge/applyforge/internal/submit/mock"
	"github.com/applyforge/applyforge/pkg/models"
)

// --- mocks ---

type statusUpdate struct {
	ID     uuid.UUID
	Status string
}

type mockStore struct {
	mu            sync.Mutex
	apps          map[uuid.UUID]*models.Application
	order         []uuid.UUID
	campaigns     map[uuid.UUID]*models.Campaign
	profile       *models.Profile
	statusUpdates []statusUpdate
	updateErrs    map[uuid.UUID]error
	orphanCount   int
	recoverCalled bool
}

func newMockStore() *mockStore {
	return &mockStore{
		apps:       make(map[uuid.UUID]*models.Application),
		campaigns:  make(map[uuid.UUID]*models.Campaign),
		updateErrs: make(map[uuid.UUID]error),
		profile: &models.Profile{
			UserID:     uuid.New(),
			FullName:   "Test User",
			Email:      "test@example.com",
			ResumeText: "resume",
			Skills:     []string{"go"},
		},
	}
}

func (s *mockStore) addPending(userID uuid.UUID, company string) *models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	app := &models.Application{
		ID:          uuid.New(),
		UserID:      userID,
		Posting:     models.PostingSnapshot{PostingID: uuid.New(), Company: company, Title: "Engineer"},
		QueueStatus: models.QueueStatusPending,
		CreatedAt:   time.Now().UTC().Add(time.Duration(len(s.order)) * time.Millisecond),
	}
	s.apps[app.ID] = app
	s.order = append(s.order, app.ID)
	return app
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) UpsertPosting(_ context.Context, p *models.Posting) (*models.Posting, error) {
	return p, nil
}
func (s *mockStore) GetPosting(_ context.Context, _ uuid.UUID) (*models.Posting, error) {
	return nil, store.ErrNotFound
}

func (s *mockStore) CreateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = app
	s.order = append(s.order, app.ID)
	return nil
}

func (s *mockStore) GetApplication(_ context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return app, nil
}

func (s *mockStore) FetchPendingApplications(_ context.Context, userID uuid.UUID, limit int) ([]*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Application
	for _, id := range s.order {
		app := s.apps[id]
		if app.UserID == userID && app.QueueStatus == models.QueueStatusPending {
			out = append(out, app)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *mockStore) ListApplicationsByBatch(_ context.Context, batchID uuid.UUID) ([]*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Application
	for _, id := range s.order {
		app := s.apps[id]
		if app.QueueBatchID != nil && *app.QueueBatchID == batchID {
			out = append(out, app)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateApplicationStatus(_ context.Context, id uuid.UUID, status string, _ ...store.ApplicationUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.updateErrs[id]; ok {
		return err
	}
	if app, ok := s.apps[id]; ok {
		app.QueueStatus = status
	}
	s.statusUpdates = append(s.statusUpdates, statusUpdate{ID: id, Status: status})
	return nil
}

func (s *mockStore) RequeueOrphaned(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoverCalled = true
	return s.orphanCount, nil
}

// Campaigns are persisted as copies, the way a real store would, so tests
// read committed state rather than the orchestrator's live struct.

func (s *mockStore) CreateCampaign(_ context.Context, c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *mockStore) UpdateCampaign(_ context.Context, c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

// campaign returns the persisted row for id.
func (s *mockStore) campaign(t *testing.T, id uuid.UUID) *models.Campaign {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		t.Fatalf("campaign %s was never persisted", id)
	}
	return c
}

func (s *mockStore) GetCampaign(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (s *mockStore) GetProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil || s.profile.UserID != userID {
		return nil, store.ErrNotFound
	}
	return s.profile, nil
}

func (s *mockStore) UpsertProfile(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
	return nil
}

func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *mockStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *mockStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *mockStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }

type mockCache struct {
	mu       sync.Mutex
	statuses map[string]string
}

func newMockCache() *mockCache {
	return &mockCache{statuses: make(map[string]string)}
}

func (c *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *mockCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *mockCache) Ping(_ context.Context) error                                     { return nil }
func (c *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

func (c *mockCache) SetCampaignStatus(_ context.Context, id uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[id.String()] = status
	return nil
}

func (c *mockCache) GetCampaignStatus(_ context.Context, id uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[id.String()]
	return s, ok, nil
}

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(_ context.Context, _ *models.Profile, _ models.PostingSnapshot) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []byte("artifact"), nil
}

// gatedRunner blocks inside Submit until released, so tests can inject
// pause/stop requests at a known point in the loop.
type gatedRunner struct {
	entered  chan struct{}
	release  chan struct{}
	requests []models.SubmitRequest
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedRunner) Name() string { return "gated" }

func (g *gatedRunner) Submit(_ context.Context, req models.SubmitRequest) error {
	g.requests = append(g.requests, req)
	g.entered <- struct{}{}
	<-g.release
	return nil
}

// --- helpers ---

func newTestOrchestrator(t *testing.T, st store.Store, runner models.SubmitRunner) *Orchestrator {
	t.Helper()
	return NewOrchestrator(st, newMockCache(), &stubGenerator{}, runner,
		config.QueueConfig{ItemDelay: time.Millisecond, MaxRetries: 1},
		config.ResumeConfig{ArtifactDir: t.TempDir()})
}

func waitDone(t *testing.T, o *Orchestrator) {
	t.Helper()
	o.mu.Lock()
	done := o.runnerDone
	o.mu.Unlock()
	if done == nil {
		t.Fatal("orchestrator loop never launched")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator loop did not finish")
	}
}

func waitEntered(t *testing.T, g *gatedRunner) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("submit was never invoked")
	}
}

// --- tests ---

func TestStart_ProcessesBatchInOrder(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	st.addPending(userID, "A")
	st.addPending(userID, "B")
	st.addPending(userID, "C")

	runner := mock.NewRunner()
	o := newTestOrchestrator(t, st, runner)

	c, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.Status != models.CampaignStatusProcessing {
		t.Fatalf("expected processing, got %s", c.Status)
	}
	if c.TotalCount != 3 {
		t.Fatalf("expected total 3, got %d", c.TotalCount)
	}

	waitDone(t, o)

	got := st.campaign(t, c.ID)
	if got.Status != models.CampaignStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.CompletedCount != 3 || got.FailedCount != 0 {
		t.Errorf("expected 3 completed / 0 failed, got %d / %d", got.CompletedCount, got.FailedCount)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}

	want := []string{"A", "B", "C"}
	if len(runner.Requests) != len(want) {
		t.Fatalf("expected %d submissions, got %d", len(want), len(runner.Requests))
	}
	for i, company := range want {
		if runner.Requests[i].Posting.Company != company {
			t.Errorf("submission %d: expected %s, got %s", i, company, runner.Requests[i].Posting.Company)
		}
	}

	for _, id := range st.order {
		if st.apps[id].QueueStatus != models.QueueStatusCompleted {
			t.Errorf("application %s: expected completed, got %s", id, st.apps[id].QueueStatus)
		}
		if st.apps[id].QueueBatchID == nil || *st.apps[id].QueueBatchID != c.ID {
			t.Errorf("application %s: batch id not set", id)
		}
	}
}

func TestStart_NoPendingApplications(t *testing.T) {
	st := newMockStore()
	o := newTestOrchestrator(t, st, mock.NewRunner())

	_, err := o.Start(context.Background(), st.profile.UserID, false, 10)
	if !errors.Is(err, ErrNoPendingApplications) {
		t.Fatalf("expected ErrNoPendingApplications, got %v", err)
	}
	if len(st.campaigns) != 0 {
		t.Error("no campaign should be created for an empty batch")
	}
}

func TestStart_MissingProfile(t *testing.T) {
	st := newMockStore()
	o := newTestOrchestrator(t, st, mock.NewRunner())

	_, err := o.Start(context.Background(), uuid.New(), false, 10)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStart_RespectsLimit(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	st.addPending(userID, "A")
	st.addPending(userID, "B")
	late := st.addPending(userID, "C")

	runner := mock.NewRunner()
	o := newTestOrchestrator(t, st, runner)

	c, err := o.Start(context.Background(), userID, false, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	got := st.campaign(t, c.ID)
	if got.TotalCount != 2 || got.CompletedCount != 2 {
		t.Errorf("expected 2/2, got total %d completed %d", got.TotalCount, got.CompletedCount)
	}
	if late.QueueStatus != models.QueueStatusPending {
		t.Errorf("application beyond the limit must stay pending, got %s", late.QueueStatus)
	}
}

func TestStart_RejectsSecondCampaign(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	st.addPending(userID, "A")

	runner := newGatedRunner()
	o := newTestOrchestrator(t, st, runner)

	if _, err := o.Start(context.Background(), userID, false, 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitEntered(t, runner)

	if _, err := o.Start(context.Background(), userID, false, 10); !errors.Is(err, ErrCampaignActive) {
		t.Fatalf("expected ErrCampaignActive, got %v", err)
	}

	close(runner.release)
	waitDone(t, o)

	// A terminal campaign releases the guard.
	st.addPending(userID, "B")
	if _, err := o.Start(context.Background(), userID, false, 10); err != nil {
		t.Fatalf("start after completion: %v", err)
	}
	waitDone(t, o)
}

func TestStart_RollsBackOnQueueFailure(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	a := st.addPending(userID, "A")
	b := st.addPending(userID, "B")
	st.updateErrs[b.ID] = errors.New("connection reset")

	o := newTestOrchestrator(t, st, mock.NewRunner())
	_, err := o.Start(context.Background(), userID, false, 10)
	if err == nil {
		t.Fatal("expected start to fail")
	}

	if a.QueueStatus != models.QueueStatusPending {
		t.Errorf("already queued item must be released, got %s", a.QueueStatus)
	}
	if a.QueueBatchID != nil {
		t.Error("released item must not stay bound to the dead batch")
	}
	if len(st.campaigns) != 1 {
		t.Fatalf("expected the one aborted campaign, got %d", len(st.campaigns))
	}
	for _, c := range st.campaigns {
		if c.Status != models.CampaignStatusStopped {
			t.Errorf("aborted campaign must end stopped, got %s", c.Status)
		}
		if c.FinishedAt == nil {
			t.Error("aborted campaign must carry finished_at")
		}
	}
	if o.Active() != nil {
		t.Error("a failed start must not leave an active campaign")
	}

	// The user can start again once the store recovers.
	delete(st.updateErrs, b.ID)
	if _, err := o.Start(context.Background(), userID, false, 10); err != nil {
		t.Fatalf("start after recovery: %v", err)
	}
	waitDone(t, o)
}

func TestRun_CaptchaHaltsCampaign(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	a := st.addPending(userID, "A")
	b := st.addPending(userID, "B")
	c3 := st.addPending(userID, "C")

	tripped := false
	runner := &mock.Runner{Name_: "flaky"}
	runner.SubmitFunc = func(_ context.Context, req models.SubmitRequest) error {
		if req.Posting.Company == "B" && !tripped {
			tripped = true
			return models.ErrCaptchaDetected
		}
		return nil
	}

	o := newTestOrchestrator(t, st, runner)
	c, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	got := st.campaign(t, c.ID)
	if got.Status != models.CampaignStatusPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
	if got.PauseReason == nil || *got.PauseReason != models.PauseReasonCaptcha {
		t.Fatalf("expected captcha pause reason, got %v", got.PauseReason)
	}
	if a.QueueStatus != models.QueueStatusCompleted {
		t.Errorf("first application should be completed, got %s", a.QueueStatus)
	}
	if b.QueueStatus != models.QueueStatusPaused {
		t.Errorf("triggering application should be paused, got %s", b.QueueStatus)
	}
	if b.PauseReason == nil || *b.PauseReason != models.PauseReasonCaptcha {
		t.Errorf("triggering application should carry the captcha reason")
	}
	if c3.QueueStatus != models.QueueStatusQueued {
		t.Errorf("no application after the halt may be dispatched, got %s", c3.QueueStatus)
	}
	if len(runner.Requests) != 2 {
		t.Errorf("expected 2 submissions before the halt, got %d", len(runner.Requests))
	}

	// Resume retries the paused application before the rest of the batch.
	if _, err := o.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, o)

	if got := st.campaign(t, c.ID); got.Status != models.CampaignStatusCompleted {
		t.Errorf("expected completed after resume, got %s", got.Status)
	}
	if runner.Requests[2].Posting.Company != "B" {
		t.Errorf("resume must retry the paused application first, got %s", runner.Requests[2].Posting.Company)
	}
	if b.QueueStatus != models.QueueStatusCompleted || c3.QueueStatus != models.QueueStatusCompleted {
		t.Errorf("remaining applications should complete after resume")
	}
}

func TestRun_TakeoverHaltsCampaign(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	a := st.addPending(userID, "A")

	o := newTestOrchestrator(t, st, mock.NewTakeoverRunner())
	c, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	got := st.campaign(t, c.ID)
	if got.Status != models.CampaignStatusPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
	if got.PauseReason == nil || *got.PauseReason != models.PauseReasonUserTakeover {
		t.Fatalf("expected user_takeover reason, got %v", got.PauseReason)
	}
	if a.QueueStatus != models.QueueStatusPaused {
		t.Errorf("expected paused application, got %s", a.QueueStatus)
	}
}

func TestRun_RetryBudget(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	app := st.addPending(userID, "A")

	o := newTestOrchestrator(t, st, mock.NewFailingRunner(errors.New("boom")))

	// First failure: requeued to pending with the retry spent.
	c1, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	if app.QueueStatus != models.QueueStatusPending {
		t.Fatalf("expected pending after first failure, got %s", app.QueueStatus)
	}
	if app.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", app.RetryCount)
	}
	gotC1 := st.campaign(t, c1.ID)
	if gotC1.Status != models.CampaignStatusCompleted {
		t.Errorf("campaign should finish despite the failure, got %s", gotC1.Status)
	}
	if gotC1.FailedCount != 0 {
		t.Errorf("a requeued application is not failed yet, got failed count %d", gotC1.FailedCount)
	}

	// Second failure on a later run: terminal.
	c2, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitDone(t, o)

	if app.QueueStatus != models.QueueStatusFailed {
		t.Fatalf("expected failed after second failure, got %s", app.QueueStatus)
	}
	if app.RetryCount != 1 {
		t.Errorf("retry_count must not grow past the budget, got %d", app.RetryCount)
	}
	if got := st.campaign(t, c2.ID); got.FailedCount != 1 {
		t.Errorf("expected failed count 1, got %d", got.FailedCount)
	}
	if app.LastError == nil || *app.LastError == "" {
		t.Error("expected last_error to be recorded")
	}
}

func TestRun_GeneratorFailureIsGeneric(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	app := st.addPending(userID, "A")

	runner := mock.NewRunner()
	o := NewOrchestrator(st, newMockCache(), &stubGenerator{err: errors.New("render failed")}, runner,
		config.QueueConfig{ItemDelay: time.Millisecond, MaxRetries: 1},
		config.ResumeConfig{ArtifactDir: t.TempDir()})

	if _, err := o.Start(context.Background(), userID, false, 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	if app.QueueStatus != models.QueueStatusPending {
		t.Errorf("generator failure should requeue, got %s", app.QueueStatus)
	}
	if app.RetryCount != 1 {
		t.Errorf("expected retry_count 1, got %d", app.RetryCount)
	}
	if len(runner.Requests) != 0 {
		t.Errorf("no submission should happen without an artifact, got %d", len(runner.Requests))
	}
}

func TestStop_ReleasesQueuedItems(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	a := st.addPending(userID, "A")
	b := st.addPending(userID, "B")
	c3 := st.addPending(userID, "C")

	runner := newGatedRunner()
	o := newTestOrchestrator(t, st, runner)

	c, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitEntered(t, runner)

	if _, err := o.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(runner.release)
	waitDone(t, o)

	if got := st.campaign(t, c.ID); got.Status != models.CampaignStatusStopped {
		t.Fatalf("expected stopped, got %s", got.Status)
	}
	if a.QueueStatus != models.QueueStatusCompleted {
		t.Errorf("in-flight item must finish before the stop, got %s", a.QueueStatus)
	}
	if b.QueueStatus != models.QueueStatusPending || c3.QueueStatus != models.QueueStatusPending {
		t.Errorf("queued items must be released to pending on stop, got %s / %s",
			b.QueueStatus, c3.QueueStatus)
	}
	if len(runner.requests) != 1 {
		t.Errorf("expected exactly 1 submission, got %d", len(runner.requests))
	}
}

func TestPause_ManualThenResume(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	st.addPending(userID, "A")
	b := st.addPending(userID, "B")

	runner := newGatedRunner()
	o := newTestOrchestrator(t, st, runner)

	c, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitEntered(t, runner)

	if _, err := o.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	runner.release <- struct{}{}
	waitDone(t, o)

	got := st.campaign(t, c.ID)
	if got.Status != models.CampaignStatusPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
	if got.PauseReason == nil || *got.PauseReason != models.PauseReasonManual {
		t.Fatalf("expected manual pause reason, got %v", got.PauseReason)
	}
	if b.QueueStatus != models.QueueStatusQueued {
		t.Errorf("unprocessed item stays queued across a manual pause, got %s", b.QueueStatus)
	}

	if _, err := o.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitEntered(t, runner)
	runner.release <- struct{}{}
	waitDone(t, o)

	if got := st.campaign(t, c.ID); got.Status != models.CampaignStatusCompleted {
		t.Errorf("expected completed after resume, got %s", got.Status)
	}
	if b.QueueStatus != models.QueueStatusCompleted {
		t.Errorf("expected remaining item completed, got %s", b.QueueStatus)
	}
}

func TestPause_WhileItemInFlightSkipsDelay(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	st.addPending(userID, "A")
	b := st.addPending(userID, "B")

	runner := newGatedRunner()
	// An hour-long delay: the loop only finishes in time if the pause
	// request lands instead of being swallowed while the item was in flight.
	o := NewOrchestrator(st, newMockCache(), &stubGenerator{}, runner,
		config.QueueConfig{ItemDelay: time.Hour, MaxRetries: 1},
		config.ResumeConfig{ArtifactDir: t.TempDir()})

	c, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitEntered(t, runner)

	if _, err := o.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	runner.release <- struct{}{}
	waitDone(t, o)

	got := st.campaign(t, c.ID)
	if got.Status != models.CampaignStatusPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
	if b.QueueStatus != models.QueueStatusQueued {
		t.Errorf("second item must not be dispatched, got %s", b.QueueStatus)
	}
}

func TestStop_PausedCampaign(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	a := st.addPending(userID, "A")
	b := st.addPending(userID, "B")

	tripped := false
	runner := &mock.Runner{Name_: "flaky"}
	runner.SubmitFunc = func(_ context.Context, _ models.SubmitRequest) error {
		if !tripped {
			tripped = true
			return models.ErrCaptchaDetected
		}
		return nil
	}

	o := newTestOrchestrator(t, st, runner)
	c, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)
	if got := st.campaign(t, c.ID); got.Status != models.CampaignStatusPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}

	stopped, err := o.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != models.CampaignStatusStopped {
		t.Errorf("expected stopped, got %s", stopped.Status)
	}
	// The application the captcha halt left paused must be released along
	// with the queued ones; nothing else will ever pick it up.
	if a.QueueStatus != models.QueueStatusPending {
		t.Errorf("halted item should be released on stop, got %s", a.QueueStatus)
	}
	if a.PauseReason != nil {
		t.Errorf("released item should carry no pause reason, got %s", *a.PauseReason)
	}
	if b.QueueStatus != models.QueueStatusPending {
		t.Errorf("queued item should be released on stop, got %s", b.QueueStatus)
	}
	if o.Active() != nil {
		t.Error("no campaign should remain active")
	}

	// Both items are eligible for the next run.
	apps, err := st.FetchPendingApplications(context.Background(), userID, 10)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(apps) != 2 {
		t.Errorf("expected both applications pending again, got %d", len(apps))
	}
}

func TestPause_NoProcessingCampaign(t *testing.T) {
	o := newTestOrchestrator(t, newMockStore(), mock.NewRunner())
	if _, err := o.Pause(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestResume_NotPaused(t *testing.T) {
	o := newTestOrchestrator(t, newMockStore(), mock.NewRunner())
	if _, err := o.Resume(context.Background()); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
}

func TestCleanup_ArtifactRemovedOnEveryPath(t *testing.T) {
	runs := []struct {
		name   string
		runner models.SubmitRunner
	}{
		{name: "success", runner: mock.NewRunner()},
		{name: "generic failure", runner: mock.NewFailingRunner(errors.New("boom"))},
		{name: "captcha halt", runner: mock.NewCaptchaRunner()},
	}

	for _, tt := range runs {
		t.Run(tt.name, func(t *testing.T) {
			st := newMockStore()
			userID := st.profile.UserID
			st.addPending(userID, "A")

			dir := t.TempDir()
			o := NewOrchestrator(st, newMockCache(), &stubGenerator{}, tt.runner,
				config.QueueConfig{ItemDelay: time.Millisecond, MaxRetries: 1},
				config.ResumeConfig{ArtifactDir: dir})

			if _, err := o.Start(context.Background(), userID, false, 10); err != nil {
				t.Fatalf("start: %v", err)
			}
			waitDone(t, o)

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatalf("read artifact dir: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("expected no artifacts left behind, found %d", len(entries))
			}
		})
	}
}

func TestDryRun_PropagatedToRunner(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	st.addPending(userID, "A")

	runner := mock.NewRunner()
	o := newTestOrchestrator(t, st, runner)

	if _, err := o.Start(context.Background(), userID, true, 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	if len(runner.Requests) != 1 || !runner.Requests[0].DryRun {
		t.Error("dry_run flag must reach the submit runner")
	}
}

func TestRecover_RequeuesOrphanedApplications(t *testing.T) {
	st := newMockStore()
	st.orphanCount = 2

	o := newTestOrchestrator(t, st, mock.NewRunner())
	if err := o.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !st.recoverCalled {
		t.Error("recover must hit the store")
	}
}

func TestStatus_ReturnsCampaignAndBatch(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	st.addPending(userID, "A")
	st.addPending(userID, "B")

	o := newTestOrchestrator(t, st, mock.NewRunner())
	c, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	got, apps, err := o.Status(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("wrong campaign returned")
	}
	if len(apps) != 2 {
		t.Errorf("expected 2 applications in batch, got %d", len(apps))
	}

	if _, _, err := o.Status(context.Background(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown campaign, got %v", err)
	}
}

func TestCampaignHandles_AreSnapshots(t *testing.T) {
	st := newMockStore()
	userID := st.profile.UserID
	st.addPending(userID, "A")
	st.addPending(userID, "B")

	runner := newGatedRunner()
	o := newTestOrchestrator(t, st, runner)

	c, err := o.Start(context.Background(), userID, false, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitEntered(t, runner)

	o.mu.Lock()
	live := o.current
	o.mu.Unlock()

	// Handlers JSON-encode these structs while the loop is still writing
	// counters and the current job, so every handle must be a copy.
	if c == live {
		t.Error("start must not hand out the campaign the loop mutates")
	}
	if a := o.Active(); a == nil || a == live {
		t.Error("active must return a copy of the running campaign")
	}
	p, err := o.Pause(context.Background())
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if p == live {
		t.Error("pause must not hand out the campaign the loop mutates")
	}

	c.Status = models.CampaignStatusStopped
	if o.Active() == nil {
		t.Error("mutating a returned handle must not alter campaign state")
	}

	runner.release <- struct{}{}
	waitDone(t, o)
}
