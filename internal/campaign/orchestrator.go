package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/applyforge/applyforge/internal/cache"
	"github.com/applyforge/applyforge/internal/config"
	"github.com/applyforge/applyforge/internal/resume"
	"github.com/applyforge/applyforge/internal/store"
	"github.com/applyforge/applyforge/pkg/models"
)

const statusCacheTTL = 30 * time.Minute

// itemOutcome classifies what a single submission attempt did to the
// application and what the loop should do next.
type itemOutcome int

const (
	outcomeCompleted itemOutcome = iota
	outcomeRetried
	outcomeFailed
	outcomeHalted
)

// Orchestrator owns the single active campaign for this process and drives
// its queued applications through submission strictly one at a time. All
// state transitions are persisted through the store before the loop moves
// on, so a restart never observes a half-applied transition.
type Orchestrator struct {
	store       store.Store
	cache       cache.Cache
	generator   models.ResumeGenerator
	runner      models.SubmitRunner
	artifactDir string
	itemDelay   time.Duration
	maxRetries  int

	mu         sync.Mutex
	current    *models.Campaign
	profile    *models.Profile
	batch      []*models.Application
	cursor     int
	pauseReq   bool
	stopReq    bool
	wake       chan struct{}
	runnerDone chan struct{}
}

func NewOrchestrator(st store.Store, ca cache.Cache, gen models.ResumeGenerator, runner models.SubmitRunner, queueCfg config.QueueConfig, resumeCfg config.ResumeConfig) *Orchestrator {
	return &Orchestrator{
		store:       st,
		cache:       ca,
		generator:   gen,
		runner:      runner,
		artifactDir: resumeCfg.ArtifactDir,
		itemDelay:   queueCfg.ItemDelay,
		maxRetries:  queueCfg.MaxRetries,
	}
}

// Recover reclaims applications stranded in processing, queued or paused by
// an unclean prior shutdown and closes the dead campaigns that owned them.
// Call once at startup, before the first campaign starts.
func (o *Orchestrator) Recover(ctx context.Context) error {
	n, err := o.store.RequeueOrphaned(ctx)
	if err != nil {
		return fmt.Errorf("requeueing orphaned applications: %w", err)
	}
	if n > 0 {
		slog.Warn("requeued applications from unclean shutdown", "count", n)
	}
	return nil
}

// Start captures the user's pending applications as a FIFO batch, creates a
// processing campaign over them and launches the background loop. Exactly
// one campaign may be active per process; a second start is rejected with
// ErrCampaignActive while the first is processing or paused.
func (o *Orchestrator) Start(ctx context.Context, userID uuid.UUID, dryRun bool, limit int) (*models.Campaign, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil && !IsTerminal(o.current.Status) {
		return nil, ErrCampaignActive
	}

	profile, err := o.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	batch, err := o.store.FetchPendingApplications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending applications: %w", err)
	}
	if len(batch) == 0 {
		return nil, ErrNoPendingApplications
	}

	now := time.Now().UTC()
	campaign := &models.Campaign{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     models.CampaignStatusProcessing,
		DryRun:     dryRun,
		Limit:      limit,
		TotalCount: len(batch),
		StartedAt:  &now,
	}
	if err := o.store.CreateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("creating campaign: %w", err)
	}

	// The batch is fixed at start. Applications created after this point
	// wait for the next campaign.
	for i, app := range batch {
		err := o.store.UpdateApplicationStatus(ctx, app.ID, models.QueueStatusQueued,
			store.WithQueueBatchID(campaign.ID))
		if err != nil {
			o.abortStartLocked(ctx, campaign, batch[:i])
			return nil, fmt.Errorf("queueing application %s: %w", app.ID, err)
		}
		app.QueueStatus = models.QueueStatusQueued
		app.QueueBatchID = &campaign.ID
	}

	o.current = campaign
	o.profile = profile
	o.batch = batch
	o.cursor = 0
	o.pauseReq = false
	o.stopReq = false
	o.cacheStatus(ctx, campaign)

	slog.Info("campaign started",
		"campaign_id", campaign.ID,
		"user_id", userID,
		"total", len(batch),
		"dry_run", dryRun)

	o.launchLocked()
	return o.snapshotLocked(), nil
}

// abortStartLocked rolls back a partially queued start so the campaign row
// and its applications are not left orphaned in the database. Best effort;
// the original queueing error is what the caller reports. Caller holds o.mu.
func (o *Orchestrator) abortStartLocked(ctx context.Context, campaign *models.Campaign, queued []*models.Application) {
	for _, app := range queued {
		if err := o.store.UpdateApplicationStatus(ctx, app.ID, models.QueueStatusPending); err != nil {
			slog.Error("releasing application after failed start", "application_id", app.ID, "error", err)
			continue
		}
		app.QueueStatus = models.QueueStatusPending
		app.QueueBatchID = nil
	}

	campaign.Status = models.CampaignStatusStopped
	now := time.Now().UTC()
	campaign.FinishedAt = &now
	if err := o.store.UpdateCampaign(ctx, campaign); err != nil {
		slog.Error("stopping campaign after failed start", "campaign_id", campaign.ID, "error", err)
	}
}

// Pause requests a manual pause. The loop observes the flag at the next
// checkpoint between items; the in-flight item, if any, runs to completion
// first.
func (o *Orchestrator) Pause(ctx context.Context) (*models.Campaign, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || o.current.Status != models.CampaignStatusProcessing {
		return nil, fmt.Errorf("%w: no processing campaign", ErrInvalidTransition)
	}
	o.pauseReq = true
	o.signalLocked()
	return o.snapshotLocked(), nil
}

// Resume moves a paused campaign back to processing and restarts the loop
// at the item it halted on. An application left paused by a captcha or
// takeover halt is re-queued first so it is retried before the rest of the
// batch.
func (o *Orchestrator) Resume(ctx context.Context) (*models.Campaign, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	campaign := o.current
	if campaign == nil || campaign.Status != models.CampaignStatusPaused {
		return nil, ErrNotPaused
	}

	if o.cursor < len(o.batch) {
		app := o.batch[o.cursor]
		if app.QueueStatus == models.QueueStatusPaused {
			err := o.store.UpdateApplicationStatus(ctx, app.ID, models.QueueStatusQueued,
				store.WithPauseCleared())
			if err != nil {
				return nil, fmt.Errorf("re-queueing paused application %s: %w", app.ID, err)
			}
			app.QueueStatus = models.QueueStatusQueued
			app.PauseReason = nil
		}
	}

	if err := transition(campaign, models.CampaignStatusProcessing); err != nil {
		return nil, err
	}
	if err := o.store.UpdateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("updating campaign: %w", err)
	}
	o.pauseReq = false
	o.cacheStatus(ctx, campaign)

	slog.Info("campaign resumed", "campaign_id", campaign.ID, "cursor", o.cursor)

	o.launchLocked()
	return o.snapshotLocked(), nil
}

// Stop requests a cooperative stop. The in-flight item finishes, remaining
// queued applications are released back to pending and the campaign ends in
// stopped. Stopping a paused campaign takes effect immediately since no
// loop is running.
func (o *Orchestrator) Stop(ctx context.Context) (*models.Campaign, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	campaign := o.current
	if campaign == nil || IsTerminal(campaign.Status) {
		return nil, fmt.Errorf("%w: no active campaign", ErrInvalidTransition)
	}

	if campaign.Status == models.CampaignStatusPaused {
		// Paused campaigns have no loop to signal. Resume-then-stop is
		// collapsed into a direct finish here.
		if err := transition(campaign, models.CampaignStatusProcessing); err != nil {
			return nil, err
		}
		o.finishLocked(ctx, campaign, models.CampaignStatusStopped)
		return o.snapshotLocked(), nil
	}

	o.stopReq = true
	o.signalLocked()
	return o.snapshotLocked(), nil
}

// Status returns the campaign with its batch applications. The status
// string alone is also kept in the cache for cheap polling; the full read
// always goes to the store.
func (o *Orchestrator) Status(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, []*models.Application, error) {
	campaign, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	apps, err := o.store.ListApplicationsByBatch(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	return campaign, apps, nil
}

// Active returns the campaign currently owned by this process, or nil.
func (o *Orchestrator) Active() *models.Campaign {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || IsTerminal(o.current.Status) {
		return nil
	}
	return o.snapshotLocked()
}

// snapshotLocked returns a field copy of the current campaign so callers
// never share memory with the running loop. Pointer fields are safe to alias
// because the loop replaces them rather than mutating what they point at.
// Caller holds o.mu.
func (o *Orchestrator) snapshotLocked() *models.Campaign {
	c := *o.current
	return &c
}

// Shutdown stops any running campaign and waits for the loop to exit. Used
// on process shutdown so no application is left in processing.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	done := o.runnerDone
	if o.current != nil && o.current.Status == models.CampaignStatusProcessing {
		o.stopReq = true
		o.signalLocked()
	}
	o.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launchLocked starts the background loop. Caller holds o.mu. The wake
// channel is buffered so a pause or stop arriving while an item is in flight
// survives until the loop reaches the inter-item wait.
func (o *Orchestrator) launchLocked() {
	o.wake = make(chan struct{}, 1)
	o.runnerDone = make(chan struct{})
	go o.run(o.wake, o.runnerDone)
}

// signalLocked wakes the loop out of an inter-item delay. Caller holds o.mu.
func (o *Orchestrator) signalLocked() {
	if o.wake != nil {
		select {
		case o.wake <- struct{}{}:
		default:
		}
	}
}

// run processes batch items from the cursor until the batch is exhausted or
// a checkpoint observes a stop, pause or halt. It runs detached from any
// request context; shutdown goes through Stop or Shutdown.
func (o *Orchestrator) run(wake <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ctx := context.Background()

	for {
		o.mu.Lock()
		campaign := o.current

		if o.stopReq {
			o.finishLocked(ctx, campaign, models.CampaignStatusStopped)
			o.mu.Unlock()
			return
		}
		if o.pauseReq {
			o.pauseReq = false
			reason := models.PauseReasonManual
			o.pauseLocked(ctx, campaign, reason)
			o.mu.Unlock()
			return
		}
		if o.cursor >= len(o.batch) {
			o.finishLocked(ctx, campaign, models.CampaignStatusCompleted)
			o.mu.Unlock()
			return
		}

		app := o.batch[o.cursor]
		profile := o.profile
		dryRun := campaign.DryRun
		o.mu.Unlock()

		outcome, haltReason := o.processItem(ctx, campaign, app, profile, dryRun)

		o.mu.Lock()
		switch outcome {
		case outcomeCompleted:
			campaign.CompletedCount++
			o.cursor++
		case outcomeFailed:
			campaign.FailedCount++
			o.cursor++
		case outcomeRetried:
			// Requeued to pending for a future campaign; it does not
			// re-enter this batch and counts as neither completed nor
			// failed.
			o.cursor++
		case outcomeHalted:
			// Cursor stays on the paused application so resume retries it
			// first.
			o.pauseLocked(ctx, campaign, haltReason)
			o.mu.Unlock()
			return
		}
		campaign.CurrentJobID = nil
		if err := o.store.UpdateCampaign(ctx, campaign); err != nil {
			slog.Error("persisting campaign progress", "campaign_id", campaign.ID, "error", err)
		}
		o.cacheStatus(ctx, campaign)
		more := o.cursor < len(o.batch)
		o.mu.Unlock()

		if more {
			// Fixed pacing between items. A stop or pause request
			// interrupts the wait and is handled at the top of the loop.
			select {
			case <-time.After(o.itemDelay):
			case <-wake:
			}
		}
	}
}

// processItem runs one application through resume generation and
// submission, persisting the resulting status. The artifact is removed on
// every exit path, including captcha and takeover halts.
func (o *Orchestrator) processItem(ctx context.Context, campaign *models.Campaign, app *models.Application, profile *models.Profile, dryRun bool) (itemOutcome, string) {
	now := time.Now().UTC()
	err := o.store.UpdateApplicationStatus(ctx, app.ID, models.QueueStatusProcessing,
		store.WithStartedAt(now))
	if err != nil {
		slog.Error("marking application processing", "application_id", app.ID, "error", err)
		return o.recordFailure(ctx, app, fmt.Errorf("marking processing: %w", err))
	}
	app.QueueStatus = models.QueueStatusProcessing

	o.mu.Lock()
	campaign.CurrentJobID = &app.ID
	if err := o.store.UpdateCampaign(ctx, campaign); err != nil {
		slog.Error("persisting current job", "campaign_id", campaign.ID, "error", err)
	}
	o.mu.Unlock()

	slog.Info("processing application",
		"application_id", app.ID,
		"campaign_id", campaign.ID,
		"company", app.Posting.Company,
		"title", app.Posting.Title)

	data, err := o.generator.Generate(ctx, profile, app.Posting)
	if err != nil {
		return o.recordFailure(ctx, app, fmt.Errorf("generating resume: %w", err))
	}
	artifactPath, err := resume.WriteArtifact(o.artifactDir, app.ID, data)
	if err != nil {
		return o.recordFailure(ctx, app, fmt.Errorf("writing artifact: %w", err))
	}
	defer func() {
		if err := resume.RemoveArtifact(artifactPath); err != nil {
			slog.Warn("removing artifact", "path", artifactPath, "error", err)
		}
	}()

	submitErr := o.runner.Submit(ctx, models.SubmitRequest{
		Posting:      app.Posting,
		ArtifactPath: artifactPath,
		DryRun:       dryRun,
	})

	switch {
	case submitErr == nil:
		// Retry bookkeeping is cleared on success so the record reads
		// clean even if it took a requeue to get here.
		if err := o.store.UpdateApplicationStatus(ctx, app.ID, models.QueueStatusCompleted,
			store.WithRetryCount(0)); err != nil {
			slog.Error("marking application completed", "application_id", app.ID, "error", err)
		}
		app.QueueStatus = models.QueueStatusCompleted
		slog.Info("application submitted", "application_id", app.ID, "dry_run", dryRun)
		return outcomeCompleted, ""

	case errors.Is(submitErr, models.ErrCaptchaDetected):
		return o.recordHalt(ctx, app, models.PauseReasonCaptcha, submitErr)

	case errors.Is(submitErr, models.ErrUserTakeover):
		return o.recordHalt(ctx, app, models.PauseReasonUserTakeover, submitErr)

	default:
		return o.recordFailure(ctx, app, submitErr)
	}
}

// recordFailure applies the retry policy for a generic failure: one
// requeue to pending within the retry budget, failed once the budget is
// spent.
func (o *Orchestrator) recordFailure(ctx context.Context, app *models.Application, cause error) (itemOutcome, string) {
	if app.RetryCount < o.maxRetries {
		app.RetryCount++
		err := o.store.UpdateApplicationStatus(ctx, app.ID, models.QueueStatusPending,
			store.WithRetryCount(app.RetryCount),
			store.WithLastError(cause.Error()))
		if err != nil {
			slog.Error("requeueing application", "application_id", app.ID, "error", err)
		}
		app.QueueStatus = models.QueueStatusPending
		slog.Warn("application requeued for retry",
			"application_id", app.ID,
			"retry_count", app.RetryCount,
			"error", cause)
		return outcomeRetried, ""
	}

	err := o.store.UpdateApplicationStatus(ctx, app.ID, models.QueueStatusFailed,
		store.WithLastError(cause.Error()))
	if err != nil {
		slog.Error("marking application failed", "application_id", app.ID, "error", err)
	}
	app.QueueStatus = models.QueueStatusFailed
	slog.Warn("application failed", "application_id", app.ID, "error", cause)
	return outcomeFailed, ""
}

// recordHalt pauses the triggering application. The campaign-level pause
// happens back in the loop so its persistence stays under the mutex.
func (o *Orchestrator) recordHalt(ctx context.Context, app *models.Application, reason string, cause error) (itemOutcome, string) {
	err := o.store.UpdateApplicationStatus(ctx, app.ID, models.QueueStatusPaused,
		store.WithPauseReason(reason),
		store.WithLastError(cause.Error()))
	if err != nil {
		slog.Error("pausing application", "application_id", app.ID, "error", err)
	}
	app.QueueStatus = models.QueueStatusPaused
	app.PauseReason = &reason
	slog.Warn("campaign halted on application",
		"application_id", app.ID,
		"reason", reason,
		"error", cause)
	return outcomeHalted, reason
}

// pauseLocked transitions the campaign to paused and persists it. Caller
// holds o.mu.
func (o *Orchestrator) pauseLocked(ctx context.Context, campaign *models.Campaign, reason string) {
	if err := transition(campaign, models.CampaignStatusPaused); err != nil {
		slog.Error("pausing campaign", "campaign_id", campaign.ID, "error", err)
		return
	}
	campaign.PauseReason = &reason
	campaign.CurrentJobID = nil
	if err := o.store.UpdateCampaign(ctx, campaign); err != nil {
		slog.Error("persisting paused campaign", "campaign_id", campaign.ID, "error", err)
	}
	o.cacheStatus(ctx, campaign)
	slog.Info("campaign paused", "campaign_id", campaign.ID, "reason", reason)
}

// finishLocked ends the campaign in a terminal status. On a stop, queued
// applications and the application a halt left paused are both released back
// to pending so no future run can strand them. Caller holds o.mu.
func (o *Orchestrator) finishLocked(ctx context.Context, campaign *models.Campaign, status string) {
	if status == models.CampaignStatusStopped {
		for _, app := range o.batch[o.cursor:] {
			var opts []store.ApplicationUpdateOption
			switch app.QueueStatus {
			case models.QueueStatusQueued:
			case models.QueueStatusPaused:
				opts = append(opts, store.WithPauseCleared())
			default:
				continue
			}
			err := o.store.UpdateApplicationStatus(ctx, app.ID, models.QueueStatusPending, opts...)
			if err != nil {
				slog.Error("releasing application", "application_id", app.ID, "error", err)
				continue
			}
			app.QueueStatus = models.QueueStatusPending
			app.PauseReason = nil
		}
	}

	if err := transition(campaign, status); err != nil {
		slog.Error("finishing campaign", "campaign_id", campaign.ID, "error", err)
		return
	}
	now := time.Now().UTC()
	campaign.FinishedAt = &now
	campaign.CurrentJobID = nil
	if err := o.store.UpdateCampaign(ctx, campaign); err != nil {
		slog.Error("persisting finished campaign", "campaign_id", campaign.ID, "error", err)
	}
	o.cacheStatus(ctx, campaign)
	slog.Info("campaign finished",
		"campaign_id", campaign.ID,
		"status", status,
		"completed", campaign.CompletedCount,
		"failed", campaign.FailedCount)
}

func (o *Orchestrator) cacheStatus(ctx context.Context, campaign *models.Campaign) {
	if err := o.cache.SetCampaignStatus(ctx, campaign.ID, campaign.Status, statusCacheTTL); err != nil {
		slog.Warn("caching campaign status", "campaign_id", campaign.ID, "error", err)
	}
}
