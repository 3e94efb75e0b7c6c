package store

import (
	"context"
	"errors"
	"time"

	"github.com/applyforge/applyforge/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// UpsertPosting inserts or refreshes a posting keyed on
	// (ats_provider, ats_job_id). Re-upserting the same posting updates
	// last_seen_at/is_active without creating a duplicate row.
	UpsertPosting(ctx context.Context, posting *models.Posting) (*models.Posting, error)
	GetPosting(ctx context.Context, id uuid.UUID) (*models.Posting, error)

	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	// FetchPendingApplications returns pending applications for a user in
	// creation-time ascending order, up to limit.
	FetchPendingApplications(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Application, error)
	ListApplicationsByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.Application, error)
	UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status string, opts ...ApplicationUpdateOption) error
	// RequeueOrphaned moves applications left in processing, queued or
	// paused by an unclean prior run back to pending and closes the
	// non-terminal campaigns that owned them. Startup only; it assumes no
	// campaign loop is running. Returns the number of applications requeued.
	RequeueOrphaned(ctx context.Context) (int, error)

	CreateCampaign(ctx context.Context, campaign *models.Campaign) error
	UpdateCampaign(ctx context.Context, campaign *models.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)

	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type applicationUpdateParams struct {
	LastError    *string
	PauseReason  *string
	ClearPause   bool
	RetryCount   *int
	QueueBatchID *uuid.UUID
	StartedAt    *time.Time
}

type ApplicationUpdateOption func(*applicationUpdateParams)

func WithLastError(msg string) ApplicationUpdateOption {
	return func(p *applicationUpdateParams) {
		p.LastError = &msg
	}
}

func WithPauseReason(reason string) ApplicationUpdateOption {
	return func(p *applicationUpdateParams) {
		p.PauseReason = &reason
	}
}

// WithPauseCleared resets the pause reason, used when a paused application is
// re-queued on resume.
func WithPauseCleared() ApplicationUpdateOption {
	return func(p *applicationUpdateParams) {
		p.ClearPause = true
	}
}

func WithRetryCount(n int) ApplicationUpdateOption {
	return func(p *applicationUpdateParams) {
		p.RetryCount = &n
	}
}

func WithQueueBatchID(id uuid.UUID) ApplicationUpdateOption {
	return func(p *applicationUpdateParams) {
		p.QueueBatchID = &id
	}
}

func WithStartedAt(t time.Time) ApplicationUpdateOption {
	return func(p *applicationUpdateParams) {
		p.StartedAt = &t
	}
}
