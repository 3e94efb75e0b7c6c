package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign statuses. At most one campaign per process may be in a
// non-terminal working state (processing or paused) at any time.
const (
	CampaignStatusIdle       = "idle"
	CampaignStatusProcessing = "processing"
	CampaignStatusPaused     = "paused"
	CampaignStatusStopped    = "stopped"
	CampaignStatusCompleted  = "completed"
)

// Reasons a campaign can be paused. Captcha and user-takeover come from the
// submission runner; manual comes from an explicit pause request.
const (
	PauseReasonCaptcha      = "captcha"
	PauseReasonUserTakeover = "user_takeover"
	PauseReasonManual       = "manual"
)

// Campaign is one orchestration run over a batch of queued Applications.
type Campaign struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	UserID         uuid.UUID  `db:"user_id"         json:"user_id"`
	Status         string     `db:"status"          json:"status"`
	DryRun         bool       `db:"dry_run"         json:"dry_run"`
	Limit          int        `db:"batch_limit"     json:"limit"`
	TotalCount     int        `db:"total_count"     json:"total_count"`
	CompletedCount int        `db:"completed_count" json:"completed_count"`
	FailedCount    int        `db:"failed_count"    json:"failed_count"`
	CurrentJobID   *uuid.UUID `db:"current_job_id"  json:"current_job_id,omitempty"`
	PauseReason    *string    `db:"pause_reason"    json:"pause_reason,omitempty"`
	StartedAt      *time.Time `db:"started_at"      json:"started_at,omitempty"`
	FinishedAt     *time.Time `db:"finished_at"     json:"finished_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}
