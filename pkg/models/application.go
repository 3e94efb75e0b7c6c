package models

import (
	"time"

	"github.com/google/uuid"
)

// Queue statuses an Application moves through. The orchestrator is the only
// writer: pending -> queued -> processing -> completed | failed | paused.
// A paused application goes back to queued on resume; a generically failed
// one re-enters pending once before failing terminally.
const (
	QueueStatusPending    = "pending"
	QueueStatusQueued     = "queued"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
	QueueStatusPaused     = "paused"
)

// Application is one user's intent to apply to a Posting. It carries a frozen
// posting snapshot rather than a live reference.
type Application struct {
	ID           uuid.UUID       `db:"id"             json:"id"`
	UserID       uuid.UUID       `db:"user_id"        json:"user_id"`
	Posting      PostingSnapshot `db:"posting"        json:"posting"`
	QueueStatus  string          `db:"queue_status"   json:"queue_status"`
	RetryCount   int             `db:"retry_count"    json:"retry_count"`
	PauseReason  *string         `db:"pause_reason"   json:"pause_reason,omitempty"`
	LastError    *string         `db:"last_error"     json:"last_error,omitempty"`
	MatchScore   int             `db:"match_score"    json:"match_score"`
	QueueBatchID *uuid.UUID      `db:"queue_batch_id" json:"queue_batch_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at"     json:"created_at"`
	QueuedAt     *time.Time      `db:"queued_at"      json:"queued_at,omitempty"`
	StartedAt    *time.Time      `db:"started_at"     json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at"   json:"completed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at"     json:"updated_at"`
}
