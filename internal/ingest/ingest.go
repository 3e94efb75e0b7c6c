// Package ingest is the boundary where scraped postings enter the system:
// it upserts postings idempotently, runs them through the hard gates and
// the scoring engine, and creates pending applications for the ones worth
// applying to.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/applyforge/applyforge/internal/match"
	"github.com/applyforge/applyforge/internal/store"
	"github.com/applyforge/applyforge/pkg/models"
)

// Outcome describes what ingestion did with one posting.
type Outcome string

const (
	// OutcomeQueued means a pending application was created.
	OutcomeQueued Outcome = "queued"
	// OutcomeRejected means a hard gate rejected the posting.
	OutcomeRejected Outcome = "rejected"
	// OutcomeBelowThreshold means the posting passed the gates but scored
	// under the configured minimum.
	OutcomeBelowThreshold Outcome = "below_threshold"
	// OutcomeDuplicate means an application for this posting already
	// exists for the user.
	OutcomeDuplicate Outcome = "duplicate"
)

// Result is the per-posting classification record returned to the caller.
type Result struct {
	Posting    *models.Posting            `json:"posting"`
	Outcome    Outcome                    `json:"outcome"`
	Reason     string                     `json:"reason"`
	MatchScore int                        `json:"match_score"`
	Breakdown  models.MatchScoreBreakdown `json:"breakdown"`
}

// Ingestor classifies incoming postings against a user profile.
type Ingestor struct {
	store    store.Store
	rules    *match.RuleSet
	minScore int
}

func NewIngestor(st store.Store, rules *match.RuleSet, minScore int) *Ingestor {
	return &Ingestor{
		store:    st,
		rules:    rules,
		minScore: minScore,
	}
}

// IngestPostings upserts each posting and classifies it for the user.
// Re-ingesting the same posting refreshes its staleness bookkeeping and
// reports a duplicate instead of creating a second application. Errors on
// one posting do not abort the rest of the batch.
func (in *Ingestor) IngestPostings(ctx context.Context, userID uuid.UUID, postings []*models.Posting) ([]Result, error) {
	profile, err := in.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	results := make([]Result, 0, len(postings))
	for _, posting := range postings {
		result, err := in.ingestOne(ctx, userID, profile, posting)
		if err != nil {
			slog.Error("ingesting posting",
				"ats_provider", posting.ATSProvider,
				"ats_job_id", posting.ATSJobID,
				"error", err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (in *Ingestor) ingestOne(ctx context.Context, userID uuid.UUID, profile *models.Profile, posting *models.Posting) (Result, error) {
	if posting.ID == uuid.Nil {
		posting.ID = uuid.New()
	}
	stored, err := in.store.UpsertPosting(ctx, posting)
	if err != nil {
		return Result{}, fmt.Errorf("upserting posting: %w", err)
	}

	verdict, _ := in.rules.Evaluate(stored, profile)
	breakdown := match.Score(stored, profile)

	result := Result{
		Posting:    stored,
		MatchScore: breakdown.Total,
		Breakdown:  breakdown,
	}

	if verdict.Verdict == match.VerdictRejected {
		result.Outcome = OutcomeRejected
		result.Reason = verdict.Reason
		return result, nil
	}
	if breakdown.Total < in.minScore {
		result.Outcome = OutcomeBelowThreshold
		result.Reason = fmt.Sprintf("match score %d below minimum %d", breakdown.Total, in.minScore)
		return result, nil
	}

	now := time.Now().UTC()
	app := &models.Application{
		ID:          uuid.New(),
		UserID:      userID,
		Posting:     stored.Snapshot(),
		QueueStatus: models.QueueStatusPending,
		MatchScore:  breakdown.Total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := in.store.CreateApplication(ctx, app); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			result.Outcome = OutcomeDuplicate
			result.Reason = "application already exists for this posting"
			return result, nil
		}
		return Result{}, fmt.Errorf("creating application: %w", err)
	}

	result.Outcome = OutcomeQueued
	result.Reason = verdict.Reason
	slog.Info("application queued",
		"application_id", app.ID,
		"company", stored.Company,
		"title", stored.Title,
		"match_score", breakdown.Total)
	return result, nil
}
