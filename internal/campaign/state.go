// Package campaign implements the campaign state machine and the queue
// orchestrator that drives queued applications through submission one at a
// time.
package campaign

import (
	"errors"
	"fmt"

	"github.com/applyforge/applyforge/pkg/models"
)

var (
	// ErrCampaignActive is returned when a start request arrives while
	// another campaign is processing or paused. Start requests are rejected
	// immediately, never queued.
	ErrCampaignActive = errors.New("another campaign is already active")

	// ErrInvalidTransition is returned for a campaign status change outside
	// the allowed transition set.
	ErrInvalidTransition = errors.New("invalid campaign transition")

	// ErrNoPendingApplications is returned when a campaign start finds
	// nothing to process.
	ErrNoPendingApplications = errors.New("no pending applications to process")

	// ErrNotPaused is returned when resume is requested for a campaign that
	// is not paused.
	ErrNotPaused = errors.New("campaign is not paused")
)

// transitions is the exact campaign transition set. stopped and completed
// are terminal: a new campaign must be created to continue.
var transitions = map[string][]string{
	models.CampaignStatusIdle:       {models.CampaignStatusProcessing},
	models.CampaignStatusProcessing: {models.CampaignStatusPaused, models.CampaignStatusStopped, models.CampaignStatusCompleted},
	models.CampaignStatusPaused:     {models.CampaignStatusProcessing},
	models.CampaignStatusStopped:    {},
	models.CampaignStatusCompleted:  {},
}

// CanTransition reports whether a campaign may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a campaign status admits no further
// transitions.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

// transition mutates the campaign status after validating the move. The
// caller persists the campaign; persisting the new status is the state
// machine's only externally observable effect.
func transition(c *models.Campaign, to string) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	if to != models.CampaignStatusPaused {
		c.PauseReason = nil
	}
	return nil
}
