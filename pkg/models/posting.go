// Package models contains shared data models used across the applyforge codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Posting is a scraped job listing from an applicant-tracking system.
// Its identity key is (ATSProvider, ATSJobID); re-ingesting the same posting
// refreshes LastSeenAt/IsActive instead of creating a duplicate row.
type Posting struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	ATSProvider    string     `db:"ats_provider"    json:"ats_provider"`
	ATSJobID       string     `db:"ats_job_id"      json:"ats_job_id"`
	Company        string     `db:"company"         json:"company"`
	Title          string     `db:"title"           json:"title"`
	URL            string     `db:"url"             json:"url"`
	Location       string     `db:"location"        json:"location"`
	IsRemote       bool       `db:"is_remote"       json:"is_remote"`
	SalaryRange    string     `db:"salary_range"    json:"salary_range"`
	EmploymentType string     `db:"employment_type" json:"employment_type"`
	Description    string     `db:"description"     json:"description"`
	PostedAt       *time.Time `db:"posted_at"       json:"posted_at,omitempty"`
	LastSeenAt     time.Time  `db:"last_seen_at"    json:"last_seen_at"`
	IsActive       bool       `db:"is_active"       json:"is_active"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// PostingSnapshot is the denormalized copy of a Posting carried by an
// Application. Postings can change or go stale after an application
// references them, so the snapshot is frozen at application-creation time.
type PostingSnapshot struct {
	PostingID   uuid.UUID `json:"posting_id"`
	ATSProvider string    `json:"ats_provider"`
	ATSJobID    string    `json:"ats_job_id"`
	Company     string    `json:"company"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Location    string    `json:"location"`
	IsRemote    bool      `json:"is_remote"`
	Description string    `json:"description"`
}

// Snapshot freezes the fields an Application needs from a Posting.
func (p *Posting) Snapshot() PostingSnapshot {
	return PostingSnapshot{
		PostingID:   p.ID,
		ATSProvider: p.ATSProvider,
		ATSJobID:    p.ATSJobID,
		Company:     p.Company,
		Title:       p.Title,
		URL:         p.URL,
		Location:    p.Location,
		IsRemote:    p.IsRemote,
		Description: p.Description,
	}
}
