package models

import (
	"time"

	"github.com/google/uuid"
)

// Preferences holds a user's matching preferences. MaxSeniority is an
// exclusion list of seniority terms despite its historical name.
type Preferences struct {
	RemoteOnly       bool     `json:"remote_only"`
	Locations        []string `json:"locations"`
	MaxSeniority     []string `json:"max_seniority"`
	ExcludedKeywords []string `json:"excluded_keywords"`
}

// Profile is the user profile postings are matched against.
type Profile struct {
	UserID      uuid.UUID   `db:"user_id"     json:"user_id"`
	FullName    string      `db:"full_name"   json:"full_name"`
	Email       string      `db:"email"       json:"email"`
	ResumeText  string      `db:"resume_text" json:"resume_text"`
	Skills      []string    `db:"skills"      json:"skills"`
	Preferences Preferences `db:"preferences" json:"preferences"`
	CreatedAt   time.Time   `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"  json:"updated_at"`
}
