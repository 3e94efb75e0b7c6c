package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	mw "github.com/applyforge/applyforge/internal/api/middleware"
	"github.com/applyforge/applyforge/internal/api/response"
	"github.com/applyforge/applyforge/internal/store"
	"github.com/applyforge/applyforge/pkg/models"
)

// ProfileStore defines the store surface the profile handlers depend on.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
}

// NewGetProfileHandler returns the handler for GET /api/v1/profile.
func NewGetProfileHandler(s ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		profile, err := s.GetProfile(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "PROFILE_NOT_FOUND",
					"No profile exists for this user", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, profile)
	}
}

// NewPutProfileHandler returns the handler for PUT /api/v1/profile.
func NewPutProfileHandler(s ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			FullName    string             `json:"full_name"`
			Email       string             `json:"email"`
			ResumeText  string             `json:"resume_text"`
			Skills      []string           `json:"skills"`
			Preferences models.Preferences `json:"preferences"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if strings.TrimSpace(req.FullName) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "full_name is required", nil)
			return
		}
		if strings.TrimSpace(req.ResumeText) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "resume_text is required", nil)
			return
		}

		profile := &models.Profile{
			UserID:      userID,
			FullName:    req.FullName,
			Email:       req.Email,
			ResumeText:  req.ResumeText,
			Skills:      req.Skills,
			Preferences: req.Preferences,
			UpdatedAt:   time.Now().UTC(),
		}
		if err := s.UpsertProfile(r.Context(), profile); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, profile)
	}
}
