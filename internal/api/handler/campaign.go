// Package handler contains the HTTP handlers for the control API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/applyforge/applyforge/internal/api/middleware"
	"github.com/applyforge/applyforge/internal/api/response"
	"github.com/applyforge/applyforge/internal/campaign"
	"github.com/applyforge/applyforge/internal/store"
	"github.com/applyforge/applyforge/pkg/models"
)

const (
	defaultCampaignLimit = 20
	maxCampaignLimit     = 100
)

// Campaigner defines the orchestrator surface the campaign handlers depend on.
type Campaigner interface {
	Start(ctx context.Context, userID uuid.UUID, dryRun bool, limit int) (*models.Campaign, error)
	Pause(ctx context.Context) (*models.Campaign, error)
	Resume(ctx context.Context) (*models.Campaign, error)
	Stop(ctx context.Context) (*models.Campaign, error)
	Status(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, []*models.Application, error)
	Active() *models.Campaign
}

// NewStartCampaignHandler returns the handler for POST /api/v1/campaigns.
func NewStartCampaignHandler(svc Campaigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			DryRun bool `json:"dry_run"`
			Limit  int  `json:"limit"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		limit := req.Limit
		if limit <= 0 {
			limit = defaultCampaignLimit
		}
		if limit > maxCampaignLimit {
			limit = maxCampaignLimit
		}

		c, err := svc.Start(r.Context(), userID, req.DryRun, limit)
		if err != nil {
			switch {
			case errors.Is(err, campaign.ErrCampaignActive):
				response.Error(w, http.StatusConflict, "CAMPAIGN_ACTIVE",
					"Another campaign is already active", nil)
			case errors.Is(err, campaign.ErrNoPendingApplications):
				response.Error(w, http.StatusConflict, "NO_PENDING_APPLICATIONS",
					"There are no pending applications to process", nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "PROFILE_NOT_FOUND",
					"No profile exists for this user", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, c)
	}
}

// NewCampaignActionHandler returns the handler for
// POST /api/v1/campaigns/{campaignID}/{pause|resume|stop}. The action only
// applies to the campaign this process currently owns; a stale id gets a
// conflict.
func NewCampaignActionHandler(svc Campaigner, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid campaign id", nil)
			return
		}

		active := svc.Active()
		if active == nil || active.ID != campaignID {
			response.Error(w, http.StatusConflict, "CAMPAIGN_NOT_ACTIVE",
				"Campaign is not the active campaign for this process", nil)
			return
		}

		var c *models.Campaign
		switch action {
		case "pause":
			c, err = svc.Pause(r.Context())
		case "resume":
			c, err = svc.Resume(r.Context())
		case "stop":
			c, err = svc.Stop(r.Context())
		default:
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Unknown action", nil)
			return
		}
		if err != nil {
			switch {
			case errors.Is(err, campaign.ErrInvalidTransition),
				errors.Is(err, campaign.ErrNotPaused):
				response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, c)
	}
}

// NewGetCampaignHandler returns the handler for GET /api/v1/campaigns/{campaignID}.
// The response includes the batch applications so current item and per-item
// last error are queryable mid-run.
func NewGetCampaignHandler(svc Campaigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid campaign id", nil)
			return
		}

		c, apps, err := svc.Status(r.Context(), campaignID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Campaign not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, campaignStatusResponse{
			Campaign:     c,
			Applications: apps,
		})
	}
}

type campaignStatusResponse struct {
	Campaign     *models.Campaign      `json:"campaign"`
	Applications []*models.Application `json:"applications"`
}
