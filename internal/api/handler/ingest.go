package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	mw "github.com/applyforge/applyforge/internal/api/middleware"
	"github.com/applyforge/applyforge/internal/api/response"
	"github.com/applyforge/applyforge/internal/ingest"
	"github.com/applyforge/applyforge/internal/store"
	"github.com/applyforge/applyforge/pkg/models"
)

const maxPostingsPerRequest = 200

// Ingester defines the interface the ingest handler depends on.
type Ingester interface {
	IngestPostings(ctx context.Context, userID uuid.UUID, postings []*models.Posting) ([]ingest.Result, error)
}

type postingPayload struct {
	ATSProvider    string `json:"ats_provider"`
	ATSJobID       string `json:"ats_job_id"`
	Company        string `json:"company"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	Location       string `json:"location"`
	IsRemote       bool   `json:"is_remote"`
	SalaryRange    string `json:"salary_range"`
	EmploymentType string `json:"employment_type"`
	Description    string `json:"description"`
	PostedAt       string `json:"posted_at"`
}

// NewIngestHandler returns the handler for POST /api/v1/postings. Scrapers
// push batches of postings here; each is upserted and classified.
func NewIngestHandler(svc Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Postings []postingPayload `json:"postings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.Postings) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "postings is required", nil)
			return
		}
		if len(req.Postings) > maxPostingsPerRequest {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"too many postings in one request", map[string]int{"max": maxPostingsPerRequest})
			return
		}

		postings := make([]*models.Posting, 0, len(req.Postings))
		for i, p := range req.Postings {
			posting, err := p.toModel()
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					err.Error(), map[string]int{"index": i})
				return
			}
			postings = append(postings, posting)
		}

		results, err := svc.IngestPostings(r.Context(), userID, postings)
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

		response.Created(w, map[string]any{
			"results": results,
		})
	}
}

func (p postingPayload) toModel() (*models.Posting, error) {
	switch {
	case p.ATSProvider == "":
		return nil, errors.New("ats_provider is required")
	case p.ATSJobID == "":
		return nil, errors.New("ats_job_id is required")
	case p.Company == "":
		return nil, errors.New("company is required")
	case p.Title == "":
		return nil, errors.New("title is required")
	case p.URL == "":
		return nil, errors.New("url is required")
	}

	posting := &models.Posting{
		ATSProvider:    p.ATSProvider,
		ATSJobID:       p.ATSJobID,
		Company:        p.Company,
		Title:          p.Title,
		URL:            p.URL,
		Location:       p.Location,
		IsRemote:       p.IsRemote,
		SalaryRange:    p.SalaryRange,
		EmploymentType: p.EmploymentType,
		Description:    p.Description,
	}
	if p.PostedAt != "" {
		t, err := time.Parse(time.RFC3339, p.PostedAt)
		if err != nil {
			return nil, errors.New("posted_at must be a valid RFC3339 timestamp")
		}
		posting.PostedAt = &t
	}
	return posting, nil
}
