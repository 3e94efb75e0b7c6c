// Package api wires the chi router for the control API.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/applyforge/applyforge/internal/api/middleware"
	"github.com/applyforge/applyforge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	StartCampaign    http.HandlerFunc
	PauseCampaign    http.HandlerFunc
	ResumeCampaign   http.HandlerFunc
	StopCampaign     http.HandlerFunc
	GetCampaign      http.HandlerFunc
	IngestPostings   http.HandlerFunc
	GetProfile       http.HandlerFunc
	PutProfile       http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/campaigns", orNotImplemented(deps.StartCampaign))
		r.Get("/api/v1/campaigns/{campaignID}", orNotImplemented(deps.GetCampaign))
		r.Post("/api/v1/campaigns/{campaignID}/pause", orNotImplemented(deps.PauseCampaign))
		r.Post("/api/v1/campaigns/{campaignID}/resume", orNotImplemented(deps.ResumeCampaign))
		r.Post("/api/v1/campaigns/{campaignID}/stop", orNotImplemented(deps.StopCampaign))

		r.Post("/api/v1/postings", orNotImplemented(deps.IngestPostings))

		r.Get("/api/v1/profile", orNotImplemented(deps.GetProfile))
		r.Put("/api/v1/profile", orNotImplemented(deps.PutProfile))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
