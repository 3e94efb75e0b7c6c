// Package main is the entrypoint for the ApplyForge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/applyforge/applyforge/internal/api"
	"github.com/applyforge/applyforge/internal/api/handler"
	mw "github.com/applyforge/applyforge/internal/api/middleware"
	"github.com/applyforge/applyforge/internal/api/response"
	"github.com/applyforge/applyforge/internal/cache"
	"github.com/applyforge/applyforge/internal/campaign"
	"github.com/applyforge/applyforge/internal/config"
	"github.com/applyforge/applyforge/internal/ingest"
	"github.com/applyforge/applyforge/internal/match"
	"github.com/applyforge/applyforge/internal/resume"
	"github.com/applyforge/applyforge/internal/store"
	"github.com/applyforge/applyforge/internal/submit"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "submit_provider", cfg.Submit.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create submit runner and resume generator
	runner, err := submit.NewRunner(cfg.Submit)
	if err != nil {
		return fmt.Errorf("create submit runner: %w", err)
	}
	slog.Info("submit runner initialized", "runner", runner.Name())

	generator := resume.NewTextGenerator()

	// 6. Create store and services
	pgStore := store.NewPostgresStore(pool)

	orch := campaign.NewOrchestrator(pgStore, redisCache, generator, runner, cfg.Queue, cfg.Resume)
	if err := orch.Recover(ctx); err != nil {
		return fmt.Errorf("recover queue state: %w", err)
	}

	ingestor := ingest.NewIngestor(pgStore, match.NewRuleSet(), cfg.Ingest.MinMatchScore)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		StartCampaign:  handler.NewStartCampaignHandler(orch),
		PauseCampaign:  handler.NewCampaignActionHandler(orch, "pause"),
		ResumeCampaign: handler.NewCampaignActionHandler(orch, "resume"),
		StopCampaign:   handler.NewCampaignActionHandler(orch, "stop"),
		GetCampaign:    handler.NewGetCampaignHandler(orch),

		IngestPostings: handler.NewIngestHandler(ingestor),

		GetProfile: handler.NewGetProfileHandler(pgStore),
		PutProfile: handler.NewPutProfileHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout. Any running campaign is stopped
	// cooperatively so nothing is left in processing.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := orch.Shutdown(shutdownCtx); err != nil {
		slog.Warn("campaign shutdown incomplete", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
