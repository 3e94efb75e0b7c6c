package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the applyforge server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Ingest   IngestConfig
	Submit   SubmitConfig
	Resume   ResumeConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// QueueConfig tunes the campaign orchestrator. ItemDelay is the fixed wait
// between items (anti-detection pacing, not a backoff policy); MaxRetries is
// the per-application retry budget for generic failures.
type QueueConfig struct {
	ItemDelay  time.Duration
	MaxRetries int
}

// IngestConfig tunes posting classification at ingestion time. Postings that
// pass all hard gates but score below MinMatchScore do not become
// applications.
type IngestConfig struct {
	MinMatchScore int
}

type SubmitConfig struct {
	Provider string
	Agent    AgentConfig
}

// AgentConfig points at the local browser-automation sidecar.
type AgentConfig struct {
	BaseURL string
	Timeout time.Duration
}

type ResumeConfig struct {
	ArtifactDir string
}

var validSubmitProviders = map[string]bool{
	"agent": true,
	"mock":  true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("APPLYFORGE_PORT", 8080),
			Env:  envString("APPLYFORGE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			ItemDelay:  envDuration("QUEUE_ITEM_DELAY", 5*time.Second),
			MaxRetries: envInt("QUEUE_MAX_RETRIES", 1),
		},
		Ingest: IngestConfig{
			MinMatchScore: envInt("INGEST_MIN_MATCH_SCORE", 50),
		},
		Submit: SubmitConfig{
			Provider: envString("SUBMIT_PROVIDER", "agent"),
			Agent: AgentConfig{
				BaseURL: envString("SUBMIT_AGENT_BASE_URL", "http://localhost:9320"),
				Timeout: envDuration("SUBMIT_AGENT_TIMEOUT", 3*time.Minute),
			},
		},
		Resume: ResumeConfig{
			ArtifactDir: envString("RESUME_ARTIFACT_DIR", os.TempDir()),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.ItemDelay < 0 {
		return fmt.Errorf("QUEUE_ITEM_DELAY must not be negative, got %s", c.Queue.ItemDelay)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must not be negative, got %d", c.Queue.MaxRetries)
	}

	if c.Ingest.MinMatchScore < 0 || c.Ingest.MinMatchScore > 100 {
		return fmt.Errorf("INGEST_MIN_MATCH_SCORE must be between 0 and 100, got %d", c.Ingest.MinMatchScore)
	}

	if !validSubmitProviders[c.Submit.Provider] {
		return fmt.Errorf("SUBMIT_PROVIDER must be one of agent, mock; got %q", c.Submit.Provider)
	}
	if c.Submit.Provider == "agent" {
		if !strings.HasPrefix(c.Submit.Agent.BaseURL, "http://") && !strings.HasPrefix(c.Submit.Agent.BaseURL, "https://") {
			return fmt.Errorf("SUBMIT_AGENT_BASE_URL must start with http:// or https://, got %q", c.Submit.Agent.BaseURL)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
