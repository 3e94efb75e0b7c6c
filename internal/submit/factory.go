// Package submit wires the submission-runner implementations behind the
// models.SubmitRunner contract.
package submit

import (
	"fmt"

	"github.com/applyforge/applyforge/internal/config"
	"github.com/applyforge/applyforge/internal/submit/agent"
	"github.com/applyforge/applyforge/internal/submit/mock"
	"github.com/applyforge/applyforge/pkg/models"
)

// NewRunner constructs the appropriate submission runner based on config.
// Called once at server startup.
func NewRunner(cfg config.SubmitConfig) (models.SubmitRunner, error) {
	switch cfg.Provider {
	case "agent":
		return agent.NewRunner(cfg.Agent), nil
	case "mock":
		return mock.NewRunner(), nil
	default:
		return nil, fmt.Errorf("unknown submit provider %q: must be one of agent, mock", cfg.Provider)
	}
}
