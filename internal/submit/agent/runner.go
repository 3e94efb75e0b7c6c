// Package agent implements models.SubmitRunner against the local
// browser-automation sidecar's HTTP API.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/applyforge/applyforge/internal/config"
	"github.com/applyforge/applyforge/pkg/models"
)

// ErrAgentUnreachable reports that the sidecar could not be reached. It is a
// generic failure from the orchestrator's point of view.
var ErrAgentUnreachable = errors.New("submission agent unreachable")

// Runner submits applications through the sidecar.
type Runner struct {
	baseURL string
	client  *http.Client
}

func NewRunner(cfg config.AgentConfig) *Runner {
	return &Runner{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (r *Runner) Name() string { return "agent" }

type submitPayload struct {
	Posting      models.PostingSnapshot `json:"posting"`
	ArtifactPath string                 `json:"artifact_path"`
	DryRun       bool                   `json:"dry_run"`
}

type submitResponse struct {
	Outcome string `json:"outcome"`
	Detail  string `json:"detail"`
}

// Submit posts the request to the sidecar and maps its outcome onto the
// tagged error contract: "captcha" and "user_takeover" become the halting
// sentinels, everything else unsuccessful is generic.
func (r *Runner) Submit(ctx context.Context, req models.SubmitRequest) error {
	body, err := json.Marshal(submitPayload{
		Posting:      req.Posting,
		ArtifactPath: req.ArtifactPath,
		DryRun:       req.DryRun,
	})
	if err != nil {
		return fmt.Errorf("encoding submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/v1/submit", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submission agent returned status %d", resp.StatusCode)
	}

	var agentResp submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&agentResp); err != nil {
		return fmt.Errorf("decoding agent response: %w", err)
	}

	switch agentResp.Outcome {
	case "submitted":
		return nil
	case "captcha":
		return fmt.Errorf("%w: %s", models.ErrCaptchaDetected, agentResp.Detail)
	case "user_takeover":
		return fmt.Errorf("%w: %s", models.ErrUserTakeover, agentResp.Detail)
	default:
		return fmt.Errorf("submission failed: %s", agentResp.Detail)
	}
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	return err
}

var _ models.SubmitRunner = (*Runner)(nil)
