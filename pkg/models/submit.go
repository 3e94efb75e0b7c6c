package models

import (
	"context"
	"errors"
)

// Tagged submission failures. The orchestrator discriminates these with
// errors.Is; they are the only two failure kinds that halt a whole campaign.
var (
	ErrCaptchaDetected = errors.New("captcha challenge detected")
	ErrUserTakeover    = errors.New("user took over the browser session")
)

// SubmitRequest carries everything a runner needs to submit one application.
// DryRun exercises the full pipeline but skips the real submission side
// effect.
type SubmitRequest struct {
	Posting      PostingSnapshot
	ArtifactPath string
	DryRun       bool
}

// SubmitRunner performs the browser-automation submission step. The core
// never calls a concrete runner directly — always inject this interface.
//
// Submit returns nil on success. Captcha walls and manual user takeover are
// reported as ErrCaptchaDetected and ErrUserTakeover sentinel errors (matched
// with errors.Is); any other error is a generic, retryable failure.
type SubmitRunner interface {
	Submit(ctx context.Context, req SubmitRequest) error
	// Name returns the runner identifier (e.g., "agent", "mock").
	Name() string
}

// ResumeGenerator renders a tailored submission artifact for one posting.
// A failure must propagate as an error, never a silent empty artifact.
type ResumeGenerator interface {
	Generate(ctx context.Context, profile *Profile, posting PostingSnapshot) ([]byte, error)
	Name() string
}
