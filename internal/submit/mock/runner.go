// Package mock provides models.SubmitRunner implementations for testing and
// for running the pipeline without a real browser sidecar.
package mock

import (
	"context"

	"github.com/applyforge/applyforge/pkg/models"
)

// Runner satisfies models.SubmitRunner for testing.
type Runner struct {
	Name_      string
	SubmitFunc func(ctx context.Context, req models.SubmitRequest) error

	// Requests records every submit call, in order.
	Requests []models.SubmitRequest
}

func (r *Runner) Name() string { return r.Name_ }

func (r *Runner) Submit(ctx context.Context, req models.SubmitRequest) error {
	r.Requests = append(r.Requests, req)
	if r.SubmitFunc != nil {
		return r.SubmitFunc(ctx, req)
	}
	return nil
}

// NewRunner returns a Runner where every submission succeeds.
func NewRunner() *Runner {
	return &Runner{Name_: "mock"}
}

// NewFailingRunner returns a Runner that always returns the given error.
func NewFailingRunner(err error) *Runner {
	return &Runner{
		Name_: "mock-failing",
		SubmitFunc: func(_ context.Context, _ models.SubmitRequest) error {
			return err
		},
	}
}

// NewCaptchaRunner returns a Runner that reports a captcha wall on every
// submission.
func NewCaptchaRunner() *Runner {
	return NewFailingRunner(models.ErrCaptchaDetected)
}

// NewTakeoverRunner returns a Runner that reports a user takeover on every
// submission.
func NewTakeoverRunner() *Runner {
	return NewFailingRunner(models.ErrUserTakeover)
}

// Compile-time check that Runner implements SubmitRunner.
var _ models.SubmitRunner = (*Runner)(nil)
