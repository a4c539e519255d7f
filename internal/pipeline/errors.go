package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxpage/voxpage/internal/jobstore"
)

var (
	// ErrNotFound means the job id is unknown.
	ErrNotFound = jobstore.ErrNotFound

	// ErrNotReady means the job exists but the requested artifact has not
	// been produced yet.
	ErrNotReady = errors.New("artifact not ready")

	// ErrQueueFull means the submission queue is at capacity.
	ErrQueueFull = errors.New("job queue full")
)

// ProviderTimeoutError marks a synthesis or alignment call that exceeded its
// deadline. The provider name tells the operator which upstream stalled.
type ProviderTimeoutError struct {
	Provider string
	Err      error
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Provider, e.Err)
}

func (e *ProviderTimeoutError) Unwrap() error { return e.Err }

// timeoutOf wraps err as a ProviderTimeoutError when the cause was a
// deadline, otherwise returns err unchanged.
func timeoutOf(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderTimeoutError{Provider: provider, Err: err}
	}
	return err
}
