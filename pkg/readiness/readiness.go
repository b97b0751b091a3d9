package readiness

import (
	"context"
	"fmt"
	"time"
)

// Result represents the outcome of a single readiness probe
type Result struct {
	Ready     bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface all readiness probes implement
type Checker interface {
	// Check performs one probe attempt and returns the result
	Check(ctx context.Context) Result
}

// TimeoutError reports that the target never became ready within the
// allowed attempts. It is recoverable: the caller may re-invoke the
// wait (and provisioning) from the top.
type TimeoutError struct {
	Attempts int
	Last     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("target not ready after %d attempts (last: %s)", e.Attempts, e.Last)
}

// WaitUntilReady probes the target at a fixed interval until it
// succeeds, the attempts are exhausted, or the context is cancelled.
// The wait between attempts is a blocking timer, never a busy-spin,
// and context cancellation lets an operator abort a stuck bootstrap.
func WaitUntilReady(ctx context.Context, checker Checker, interval time.Duration, maxAttempts int) error {
	if maxAttempts < 1 {
		return fmt.Errorf("maxAttempts must be at least 1, got %d", maxAttempts)
	}

	timer := time.NewTimer(0) // first attempt immediately
	defer timer.Stop()

	var last Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		last = checker.Check(ctx)
		if last.Ready {
			return nil
		}
		if attempt < maxAttempts {
			timer.Reset(interval)
		}
	}
	return &TimeoutError{Attempts: maxAttempts, Last: last.Message}
}
