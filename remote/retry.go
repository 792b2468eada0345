package remote

import (
	"context"
	"time"

	"github.com/rohanthewiz/logger"
)

// RetryPolicy is the shared retry behavior consulted at every remote call
// site. Transient errors are retried with doubling backoff up to MaxAttempts;
// rate-limited and fatal errors surface immediately to the caller.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the service guidance: five attempts, starting
// at half a second and doubling, never sleeping longer than 16s per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    16 * time.Second,
	}
}

// Do runs fn, retrying transient failures per the policy. The operation name
// is only used for logging. Returns the last error when attempts exhaust, so
// callers can still classify it (e.g. to downgrade to a per-item failure).
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		switch Classify(lastErr) {
		case ClassRateLimited, ClassFatal:
			return lastErr
		}

		if attempt == attempts {
			break
		}

		logger.Debug("Transient remote failure, backing off",
			"op", op,
			"attempt", attempt,
			"delay", delay.String(),
			"error", lastErr.Error(),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}
