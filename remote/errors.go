package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// Error Taxonomy
//
// Every remote failure falls into one of three classes:
//
//   Transient   — network hiccups, 5xx responses. Retried in place by
//                 RetryPolicy; invisible to callers unless retries exhaust.
//   RateLimited — the server told us to back off for a specific duration.
//                 Never retried in-process: the run terminates promptly and
//                 reports the wait to the operator rather than parking a
//                 worker on a server-dictated sleep.
//   Fatal       — authentication rejection, identity mismatch, incompatible
//                 store schema. Never retried.
//
// Classification is an explicit function consulted at every call site, not
// scattered type switches.
// ============================================================================

// Classification buckets a remote error for retry decisions.
type Classification int

const (
	ClassTransient Classification = iota
	ClassRateLimited
	ClassFatal
)

// String returns the classification label used in logs and reports.
func (c Classification) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// RateLimitError carries the server-specified wait duration from a
// rate-limit response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by remote service, retry after %s", e.RetryAfter)
}

// RateLimited constructs a RateLimitError with the given wait duration.
func RateLimited(retryAfter time.Duration) error {
	return &RateLimitError{RetryAfter: retryAfter}
}

// FatalError marks a condition that must never be retried.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return "fatal: " + e.Reason + ": " + e.Err.Error()
	}
	return "fatal: " + e.Reason
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal constructs a FatalError with a reason and optional cause.
func Fatal(reason string, err error) error {
	return &FatalError{Reason: reason, Err: err}
}

// NotFoundError reports that an entity no longer exists remotely. The
// download pool treats a missing note as a silent drop (it was expunged
// between metadata sync and content download), not as a failure.
type NotFoundError struct {
	Kind string
	GUID string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + e.GUID
}

// IsNotFound reports whether err is a remote not-found condition.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Classify buckets an error into the retry taxonomy. Context cancellation
// is classified Fatal — the run was asked to stop, retrying is wrong.
func Classify(err error) Classification {
	if err == nil {
		return ClassTransient
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return ClassRateLimited
	}

	var fe *FatalError
	if errors.As(err, &fe) {
		return ClassFatal
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	return ClassTransient
}

// RetryAfterOf extracts the server-specified wait duration from a
// rate-limit error, or zero if err is not rate limiting.
func RetryAfterOf(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
