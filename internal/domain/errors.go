package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels). Adapters wrap causes with
// fmt.Errorf("op=<entity>.<verb>: %w", err) so call sites classify with
// errors.Is against these.
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrRateLimited          = errors.New("rate limited")
	ErrExternalTransient    = errors.New("external transient")
	ErrExternalFatal        = errors.New("external fatal")
	ErrPersistenceTransient = errors.New("persistence transient")
	ErrPersistenceFatal     = errors.New("persistence fatal")
	ErrConfigInvalid        = errors.New("config invalid")
	ErrAlreadyRunning       = errors.New("already running")
	ErrInternal             = errors.New("internal error")
)

// RateLimitError carries the server-suggested wait alongside the scope that
// was throttled. It matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Scope, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// TransientError marks a recoverable upstream failure (5xx, network). The
// client retries these; exhausted retries surface the last one.
type TransientError struct {
	Status int
	Cause  error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient upstream failure (status %d): %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("transient upstream failure (status %d)", e.Status)
}

func (e *TransientError) Unwrap() error { return ErrExternalTransient }

// FatalError marks a non-retryable upstream failure (4xx other than 404/429,
// or a malformed body).
type FatalError struct {
	Status  int
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal upstream failure (status %d): %s", e.Status, e.Message)
}

func (e *FatalError) Unwrap() error { return ErrExternalFatal }

// IsRateLimited reports whether err is (or wraps) a rate-limit surface.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsNotFound reports whether err is (or wraps) an absence.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTransient reports whether err is (or wraps) a recoverable upstream or
// persistence failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrExternalTransient) || errors.Is(err, ErrPersistenceTransient)
}

// IsConfigInvalid reports whether err is (or wraps) a configuration rejection.
func IsConfigInvalid(err error) bool { return errors.Is(err, ErrConfigInvalid) }

// RetryAfterOf extracts the suggested wait from a rate-limit error chain,
// zero when none is attached.
func RetryAfterOf(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}

// IsCancellation reports whether err is a context cancellation or deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
