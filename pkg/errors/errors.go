package pollpulse_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
)

// Engine errors
var (
	// ErrLoadFailed means the initial seed read for a subscription failed.
	// The subscription does not start; the caller must retry.
	ErrLoadFailed = errors.New("seed load failed")
	// ErrStreamTransient means a single recompute failed. The engine keeps
	// the last-known-good value and retries on the next notification.
	ErrStreamTransient = errors.New("transient stream error")
	// ErrPresenceDesync means the presence channel never acknowledged the
	// subscription in time. The viewer count is stale, not zero.
	ErrPresenceDesync = errors.New("presence channel desynced")
)

// Vote policy errors
var (
	ErrPollClosed           = errors.New("poll closed")
	ErrVoteChangeDisallowed = errors.New("vote change disallowed")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
