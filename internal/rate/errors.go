package rate

import "errors"

var (
	// ErrRateLimited reports that the window or cooldown rejected the call.
	ErrRateLimited = errors.New("rate: limit reached")
	// ErrBackendUnavailable wraps Redis failures. Callers fail closed on it.
	ErrBackendUnavailable = errors.New("rate: redis unavailable")
)
