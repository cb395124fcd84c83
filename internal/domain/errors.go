package domain

import (
	"errors"
	"fmt"
)

var (
	// Retry-exhaustion sentinels, one per transient failure class.
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")
	ErrServerUnavailable  = errors.New("server unavailable")
	ErrNetworkFailure     = errors.New("network failure")

	// ErrUnrecognizedSide marks a fill whose side string is neither an
	// open_* nor close_* variant with a long/short direction.
	ErrUnrecognizedSide = errors.New("unrecognized side")

	// ErrHedgedExposure marks a direction flip while a symbol still has
	// nonzero exposure. Simultaneous long+short on one symbol cannot be
	// represented by the single-accumulator model, so it is rejected
	// rather than misattributed.
	ErrHedgedExposure = errors.New("hedged exposure not supported")

	ErrNotFound     = errors.New("not found")
	ErrContextDone  = errors.New("context cancelled")
	ErrLockHeld     = errors.New("lock already held")
	ErrWSDisconnect = errors.New("websocket disconnected")
)

// APIError carries a definitive rejection from the exchange: either a
// non-retryable HTTP status, or an HTTP 200 whose envelope reported
// success=false. It is never retried.
type APIError struct {
	Status  int    // HTTP status; 200 for envelope-level rejections
	Code    int    // server-provided code, 0 when absent
	Message string // server-provided error text or response body
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error (status %d, code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}
