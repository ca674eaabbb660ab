package registryadapter

import "fmt"

// RetryableError wraps a failure the adapter believes is transient —
// currently only an auth rejection, after the adapter has already
// forced a token refresh (spec §4.A, §7: "Registry auth expired /
// rejected: Refresh token once; retry").
type RetryableError struct {
	StatusCode int
	Err        error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("registryadapter: retryable failure (status %d): %v", e.StatusCode, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }
