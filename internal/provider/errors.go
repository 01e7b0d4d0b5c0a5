package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrAuth marks an authentication failure. Fatal: retrying cannot help.
var ErrAuth = errors.New("authentication failed")

// ErrServer marks a transient upstream failure worth retrying.
var ErrServer = errors.New("provider server error")

// RateLimitError carries the advisory delay from a 429 response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// IsRetryable reports whether the error is transient (server error or rate
// limit). Auth and unknown errors are final.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	return errors.Is(err, ErrServer) || errors.As(err, &rl)
}

// classifyStatus maps an HTTP status to the error taxonomy. A zero return
// means the status carries no error.
func classifyStatus(status int, retryAfter time.Duration) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests:
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return &RateLimitError{RetryAfter: retryAfter}
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrServer, status)
	default:
		return fmt.Errorf("provider request failed: status %d", status)
	}
}
