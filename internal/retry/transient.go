// Package retry classifies errors from Redis and Postgres calls so callers
// can decide whether another attempt is worthwhile.
package retry

import (
	"context"
	"errors"
)

// IsTransient reports whether err is a timeout or a temporary network
// failure. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
