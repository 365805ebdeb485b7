package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("missing permission")
	ErrUnsupported = errors.New("operation not supported")
	ErrWaitTimeout = errors.New("wait timed out")
)

// RateLimitError reports a request rejected by the platform rate limiter.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// StarterPostedError reports a thread that could not be started after its
// first message was already posted in the parent channel.
type StarterPostedError struct {
	Starter Message
	Err     error
}

func (e *StarterPostedError) Error() string {
	return fmt.Sprintf("thread not started on message %s: %v", e.Starter.ID, e.Err)
}

func (e *StarterPostedError) Unwrap() error { return e.Err }

// IsTransient reports whether err is expected to succeed on retry: rate
// limiting or a timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate") || strings.Contains(msg, "timeout")
}
