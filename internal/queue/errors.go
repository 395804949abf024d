package queue

import (
	"context"

	"github.com/pkg/errors"
)

// Sentinel errors for the priority queue. Wrapped with errors.Wrap at
// collaborator boundaries so the log-only detail path (SPEC_FULL §7)
// keeps a stack trace while callers can still errors.Is against these.
var (
	ErrInvalidPriority = errors.New("queue: invalid priority")
	ErrQueueClosed     = errors.New("queue: closed")
	ErrUnknownTask     = errors.New("queue: unknown task id")

	// ErrConnectionReset, ErrRateLimited and ErrUpstreamUnavailable are
	// the explicit transient-error set referenced by the retry
	// predicate (SPEC_FULL §7, resolving the source's underspecified
	// retry classification). A collaborator error that wraps one of
	// these, or that implements Temporary() bool returning true, is
	// eligible for retry under the task's retry limit.
	ErrConnectionReset     = errors.New("queue: connection reset")
	ErrRateLimited         = errors.New("queue: rate limited")
	ErrUpstreamUnavailable = errors.New("queue: upstream unavailable")
)

// temporary is implemented by collaborator errors that self-report
// transience without matching one of the fixed sentinels above.
type temporary interface {
	Temporary() bool
}

// IsTransient classifies err per the explicit predicate in SPEC_FULL §7.
// Timeouts and cancellation are never transient — they are terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrConnectionReset) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamUnavailable) {
		return true
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}
