package queue

import "sync"

// CancelToken is an explicit, passable cancellation token — the
// reimplementation of the source's ambient AbortController (SPEC_FULL
// §9 design notes). It is a pair of a signalable flag and an
// observation channel. Triggering is idempotent.
type CancelToken struct {
	mu        sync.Mutex
	triggered bool
	done      chan struct{}
}

// NewCancelToken returns a ready-to-use, untriggered token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Trigger signals the token. Safe to call more than once or
// concurrently; only the first call has an effect.
func (t *CancelToken) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.triggered {
		return
	}
	t.triggered = true
	close(t.done)
}

// Triggered reports whether the token has fired.
func (t *CancelToken) Triggered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.triggered
}

// Done returns a channel that is closed when the token fires, for use
// in select statements at every suspension point (SPEC_FULL §5).
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}
