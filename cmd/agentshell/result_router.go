package main

import (
	"sync"

	"github.com/hrygo/agentshell/internal/queue"
)

// resultRouter delivers a queue.Result to whichever goroutine is
// waiting on a specific task id, mirroring the resultCh pattern the
// agentic-shell REPL example uses to match async results back to the
// input that produced them.
type resultRouter struct {
	mu      sync.Mutex
	waiters map[string]chan queue.Result
}

func newResultRouter() *resultRouter {
	return &resultRouter{waiters: make(map[string]chan queue.Result)}
}

// await registers interest in taskID's result and returns a channel
// that receives exactly one value.
func (r *resultRouter) await(taskID string) <-chan queue.Result {
	ch := make(chan queue.Result, 1)
	r.mu.Lock()
	r.waiters[taskID] = ch
	r.mu.Unlock()
	return ch
}

// cancel drops a registered waiter without delivering a result, for
// callers that gave up waiting (e.g. the REPL unwound on ctx.Done()).
func (r *resultRouter) cancel(taskID string) {
	r.mu.Lock()
	delete(r.waiters, taskID)
	r.mu.Unlock()
}

func (r *resultRouter) listen(ev queue.Event) {
	switch ev.Kind {
	case queue.EventCompleted, queue.EventFailed, queue.EventCancelled:
	default:
		return
	}
	r.mu.Lock()
	ch, ok := r.waiters[ev.TaskID]
	delete(r.waiters, ev.TaskID)
	r.mu.Unlock()
	if !ok {
		return
	}
	var result queue.Result
	if ev.Result != nil {
		result = *ev.Result
	} else {
		result.WasCancelled = true
		result.Err = ev.Err
	}
	select {
	case ch <- result:
	default:
	}
}
