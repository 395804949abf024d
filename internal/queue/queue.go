package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Consumer executes one dequeued task and reports its outcome. The
// Command Processor is the only intended implementation (SPEC_FULL
// §4.3). Consumer must observe task.Token.Done() at every suspension
// point it owns.
type Consumer func(ctx context.Context, task *QueuedTask) Result

// PreemptionPolicy governs what happens to a task that was preempted
// by an URGENT arrival once its consumer unwinds. This resolves the
// first Open Question in spec.md §9 explicitly rather than leaving it
// ambiguous.
type PreemptionPolicy int

const (
	// PolicyDiscard drops the preempted task and surfaces a Cancelled
	// event. This is the default.
	PolicyDiscard PreemptionPolicy = iota
	// PolicyRequeue pushes the preempted task back to the front of its
	// original sub-queue with a fresh CancelToken, to run again once
	// nothing higher priority remains.
	PolicyRequeue
)

// Config tunes queue behavior.
type Config struct {
	DefaultRetryLimit int
	Preemption        PreemptionPolicy
	Logger            *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.DefaultRetryLimit <= 0 {
		c.DefaultRetryLimit = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// EnqueueOptions customizes one Enqueue call.
type EnqueueOptions struct {
	RetryLimit int
	Token      *CancelToken
}

// Queue is the three-level preemptible priority queue described in
// SPEC_FULL §4.1. At most one task is in the "running" state at any
// instant (P1); within a level, FIFO order holds; across levels,
// URGENT strictly precedes NORMAL strictly precedes LOW (P2).
type Queue struct {
	cfg Config

	mu      sync.Mutex
	levels  [3][]*QueuedTask // indexed by Priority
	running *QueuedTask

	listeners []Listener
	wake      chan struct{}
	closed    bool
}

// New constructs a Queue. Call Start to launch its dispatch loop.
func New(cfg Config) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:  cfg,
		wake: make(chan struct{}, 1),
	}
}

// Subscribe registers a listener for lifecycle events. Not safe to
// call concurrently with Start.
func (q *Queue) Subscribe(l Listener) {
	q.listeners = append(q.listeners, l)
}

func (q *Queue) emit(ev Event) {
	for _, l := range q.listeners {
		l(ev)
	}
}

// Enqueue admits one task. It fails with ErrInvalidPriority for an
// unknown level, or with ErrQueueClosed once Close has been called.
func (q *Queue) Enqueue(item InputItem, priority Priority, opts EnqueueOptions) (string, error) {
	if !priority.Valid() {
		return "", ErrInvalidPriority
	}

	retryLimit := opts.RetryLimit
	if retryLimit <= 0 {
		retryLimit = q.cfg.DefaultRetryLimit
	}
	token := opts.Token
	if token == nil {
		token = NewCancelToken()
	}

	task := &QueuedTask{
		ID:         shortuuid.New(),
		Priority:   priority,
		Payload:    item,
		EnqueuedAt: time.Now(),
		RetryLimit: retryLimit,
		Token:      token,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	q.levels[priority] = append(q.levels[priority], task)

	var preempted *QueuedTask
	if priority == Urgent && q.running != nil && q.running.Priority != Urgent {
		preempted = q.running
		preempted.preemptedAt = time.Now()
	}
	q.mu.Unlock()

	q.emit(Event{Kind: EventEnqueued, TaskID: task.ID, Task: task})

	if preempted != nil {
		preempted.Token.Trigger()
		q.emit(Event{Kind: EventInterrupted, TaskID: preempted.ID, Task: preempted})
	}

	q.wakeLoop()
	return task.ID, nil
}

// Cancel cancels a pending or running task by id. Returns false if no
// such task exists.
func (q *Queue) Cancel(taskID string) bool {
	q.mu.Lock()
	if q.running != nil && q.running.ID == taskID {
		t := q.running
		q.mu.Unlock()
		t.Token.Trigger()
		return true
	}
	for lvl := range q.levels {
		for i, t := range q.levels[lvl] {
			if t.ID == taskID {
				q.levels[lvl] = append(q.levels[lvl][:i], q.levels[lvl][i+1:]...)
				q.mu.Unlock()
				t.Token.Trigger()
				q.emit(Event{Kind: EventCancelled, TaskID: t.ID, Task: t})
				return true
			}
		}
	}
	q.mu.Unlock()
	return false
}

// CurrentlyRunning returns the task currently executing, if any.
func (q *Queue) CurrentlyRunning() *QueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Clear drops all pending (not yet started) tasks and emits
// queue-cleared. The currently running task, if any, is unaffected.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.levels = [3][]*QueuedTask{}
	q.mu.Unlock()
	q.emit(Event{Kind: EventQueueCleared})
}

// Len returns the number of pending (not running) tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, lvl := range q.levels {
		n += len(lvl)
	}
	return n
}

func (q *Queue) wakeLoop() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// popHighest removes and returns the head of the highest-priority
// non-empty level. Caller must hold q.mu.
func (q *Queue) popHighest() (*QueuedTask, bool) {
	for lvl := 0; lvl < len(q.levels); lvl++ {
		if len(q.levels[lvl]) > 0 {
			t := q.levels[lvl][0]
			q.levels[lvl] = q.levels[lvl][1:]
			return t, true
		}
	}
	return nil, false
}

func (q *Queue) pushFront(t *QueuedTask) {
	q.mu.Lock()
	q.levels[t.Priority] = append([]*QueuedTask{t}, q.levels[t.Priority]...)
	q.mu.Unlock()
}

// Start launches the single, non-reentrant dispatch loop: one goroutine
// that, on each wake signal, pops the head of the highest-priority
// non-empty level under q.mu, rather than a reentrancy-guarding
// boolean. It runs until ctx is cancelled; Close does not stop it.
func (q *Queue) Start(ctx context.Context, consumer Consumer) {
	go q.dispatchLoop(ctx, consumer)
}

func (q *Queue) dispatchLoop(ctx context.Context, consumer Consumer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		q.mu.Lock()
		if q.running != nil {
			q.mu.Unlock()
			continue
		}
		task, ok := q.popHighest()
		if !ok {
			q.mu.Unlock()
			continue
		}
		q.running = task
		q.mu.Unlock()

		q.emit(Event{Kind: EventStarted, TaskID: task.ID, Task: task})
		go q.runConsumer(ctx, consumer, task)
	}
}

func (q *Queue) runConsumer(ctx context.Context, consumer Consumer, task *QueuedTask) {
	start := time.Now()
	result := consumer(ctx, task)
	result.Duration = time.Since(start).Milliseconds()

	q.mu.Lock()
	q.running = nil
	q.mu.Unlock()
	defer q.wakeLoop()

	switch {
	case result.Cancelled() && !task.preemptedAt.IsZero():
		q.handlePreempted(task)
	case result.Cancelled():
		q.emit(Event{Kind: EventCancelled, TaskID: task.ID, Task: task, Result: &result})
	case !result.Success && IsTransient(result.Err) && task.Retries < task.RetryLimit:
		task.Retries++
		q.pushFront(task)
		q.cfg.Logger.Debug("queue: retrying task", "task_id", task.ID, "attempt", task.Retries+1, "retry_limit", task.RetryLimit)
	case !result.Success:
		q.emit(Event{Kind: EventFailed, TaskID: task.ID, Task: task, Result: &result, Err: result.Err})
	default:
		q.emit(Event{Kind: EventCompleted, TaskID: task.ID, Task: task, Result: &result})
	}
}

func (q *Queue) handlePreempted(task *QueuedTask) {
	if q.cfg.Preemption == PolicyRequeue {
		task.preemptedAt = time.Time{}
		task.Token = NewCancelToken()
		q.pushFront(task)
		q.cfg.Logger.Debug("queue: requeueing preempted task", "task_id", task.ID)
		return
	}
	q.emit(Event{Kind: EventCancelled, TaskID: task.ID, Task: task})
}

// Close stops admitting new tasks. Tasks already queued keep being
// dispatched until the dispatch loop's context is cancelled.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
