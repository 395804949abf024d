package processor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hrygo/agentshell/internal/queue"
	"github.com/hrygo/agentshell/internal/streamer"
	"github.com/hrygo/agentshell/internal/supervisor"
)

// emergencyStopDeadline bounds the emergency-stop umbrella operation
// regardless of individual kill failures (spec.md §4.3).
const emergencyStopDeadline = 5 * time.Second

// Processor is the Command Processor: it dispatches dequeued tasks,
// relays cancellation, and implements the emergency-stop umbrella
// (SPEC_FULL §4.3).
type Processor struct {
	q          *queue.Queue
	supervisor *supervisor.Supervisor
	streamer   *streamer.Streamer
	state      AgentState
	runner     TaskRunner

	logger        *slog.Logger
	errLogLimiter *rate.Limiter

	handlers map[string]CommandHandler

	mu           sync.Mutex
	tokens       map[string]*queue.CancelToken
	shuttingDown bool
}

// Deps bundles a Processor's collaborators.
type Deps struct {
	Queue      *queue.Queue
	Supervisor *supervisor.Supervisor
	Streamer   *streamer.Streamer
	State      AgentState
	Runner     TaskRunner
	Logger     *slog.Logger
}

// New constructs a Processor and registers its built-in command table.
func New(deps Deps) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		q:             deps.Queue,
		supervisor:    deps.Supervisor,
		streamer:      deps.Streamer,
		state:         deps.State,
		runner:        deps.Runner,
		logger:        logger,
		errLogLimiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
		tokens:        make(map[string]*queue.CancelToken),
	}
	p.handlers = p.buildHandlerTable()
	return p
}

// Process is the queue.Consumer this Processor drives the Priority
// Queue with.
func (p *Processor) Process(ctx context.Context, task *queue.QueuedTask) queue.Result {
	start := time.Now()
	p.registerToken(task.ID, task.Token)
	defer p.unregisterToken(task.ID)

	var (
		value any
		err   error
	)
	switch task.Payload.Kind {
	case queue.KindCommand:
		value, err = p.dispatchCommand(ctx, task)
	case queue.KindSystem:
		value, err = p.dispatchSystem(ctx, task)
	default:
		value, err = p.dispatchMessage(ctx, task)
	}

	result := queue.Result{
		Success:      err == nil,
		Value:        value,
		Err:          err,
		Duration:     time.Since(start).Milliseconds(),
		WasCancelled: task.Token.Triggered(),
	}
	if err != nil {
		p.logFailure(task, err)
	}
	return result
}

func (p *Processor) dispatchCommand(ctx context.Context, task *queue.QueuedTask) (any, error) {
	if p.isShuttingDown() {
		return nil, ErrShuttingDown
	}
	handler, ok := p.handlers[task.Payload.Verb]
	if !ok {
		return nil, &ErrUnknownCommand{Verb: task.Payload.Verb}
	}
	return handler(ctx, task)
}

func (p *Processor) dispatchMessage(ctx context.Context, task *queue.QueuedTask) (any, error) {
	if p.isShuttingDown() {
		return nil, ErrShuttingDown
	}
	if task.Payload.Reflex {
		return "echo: " + task.Payload.Content, nil
	}
	if p.runner == nil {
		return nil, errUnavailable("task runner")
	}
	return p.runner.Run(ctx, task.Payload.Content, task.Token)
}

func (p *Processor) dispatchSystem(ctx context.Context, task *queue.QueuedTask) (any, error) {
	switch strings.TrimSpace(task.Payload.Content) {
	case "shutdown":
		p.mu.Lock()
		p.shuttingDown = true
		p.mu.Unlock()
		_ = p.EmergencyStop(ctx)
		return "shutting down", nil
	case "status":
		return p.Status(), nil
	default:
		return nil, &ErrUnknownCommand{Verb: task.Payload.Content}
	}
}

func (p *Processor) isShuttingDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shuttingDown
}

func (p *Processor) registerToken(taskID string, token *queue.CancelToken) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[taskID] = token
}

func (p *Processor) unregisterToken(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, taskID)
}

// Status reports the processor's and supervisor's current state for
// the `status` command/directive.
func (p *Processor) Status() StatusSnapshot {
	snap := StatusSnapshot{ShuttingDown: p.isShuttingDown()}
	if p.supervisor != nil {
		snap.SupervisorStats = p.supervisor.GetStats()
	}
	if p.q != nil {
		snap.QueueLength = p.q.Len()
	}
	return snap
}

// EmergencyStop triggers every registered cancellation token and kills
// every tracked subprocess, fanning the work out in parallel but never
// exceeding emergencyStopDeadline wall-clock regardless of individual
// failures (spec.md §4.3).
func (p *Processor) EmergencyStop(ctx context.Context) error {
	deadline, cancel := context.WithTimeout(ctx, emergencyStopDeadline)
	defer cancel()

	g, _ := errgroup.WithContext(deadline)
	g.SetLimit(16)

	p.mu.Lock()
	tokens := make([]*queue.CancelToken, 0, len(p.tokens))
	for _, tok := range p.tokens {
		tokens = append(tokens, tok)
	}
	p.mu.Unlock()

	for _, tok := range tokens {
		tok := tok
		g.Go(func() error {
			tok.Trigger()
			return nil
		})
	}

	if p.supervisor != nil {
		g.Go(func() error {
			p.supervisor.KillAllSessions(supervisor.KillReasonUserRequest)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-deadline.Done():
	}
	return nil
}

func (p *Processor) logFailure(task *queue.QueuedTask, err error) {
	if p.errLogLimiter.Allow() {
		p.logger.Error("processor: task failed",
			"task_id", task.ID,
			"kind", task.Payload.Kind,
			"verb", task.Payload.Verb,
			"error", err,
		)
	}
}

type errUnavailable string

func (e errUnavailable) Error() string { return "processor: " + string(e) + " unavailable" }
