// Package processor executes dequeued tasks: it dispatches commands to
// a verb-keyed handler table, forwards messages to the task runner
// collaborator, relays cancellation to subprocesses and in-flight LLM
// calls, and implements the emergency-stop umbrella (SPEC_FULL §4.3).
package processor

import (
	"context"

	"github.com/hrygo/agentshell/internal/agentstate"
	"github.com/hrygo/agentshell/internal/queue"
	"github.com/hrygo/agentshell/internal/supervisor"
)

// TaskRunner is the LLM collaborator contract from spec.md §4.6.
type TaskRunner interface {
	Run(ctx context.Context, message string, token *queue.CancelToken) (RunResult, error)
}

// RunResult is what a TaskRunner reports back for one message.
type RunResult struct {
	Text       string
	TokensIn   int
	TokensOut  int
	DurationMs int64
}

// AgentState is the agent-state contract from spec.md §4.6, satisfied
// by *agentstate.Store.
type AgentState interface {
	ClearHistory()
	GetHistory() []agentstate.Turn
	SaveSession(path string) error
	LoadSession(path string) error
	SetModel(name string)
	ToggleParallel() bool
	ToggleVerbose() bool
	GetCurrentModel() string
	ListAvailableModels() []string
}

// CommandHandler executes one command verb's effect and reports a
// human-readable result (or an error) back to the caller.
type CommandHandler func(ctx context.Context, task *queue.QueuedTask) (string, error)

// ErrUnknownCommand is returned when a command verb has no registered
// handler.
type ErrUnknownCommand struct {
	Verb string
}

func (e *ErrUnknownCommand) Error() string {
	return "processor: unknown command " + e.Verb
}

// ErrShuttingDown is returned for commands and messages processed after
// a `system: shutdown` directive or the `exit` command; system
// directives are still handled.
var ErrShuttingDown = shutdownError{}

type shutdownError struct{}

func (shutdownError) Error() string { return "processor: shutting down, refusing further work" }

// StatusSnapshot is what the `status` command and the System `status`
// directive report back.
type StatusSnapshot struct {
	ShuttingDown    bool
	QueueLength     int
	RunningTaskID   string
	SupervisorStats supervisor.Stats
}
