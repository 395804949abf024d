package processor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentshell/internal/agentstate"
	"github.com/hrygo/agentshell/internal/queue"
	"github.com/hrygo/agentshell/internal/streamer"
	"github.com/hrygo/agentshell/internal/supervisor"
)

type stubRunner struct {
	result RunResult
	err    error
}

func (s *stubRunner) Run(ctx context.Context, message string, token *queue.CancelToken) (RunResult, error) {
	return s.result, s.err
}

func newTestProcessor(t *testing.T) (*Processor, *queue.Queue) {
	t.Helper()
	q := queue.New(queue.Config{})
	st := streamer.New(t.TempDir(), 100)
	sup := supervisor.New(st, nil)
	state := agentstate.New("")
	p := New(Deps{
		Queue:      q,
		Supervisor: sup,
		Streamer:   st,
		State:      state,
		Runner:     &stubRunner{result: RunResult{Text: "hi"}},
	})
	return p, q
}

func runTask(p *Processor, item queue.InputItem, priority queue.Priority) queue.Result {
	task := &queue.QueuedTask{
		ID:       "t1",
		Priority: priority,
		Payload:  item,
		Token:    queue.NewCancelToken(),
	}
	return p.Process(context.Background(), task)
}

func TestDispatchUnknownCommand(t *testing.T) {
	p, _ := newTestProcessor(t)
	result := runTask(p, queue.InputItem{Kind: queue.KindCommand, Verb: "bogus"}, queue.Normal)
	require.False(t, result.Success)
	var unk *ErrUnknownCommand
	assert.ErrorAs(t, result.Err, &unk)
}

func TestDispatchHelpCommand(t *testing.T) {
	p, _ := newTestProcessor(t)
	result := runTask(p, queue.InputItem{Kind: queue.KindCommand, Verb: "help"}, queue.Normal)
	require.True(t, result.Success)
	assert.Contains(t, result.Value, "available commands")
}

func TestDispatchMessageUsesTaskRunner(t *testing.T) {
	p, _ := newTestProcessor(t)
	result := runTask(p, queue.InputItem{Kind: queue.KindMessage, Content: "hello"}, queue.Normal)
	require.True(t, result.Success)
	rr, ok := result.Value.(RunResult)
	require.True(t, ok)
	assert.Equal(t, "hi", rr.Text)
}

func TestReflexMessageShortCircuits(t *testing.T) {
	p, _ := newTestProcessor(t)
	result := runTask(p, queue.InputItem{Kind: queue.KindMessage, Content: "ping", Reflex: true}, queue.Normal)
	require.True(t, result.Success)
	assert.Equal(t, "echo: ping", result.Value)
}

func TestSystemShutdownRefusesFurtherWork(t *testing.T) {
	p, _ := newTestProcessor(t)
	shutdown := runTask(p, queue.InputItem{Kind: queue.KindSystem, Content: "shutdown"}, queue.Urgent)
	require.True(t, shutdown.Success)

	result := runTask(p, queue.InputItem{Kind: queue.KindMessage, Content: "hello"}, queue.Normal)
	require.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrShuttingDown)
}

func TestEmergencyStopTriggersRegisteredTokens(t *testing.T) {
	p, _ := newTestProcessor(t)
	task := &queue.QueuedTask{ID: "long", Payload: queue.InputItem{Kind: queue.KindMessage}, Token: queue.NewCancelToken()}
	p.registerToken(task.ID, task.Token)

	err := p.EmergencyStop(context.Background())
	require.NoError(t, err)
	assert.True(t, task.Token.Triggered())
}

func TestShellAndOutputCommands(t *testing.T) {
	p, _ := newTestProcessor(t)
	task := &queue.QueuedTask{
		ID:       "sh1",
		Payload:  queue.InputItem{Kind: queue.KindCommand, Verb: "shell", Args: "echo hi"},
		Token:    queue.NewCancelToken(),
		Priority: queue.Normal,
	}
	result := p.Process(context.Background(), task)
	require.True(t, result.Success)

	// cmdShell mints its own bg-NNN session id rather than reusing the
	// task id (spec.md §3), so pull it back out of the reply.
	reply, ok := result.Value.(string)
	require.True(t, ok)
	fields := strings.Fields(reply)
	require.Len(t, fields, 3)
	sessionID := fields[1]
	assert.True(t, strings.HasPrefix(sessionID, "bg-"))

	time.Sleep(50 * time.Millisecond)

	outTask := &queue.QueuedTask{
		ID:       "out1",
		Payload:  queue.InputItem{Kind: queue.KindCommand, Verb: "output", Args: sessionID},
		Token:    queue.NewCancelToken(),
		Priority: queue.Normal,
	}
	outResult := p.Process(context.Background(), outTask)
	require.True(t, outResult.Success)
	assert.Contains(t, outResult.Value, "hi")
}

func TestAttachPumpsOutputAndReleasesOnCancel(t *testing.T) {
	p, _ := newTestProcessor(t)
	shellTask := &queue.QueuedTask{
		ID:       "sh2",
		Payload:  queue.InputItem{Kind: queue.KindCommand, Verb: "shell", Args: "sleep 30"},
		Token:    queue.NewCancelToken(),
		Priority: queue.Normal,
	}
	shellResult := p.Process(context.Background(), shellTask)
	require.True(t, shellResult.Success)
	reply := shellResult.Value.(string)
	sessionID := strings.Fields(reply)[1]

	attachTask := &queue.QueuedTask{
		ID:       "attach1",
		Payload:  queue.InputItem{Kind: queue.KindCommand, Verb: "attach", Args: sessionID},
		Token:    queue.NewCancelToken(),
		Priority: queue.Normal,
	}

	done := make(chan queue.Result, 1)
	go func() { done <- p.Process(context.Background(), attachTask) }()

	time.Sleep(20 * time.Millisecond)
	attachTask.Token.Trigger()

	select {
	case result := <-done:
		require.True(t, result.Success)
		assert.Contains(t, result.Value, "attached to "+sessionID)
	case <-time.After(time.Second):
		t.Fatal("cmdAttach never returned after its token was triggered")
	}
}
