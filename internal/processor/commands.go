package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/agentshell/internal/queue"
	"github.com/hrygo/agentshell/internal/streamer"
	"github.com/hrygo/agentshell/internal/supervisor"
)

// buildHandlerTable returns the verb-keyed dispatch map from spec.md
// §4.3's command table, following the teacher's ai/agent pattern of a
// typed map built once rather than a long switch.
func (p *Processor) buildHandlerTable() map[string]CommandHandler {
	return map[string]CommandHandler{
		"help":         p.cmdHelp,
		"exit":         p.cmdExit,
		"clear":        p.cmdClear,
		"refresh":      p.cmdRefresh,
		"clearhistory": p.cmdClearHistory,
		"history":      p.cmdHistory,
		"save":         p.cmdSave,
		"load":         p.cmdLoad,
		"tools":        p.cmdTools,
		"model":        p.cmdModel,
		"parallel":     p.cmdParallel,
		"verbose":      p.cmdVerbose,
		"status":       p.cmdStatus,
		"stop":         p.cmdStop,
		"jobs":         p.cmdJobs,
		"kill":         p.cmdKill,
		"abort":        p.cmdEmergency,
		"interrupt":    p.cmdEmergency,
		"emergency":    p.cmdEmergency,
		"shell":        p.cmdShell,
		"output":       p.cmdOutput,
		"attach":       p.cmdAttach,
		"clear-logs":   p.cmdClearLogs,
	}
}

func (p *Processor) cmdHelp(ctx context.Context, task *queue.QueuedTask) (string, error) {
	verbs := make([]string, 0, len(p.handlers))
	for v := range p.handlers {
		verbs = append(verbs, v)
	}
	return "available commands: " + strings.Join(verbs, ", "), nil
}

func (p *Processor) cmdExit(ctx context.Context, task *queue.QueuedTask) (string, error) {
	p.mu.Lock()
	p.shuttingDown = true
	p.mu.Unlock()
	return "goodbye", nil
}

func (p *Processor) cmdClear(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.state != nil {
		p.state.ClearHistory()
	}
	return "history and screen cleared", nil
}

func (p *Processor) cmdRefresh(ctx context.Context, task *queue.QueuedTask) (string, error) {
	return "screen cleared", nil
}

func (p *Processor) cmdClearHistory(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.state != nil {
		p.state.ClearHistory()
	}
	return "history cleared", nil
}

func (p *Processor) cmdHistory(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.state == nil {
		return "", errUnavailable("agent state")
	}
	var sb strings.Builder
	for _, turn := range p.state.GetHistory() {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", turn.Timestamp.Format(time.RFC3339), turn.Role, turn.Content)
	}
	return sb.String(), nil
}

func (p *Processor) cmdSave(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.state == nil {
		return "", errUnavailable("agent state")
	}
	file := strings.TrimSpace(task.Payload.Args)
	if file == "" {
		file = fmt.Sprintf("session_%s.json", time.Now().UTC().Format("20060102T150405Z"))
	}
	if err := p.state.SaveSession(file); err != nil {
		return "", err
	}
	return "session saved to " + file, nil
}

func (p *Processor) cmdLoad(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.state == nil {
		return "", errUnavailable("agent state")
	}
	file := strings.TrimSpace(task.Payload.Args)
	if file == "" {
		return "", errors.New("load requires a file argument")
	}
	if err := p.state.LoadSession(file); err != nil {
		return "", err
	}
	return "session loaded from " + file, nil
}

func (p *Processor) cmdTools(ctx context.Context, task *queue.QueuedTask) (string, error) {
	verbs := make([]string, 0, len(p.handlers))
	for v := range p.handlers {
		verbs = append(verbs, v)
	}
	return strings.Join(verbs, ", "), nil
}

func (p *Processor) cmdModel(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.state == nil {
		return "", errUnavailable("agent state")
	}
	name := strings.TrimSpace(task.Payload.Args)
	if name == "" {
		return p.state.GetCurrentModel(), nil
	}
	available := p.state.ListAvailableModels()
	found := false
	for _, m := range available {
		if m == name {
			found = true
			break
		}
	}
	if !found {
		return "", errors.New("unknown model: " + name)
	}
	p.state.SetModel(name)
	return "model set to " + name, nil
}

func (p *Processor) cmdParallel(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.state == nil {
		return "", errUnavailable("agent state")
	}
	on := p.state.ToggleParallel()
	return fmt.Sprintf("parallel=%v", on), nil
}

func (p *Processor) cmdVerbose(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.state == nil {
		return "", errUnavailable("agent state")
	}
	on := p.state.ToggleVerbose()
	return fmt.Sprintf("verbose=%v", on), nil
}

func (p *Processor) cmdStatus(ctx context.Context, task *queue.QueuedTask) (string, error) {
	snap := p.Status()
	return fmt.Sprintf("shutting_down=%v queue_len=%d starting=%d running=%d exited=%d killed=%d failed=%d timed_out=%d",
		snap.ShuttingDown, snap.QueueLength,
		snap.SupervisorStats.Starting, snap.SupervisorStats.Running, snap.SupervisorStats.Exited,
		snap.SupervisorStats.Killed, snap.SupervisorStats.Failed, snap.SupervisorStats.TimedOut,
	), nil
}

func (p *Processor) cmdStop(ctx context.Context, task *queue.QueuedTask) (string, error) {
	id := strings.TrimSpace(task.Payload.Args)
	if id == "" {
		task.Token.Trigger()
		return "current task stopped", nil
	}
	p.mu.Lock()
	tok, ok := p.tokens[id]
	p.mu.Unlock()
	if !ok {
		return "", errors.New("unknown task id: " + id)
	}
	tok.Trigger()
	return "task " + id + " stopped", nil
}

func (p *Processor) cmdJobs(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.supervisor == nil {
		return "", errUnavailable("supervisor")
	}
	var sb strings.Builder
	for _, info := range p.supervisor.GetAllSessions() {
		fmt.Fprintf(&sb, "%s\t%s\t%s\n", info.SessionID, info.Command, info.Status)
	}
	return sb.String(), nil
}

func (p *Processor) cmdKill(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.supervisor == nil {
		return "", errUnavailable("supervisor")
	}
	id := strings.TrimSpace(task.Payload.Args)
	if id == "" {
		return "", errors.New("kill requires a session id")
	}
	if err := p.supervisor.KillSession(id, supervisor.KillReasonUserRequest); err != nil {
		return "", err
	}
	return "session " + id + " killed", nil
}

func (p *Processor) cmdEmergency(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if err := p.EmergencyStop(ctx); err != nil {
		return "", err
	}
	return "emergency stop completed", nil
}

func (p *Processor) cmdShell(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.supervisor == nil {
		return "", errUnavailable("supervisor")
	}
	fields := strings.Fields(task.Payload.Args)
	if len(fields) == 0 {
		return "", errors.New("shell requires a command")
	}
	sessionID := supervisor.NextSessionID()
	spec := supervisor.Spec{
		SessionID: sessionID,
		Command:   fields[0],
		Args:      fields[1:],
	}
	if err := p.supervisor.StartSession(ctx, spec); err != nil {
		return "", err
	}
	return "session " + sessionID + " started", nil
}

func (p *Processor) cmdOutput(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.streamer == nil {
		return "", errUnavailable("streamer")
	}
	id := strings.TrimSpace(task.Payload.Args)
	if id == "" {
		return "", errors.New("output requires a session id")
	}
	recs, err := p.streamer.SessionOutput(id, 100)
	if err != nil {
		return "", err
	}
	return formatRecords(recs), nil
}

// cmdAttach pumps a session's live output into the returned text until
// the subprocess exits, the task is cancelled, or ctx is done,
// releasing the subscription on every exit path (SPEC_FULL §9: "every
// ... subscriber must be released on all exit paths").
func (p *Processor) cmdAttach(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.streamer == nil {
		return "", errUnavailable("streamer")
	}
	id := strings.TrimSpace(task.Payload.Args)
	if id == "" {
		return "", errors.New("attach requires a session id")
	}
	ch, unsubscribe, err := p.streamer.Subscribe(id)
	if err != nil {
		return "", err
	}
	defer unsubscribe()

	var sb strings.Builder
	fmt.Fprintf(&sb, "attached to %s\n", id)
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			fmt.Fprintf(&sb, "[%s] %s\n", rec.Stream, rec.Line)
		case <-task.Token.Done():
			return sb.String(), nil
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		}
	}
}

func (p *Processor) cmdClearLogs(ctx context.Context, task *queue.QueuedTask) (string, error) {
	if p.supervisor == nil {
		return "", errUnavailable("supervisor")
	}
	p.supervisor.ClearHistory()
	return "cleared session history", nil
}

func formatRecords(recs []streamer.OutputRecord) string {
	var sb strings.Builder
	for _, rec := range recs {
		fmt.Fprintf(&sb, "[%s] %s\n", rec.Stream, rec.Line)
	}
	return sb.String()
}
