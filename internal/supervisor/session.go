package supervisor

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/agentshell/internal/streamer"
)

// OutputSink receives output records and lifecycle markers from running
// sessions. *streamer.Streamer satisfies this.
type OutputSink interface {
	EnsureSession(sessionID string) error
	Publish(rec streamer.OutputRecord)
	CloseSession(sessionID string)
}

// ProcessSession tracks one supervised subprocess through its whole
// lifecycle: start, output streaming, and (eventual) shutdown.
type ProcessSession struct {
	spec   Spec
	sink   OutputSink
	logger *slog.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	status     Status
	killReason KillReason
	startedAt  time.Time
	endedAt    time.Time
	exitCode   int
	err        error

	outputBytes atomic.Int64
	killOnce    sync.Once
	killCh      chan KillReason
	doneCh      chan struct{}
}

func newSession(spec Spec, sink OutputSink, logger *slog.Logger) *ProcessSession {
	if spec.MaxOutputBytes <= 0 {
		spec.MaxOutputBytes = DefaultMaxOutputBytes
	}
	return &ProcessSession{
		spec:   spec,
		sink:   sink,
		logger: logger,
		status: StatusStarting,
		killCh: make(chan KillReason, 1),
		doneCh: make(chan struct{}),
	}
}

// start launches the subprocess in its own process group and begins
// streaming its output. It runs on its own goroutine (spawned by
// Supervisor.StartSession) and the session stays in StatusStarting
// until the process has been spawned; on any failure it transitions straight to
// StatusFailed and closes doneCh itself, since there is no synchronous
// caller left to report the error to (spec.md §4.4's
// `starting -> running|failed` transition).
func (s *ProcessSession) start(ctx context.Context) error {
	if err := s.sink.EnsureSession(s.spec.SessionID); err != nil {
		err = errors.Wrap(err, "supervisor: ensure streamer session")
		s.fail(err)
		return err
	}

	cmd := exec.Command(s.spec.Command, s.spec.Args...)
	cmd.Dir = s.spec.Dir
	cmd.Env = s.spec.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		err = errors.Wrap(err, "supervisor: stdout pipe")
		s.fail(err)
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		err = errors.Wrap(err, "supervisor: stderr pipe")
		s.fail(err)
		return err
	}

	if err := cmd.Start(); err != nil {
		err = errors.Wrap(err, "supervisor: start process")
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.startedAt = time.Now()
	s.status = StatusRunning
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go s.pump(&wg, stdout, streamer.StreamStdout)
	go s.pump(&wg, stderr, streamer.StreamStderr)

	go s.supervise(ctx, &wg)
	return nil
}

// fail transitions a session that never made it past StatusStarting
// directly to StatusFailed and releases anyone blocked in wait().
func (s *ProcessSession) fail(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	s.err = err
	s.endedAt = time.Now()
	s.mu.Unlock()
	close(s.doneCh)
	s.sink.CloseSession(s.spec.SessionID)
}

// pump scans one pipe line by line, forwarding each line to the sink
// and counting bytes toward the output limit.
func (s *ProcessSession) pump(wg *sync.WaitGroup, r io.ReadCloser, stream streamer.Stream) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s.sink.Publish(streamer.OutputRecord{
			SessionID: s.spec.SessionID,
			Stream:    stream,
			Line:      line,
			Timestamp: time.Now(),
		})
		if s.outputBytes.Add(int64(len(line))+1) > s.spec.MaxOutputBytes {
			s.requestKill(KillReasonOutputLimit)
		}
	}
}

// supervise waits for the process to exit, honoring timeout, external
// context cancellation, and explicit kill requests, and performs the
// staged SIGTERM-then-SIGKILL shutdown against the whole process group.
func (s *ProcessSession) supervise(ctx context.Context, wg *sync.WaitGroup) {
	waitCh := make(chan error, 1)
	go func() { waitCh <- s.cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if s.spec.Timeout > 0 {
		timer := time.NewTimer(s.spec.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-timeoutCh:
		waitErr = s.terminate(KillReasonTimeout, waitCh)
	case reason := <-s.killCh:
		waitErr = s.terminate(reason, waitCh)
	case <-ctx.Done():
		waitErr = s.terminate(KillReasonShutdown, waitCh)
	}

	wg.Wait() // let stdout/stderr pumps drain before closing the session
	s.finish(waitErr)
}

// requestKill asynchronously asks supervise to begin shutdown; it never
// blocks and is safe to call from the pump goroutines.
func (s *ProcessSession) requestKill(reason KillReason) {
	s.killOnce.Do(func() {
		s.killCh <- reason
	})
}

// terminate sends SIGTERM to the process group and escalates to
// SIGKILL if the group has not exited within the grace period. It
// blocks until cmd.Wait's result is available and returns it.
func (s *ProcessSession) terminate(reason KillReason, waitCh <-chan error) error {
	s.mu.Lock()
	s.killReason = reason
	pid := 0
	if s.cmd != nil && s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	s.mu.Unlock()
	if pid == 0 {
		return <-waitCh
	}

	_ = syscall.Kill(-pid, syscall.SIGTERM)

	timer := time.NewTimer(DefaultShutdownGrace)
	defer timer.Stop()
	select {
	case err := <-waitCh:
		return err
	case <-timer.C:
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		return <-waitCh
	}
}

func (s *ProcessSession) finish(waitErr error) {
	s.mu.Lock()
	s.endedAt = time.Now()
	switch {
	case s.killReason != KillReasonNone:
		s.status = StatusKilled
	case waitErr != nil:
		s.status = StatusFailed
		s.err = waitErr
	default:
		s.status = StatusExited
	}
	if s.killReason == KillReasonTimeout {
		s.status = StatusTimedOut
	}
	if s.cmd.ProcessState != nil {
		s.exitCode = s.cmd.ProcessState.ExitCode()
	}
	s.mu.Unlock()

	close(s.doneCh)
	s.sink.CloseSession(s.spec.SessionID)
}

func (s *ProcessSession) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid := 0
	if s.cmd != nil && s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	return Info{
		SessionID:  s.spec.SessionID,
		Command:    s.spec.Command,
		Args:       s.spec.Args,
		PID:        pid,
		Status:     s.status,
		KillReason: s.killReason,
		StartedAt:  s.startedAt,
		EndedAt:    s.endedAt,
		ExitCode:   s.exitCode,
		Err:        s.err,
	}
}

func (s *ProcessSession) wait() {
	<-s.doneCh
}
