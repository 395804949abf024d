package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrUnknownSession is returned when an operation names a session the
// Supervisor has never started.
var ErrUnknownSession = errors.New("supervisor: unknown session")

// ErrCapacityExceeded is returned by StartSession when the number of
// currently running sessions has reached MaxConcurrent.
var ErrCapacityExceeded = errors.New("supervisor: capacity exceeded")

// bgSessionCounter mints spec.md §3's monotonically increasing
// `bg-NNN` background-session ids.
var bgSessionCounter atomic.Int64

// NextSessionID returns the next `bg-NNN` session id, per spec.md §3
// and §8 Scenario 2.
func NextSessionID() string {
	return fmt.Sprintf("bg-%03d", bgSessionCounter.Add(1))
}

// Stats is an aggregate snapshot across every session the Supervisor
// has ever tracked.
type Stats struct {
	Starting int
	Running  int
	Exited   int
	Killed   int
	Failed   int
	TimedOut int
}

// Supervisor is the Process Supervisor component: it starts background
// subprocesses, tracks their lifecycle, and enforces shutdown (SPEC_FULL
// §4.4).
type Supervisor struct {
	sink        OutputSink
	logger      *slog.Logger
	maxConcurrent int

	mu       sync.RWMutex
	sessions map[string]*ProcessSession
}

// New constructs a Supervisor that forwards subprocess output to sink.
func New(sink OutputSink, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		sink:          sink,
		logger:        logger,
		maxConcurrent: DefaultMaxConcurrent,
		sessions:      make(map[string]*ProcessSession),
	}
}

// SetMaxConcurrent overrides the default concurrent-session cap.
func (s *Supervisor) SetMaxConcurrent(n int) {
	if n > 0 {
		s.maxConcurrent = n
	}
}

// StartSession registers spec as a new supervised subprocess and
// returns immediately, with the session in StatusStarting; spawning
// happens asynchronously and the session transitions to StatusRunning
// once the process is actually launched, or StatusFailed if it could
// not be (spec.md §4.4's `starting -> running|failed` transition). ctx
// bounds the subprocess's lifetime: cancelling it triggers a graceful
// shutdown (KillReasonShutdown). Fails synchronously with
// ErrCapacityExceeded if the number of starting-or-running sessions
// has already reached the configured maximum.
func (s *Supervisor) StartSession(ctx context.Context, spec Spec) error {
	s.mu.Lock()
	if _, exists := s.sessions[spec.SessionID]; exists {
		s.mu.Unlock()
		return errors.Errorf("supervisor: session %q already exists", spec.SessionID)
	}
	active := 0
	for _, session := range s.sessions {
		switch session.info().Status {
		case StatusStarting, StatusRunning:
			active++
		}
	}
	if active >= s.maxConcurrent {
		s.mu.Unlock()
		return ErrCapacityExceeded
	}
	session := newSession(spec, s.sink, s.logger.With("session_id", spec.SessionID))
	s.sessions[spec.SessionID] = session
	s.mu.Unlock()

	go func() {
		if err := session.start(ctx); err != nil {
			s.logger.Error("supervisor: session failed to start", "session_id", spec.SessionID, "error", err)
			return
		}
		s.logger.Info("supervisor: session started", "session_id", spec.SessionID, "command", spec.Command)
	}()
	return nil
}

// KillSession requests that a running session be terminated, and waits
// for it to finish exiting.
func (s *Supervisor) KillSession(sessionID string, reason KillReason) error {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	session.requestKill(reason)
	session.wait()
	return nil
}

// KillAllSessions requests termination of every currently running
// session and waits for each to finish.
func (s *Supervisor) KillAllSessions(reason KillReason) {
	for _, session := range s.GetRunningSessions() {
		session.requestKill(reason)
	}
	for _, session := range s.GetRunningSessions() {
		session.wait()
	}
}

// GetSession returns the live ProcessSession for sessionID.
func (s *Supervisor) GetSession(sessionID string) (*ProcessSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.Wrap(ErrUnknownSession, sessionID)
	}
	return session, nil
}

// GetInfo returns a point-in-time snapshot for sessionID.
func (s *Supervisor) GetInfo(sessionID string) (Info, error) {
	session, err := s.GetSession(sessionID)
	if err != nil {
		return Info{}, err
	}
	return session.info(), nil
}

// GetAllSessions returns a snapshot of every session ever started.
func (s *Supervisor) GetAllSessions() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.info())
	}
	return out
}

// GetRunningSessions returns the ProcessSession handles currently in
// StatusRunning.
func (s *Supervisor) GetRunningSessions() []*ProcessSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ProcessSession
	for _, session := range s.sessions {
		if session.info().Status == StatusRunning {
			out = append(out, session)
		}
	}
	return out
}

// GetStats returns aggregate counts across every tracked session.
func (s *Supervisor) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats Stats
	for _, session := range s.sessions {
		switch session.info().Status {
		case StatusStarting:
			stats.Starting++
		case StatusRunning:
			stats.Running++
		case StatusExited:
			stats.Exited++
		case StatusKilled:
			stats.Killed++
		case StatusFailed:
			stats.Failed++
		case StatusTimedOut:
			stats.TimedOut++
		}
	}
	return stats
}

// ClearHistory removes every non-running session from the registry,
// keeping only sessions still in StatusRunning.
func (s *Supervisor) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.info().Status != StatusRunning {
			delete(s.sessions, id)
		}
	}
}

// Cleanup periodically removes sessions that finished more than
// maxAge ago, until ctx is cancelled.
func (s *Supervisor) Cleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(maxAge)
		}
	}
}

func (s *Supervisor) sweep(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		info := session.info()
		if info.Status != StatusRunning && !info.EndedAt.IsZero() && info.EndedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
