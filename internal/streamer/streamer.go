package streamer

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrUnknownSession is returned when an operation names a session the
// Streamer has never seen.
var ErrUnknownSession = errors.New("streamer: unknown session")

const defaultRingCapacity = 2000

// globalIndex is the single process-wide counter backing
// OutputRecord.Index (spec.md §9: "a single process-wide counter...
// the multi-session query relies on global ordering").
var globalIndex atomic.Int64

func nextIndex() int64 {
	return globalIndex.Add(1)
}

type subscriber struct {
	ch chan OutputRecord
}

type sessionState struct {
	mu      sync.Mutex
	buffer  *RingBuffer[OutputRecord]
	log     *logWriter
	subs    map[int]*subscriber
	nextSub int
	closed  bool
}

// Streamer is the Output Streamer component: it fans every OutputRecord
// out to a bounded in-memory ring, a durable log file, and whatever
// live subscribers are currently attached (SPEC_FULL §4.5).
type Streamer struct {
	logDir       string
	ringCapacity int

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// New constructs a Streamer that writes durable logs under logDir. A
// ringCapacity <= 0 uses the default of 2000 lines per session.
func New(logDir string, ringCapacity int) *Streamer {
	if ringCapacity <= 0 {
		ringCapacity = defaultRingCapacity
	}
	return &Streamer{
		logDir:       logDir,
		ringCapacity: ringCapacity,
		sessions:     make(map[string]*sessionState),
	}
}

// EnsureSession creates the in-memory and on-disk state for a session
// if it does not already exist, and writes a start marker.
func (s *Streamer) EnsureSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		return nil
	}
	lw, err := newLogWriter(s.logDir, sessionID)
	if err != nil {
		return err
	}
	lw.writeMarker(sessionID, "started")
	s.sessions[sessionID] = &sessionState{
		buffer: NewRingBuffer[OutputRecord](s.ringCapacity),
		log:    lw,
		subs:   make(map[int]*subscriber),
	}
	return nil
}

// Publish records one line of output: it is stamped with the next
// global monotonic index, pushed into the session's ring buffer,
// appended to its durable log, and fanned out to every live
// subscriber. Slow or absent subscribers never block Publish — each
// subscriber channel is buffered and drops on overflow. Index
// assignment, buffering, and fan-out all happen under the session's
// lock so concurrent stdout/stderr pumps for one session can never
// deliver records out of index order (P6).
func (s *Streamer) Publish(rec OutputRecord) {
	st := s.sessionFor(rec.SessionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	rec.Index = nextIndex()
	st.buffer.Push(rec)
	st.log.writeRecord(rec)
	for _, sub := range st.subs {
		select {
		case sub.ch <- rec:
		default:
		}
	}
	st.mu.Unlock()
}

// CloseSession writes an exit marker to the durable log and closes the
// file handle. The in-memory ring buffer is left intact so recent
// output remains queryable; every live subscriber's channel is closed
// and detached. The marker is written to the log only, not published
// to subscribers.
func (s *Streamer) CloseSession(sessionID string) {
	st := s.sessionFor(sessionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.log.writeMarker(sessionID, "ended")
	_ = st.log.Close()
	st.closed = true
	for _, sub := range st.subs {
		close(sub.ch)
	}
	st.subs = make(map[int]*subscriber)
}

// Subscribe attaches a live reader to a session's output. The returned
// function detaches the reader and must be called exactly once.
func (s *Streamer) Subscribe(sessionID string) (<-chan OutputRecord, func(), error) {
	st := s.sessionFor(sessionID)
	if st == nil {
		return nil, nil, errors.Wrap(ErrUnknownSession, sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	ch := make(chan OutputRecord, 256)
	id := st.nextSub
	st.nextSub++
	st.subs[id] = &subscriber{ch: ch}
	unsubscribe := func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if sub, ok := st.subs[id]; ok {
			delete(st.subs, id)
			close(sub.ch)
		}
	}
	return ch, unsubscribe, nil
}

// SessionOutput returns up to tail retained records for one session,
// oldest first. tail <= 0 returns everything retained in the ring.
func (s *Streamer) SessionOutput(sessionID string, tail int) ([]OutputRecord, error) {
	st := s.sessionFor(sessionID)
	if st == nil {
		return nil, errors.Wrap(ErrUnknownSession, sessionID)
	}
	return st.buffer.Tail(tail), nil
}

// MultiSessionOutput returns SessionOutput for several sessions at
// once, skipping any session id that is unknown.
func (s *Streamer) MultiSessionOutput(sessionIDs []string, tail int) map[string][]OutputRecord {
	out := make(map[string][]OutputRecord, len(sessionIDs))
	for _, id := range sessionIDs {
		if recs, err := s.SessionOutput(id, tail); err == nil {
			out[id] = recs
		}
	}
	return out
}

// Search returns every retained record in a session whose line
// contains substr (case-insensitive).
func (s *Streamer) Search(sessionID, substr string) ([]OutputRecord, error) {
	st := s.sessionFor(sessionID)
	if st == nil {
		return nil, errors.Wrap(ErrUnknownSession, sessionID)
	}
	needle := strings.ToLower(substr)
	var matches []OutputRecord
	for _, rec := range st.buffer.Snapshot() {
		if strings.Contains(strings.ToLower(rec.Line), needle) {
			matches = append(matches, rec)
		}
	}
	return matches, nil
}

func (s *Streamer) sessionFor(sessionID string) *sessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}
