package classifier

import (
	"sync"
	"time"

	"github.com/hrygo/agentshell/internal/queue"
)

// smoothingFactor is the exponential-smoothing alpha for the moving
// average of processing time (spec.md §4.2: α = 0.1).
const smoothingFactor = 0.1

// Stats is the aggregate statistics snapshot exposed by the Queue
// Manager. Each field is independently monotonically consistent;
// the struct as a whole is not updated atomically (SPEC_FULL §5).
type Stats struct {
	TotalProcessed        int64
	UrgentCount           int64
	NormalCount           int64
	LowCount              int64
	ErrorCount            int64
	MovingAvgProcessingMs float64
}

// Manager classifies raw input, enqueues it, and tracks Stats. It is
// the spec's "Input Classifier + Queue Manager" component.
type Manager struct {
	q *queue.Queue

	mu    sync.Mutex
	stats Stats
}

// NewManager wraps an already-constructed Priority Queue.
func NewManager(q *queue.Queue) *Manager {
	return &Manager{q: q}
}

// Submit classifies raw input and enqueues it, returning the task id.
func (m *Manager) Submit(raw, sessionID string) (string, error) {
	item, priority, retryLimit := Classify(raw, sessionID)
	id, err := m.q.Enqueue(item, priority, queue.EnqueueOptions{RetryLimit: retryLimit})
	if err != nil {
		m.recordError()
		return "", err
	}
	m.recordEnqueued(priority)
	return id, nil
}

// SubmitBackground enqueues LOW-priority maintenance work not
// produced directly by a user.
func (m *Manager) SubmitBackground(content string) (string, error) {
	item, priority, retryLimit := Background(content)
	id, err := m.q.Enqueue(item, priority, queue.EnqueueOptions{RetryLimit: retryLimit})
	if err != nil {
		m.recordError()
		return "", err
	}
	m.recordEnqueued(priority)
	return id, nil
}

func (m *Manager) recordEnqueued(p queue.Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch p {
	case queue.Urgent:
		m.stats.UrgentCount++
	case queue.Normal:
		m.stats.NormalCount++
	case queue.Low:
		m.stats.LowCount++
	}
}

func (m *Manager) recordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.ErrorCount++
}

// RecordCompletion updates the processed count and the exponentially
// smoothed moving average of processing time. Intended to be wired to
// the Priority Queue's Completed/Failed events.
func (m *Manager) RecordCompletion(d time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalProcessed++
	if failed {
		m.stats.ErrorCount++
	}
	ms := float64(d.Milliseconds())
	if m.stats.TotalProcessed == 1 {
		m.stats.MovingAvgProcessingMs = ms
		return
	}
	m.stats.MovingAvgProcessingMs = smoothingFactor*ms + (1-smoothingFactor)*m.stats.MovingAvgProcessingMs
}

// Snapshot returns a copy of the current stats.
func (m *Manager) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
