// Package agentstate implements the agent-state collaborator contract
// from spec.md §4.6: conversation history, session persistence, and
// the handful of toggles the Command Processor's handlers mutate.
// It is a reference implementation wired by cmd/agentshell, not part
// of the core (SPEC_FULL §4.6).
package agentstate

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Turn is one exchange in the conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// snapshot is the on-disk shape written by SaveSession.
type snapshot struct {
	Model    string `json:"model"`
	Parallel bool   `json:"parallel"`
	Verbose  bool   `json:"verbose"`
	History  []Turn `json:"history"`
}

var defaultModels = []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1", "o4-mini"}

// Store is an in-memory implementation of the agent-state contract
// with JSON file save/load. It carries no database dependency;
// persistence proper is out of scope per the Non-goals.
type Store struct {
	mu       sync.Mutex
	model    string
	parallel bool
	verbose  bool
	history  []Turn
}

// New constructs a Store with the given default model.
func New(defaultModel string) *Store {
	if defaultModel == "" {
		defaultModel = defaultModels[0]
	}
	return &Store{model: defaultModel}
}

// AppendTurn records one exchange.
func (s *Store) AppendTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: role, Content: content, Timestamp: time.Now()})
}

// ClearHistory discards every recorded turn.
func (s *Store) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// GetHistory returns a copy of the recorded turns, oldest first.
func (s *Store) GetHistory() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// SaveSession writes the current model, toggles, and history to path
// as JSON.
func (s *Store) SaveSession(path string) error {
	s.mu.Lock()
	snap := snapshot{Model: s.model, Parallel: s.parallel, Verbose: s.verbose, History: s.history}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "agentstate: marshal session")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "agentstate: write session file")
	}
	return nil
}

// LoadSession replaces the current state with what is stored at path.
func (s *Store) LoadSession(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "agentstate: read session file")
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Wrap(err, "agentstate: unmarshal session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = snap.Model
	s.parallel = snap.Parallel
	s.verbose = snap.Verbose
	s.history = snap.History
	return nil
}

// SetModel changes the active model name.
func (s *Store) SetModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = name
}

// ToggleParallel flips and returns the parallel-execution flag.
func (s *Store) ToggleParallel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parallel = !s.parallel
	return s.parallel
}

// ToggleVerbose flips and returns the verbose-logging flag.
func (s *Store) ToggleVerbose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verbose = !s.verbose
	return s.verbose
}

// GetCurrentModel returns the active model name.
func (s *Store) GetCurrentModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// ListAvailableModels returns the fixed set of models the reference
// task runner can be pointed at.
func (s *Store) ListAvailableModels() []string {
	out := make([]string, len(defaultModels))
	copy(out, defaultModels)
	return out
}
