// Package tokens implements the token-accounting collaborator contract
// from spec.md §4.6, reusing the exponential moving-average machinery
// already specified for classifier stats (SPEC_FULL §4.6).
package tokens

import (
	"fmt"
	"sync"
	"time"
)

// smoothingFactor matches internal/classifier's alpha so api-duration
// accounting behaves identically across the two components.
const smoothingFactor = 0.1

// Stats is a point-in-time snapshot of token and turn accounting.
type Stats struct {
	TokensIn         int64
	TokensOut        int64
	Turns            int64
	AvgAPIDurationMs float64
}

// Accountant tracks input/output token counts, turn counts, and a
// smoothed average API call duration across a session.
type Accountant struct {
	mu       sync.Mutex
	stats    Stats
	apiCalls int64
}

// New constructs an empty Accountant.
func New() *Accountant {
	return &Accountant{}
}

// AddInput accumulates input (prompt) tokens.
func (a *Accountant) AddInput(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TokensIn += int64(n)
}

// AddOutput accumulates output (completion) tokens.
func (a *Accountant) AddOutput(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TokensOut += int64(n)
}

// IncrementTurn records that one more request/response turn completed.
func (a *Accountant) IncrementTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Turns++
}

// AddAPIDuration folds one API call's duration into the smoothed
// average, using the same alpha=0.1 exponential smoothing as the
// Queue Manager's processing-time stat.
func (a *Accountant) AddAPIDuration(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ms := float64(d.Milliseconds())
	a.apiCalls++
	if a.apiCalls == 1 {
		a.stats.AvgAPIDurationMs = ms
		return
	}
	a.stats.AvgAPIDurationMs = smoothingFactor*ms + (1-smoothingFactor)*a.stats.AvgAPIDurationMs
}

// GetStats returns a copy of the current accounting snapshot.
func (a *Accountant) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// FormatStats renders the snapshot as a single human-readable line for
// REPL status output.
func (a *Accountant) FormatStats() string {
	s := a.GetStats()
	return fmt.Sprintf("turns=%d tokens_in=%d tokens_out=%d avg_api_ms=%.1f",
		s.Turns, s.TokensIn, s.TokensOut, s.AvgAPIDurationMs)
}
