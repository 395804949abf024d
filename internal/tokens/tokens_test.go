package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountantAccumulates(t *testing.T) {
	a := New()
	a.AddInput(100)
	a.AddOutput(50)
	a.IncrementTurn()
	a.AddAPIDuration(200 * time.Millisecond)

	stats := a.GetStats()
	assert.Equal(t, int64(100), stats.TokensIn)
	assert.Equal(t, int64(50), stats.TokensOut)
	assert.Equal(t, int64(1), stats.Turns)
	assert.Equal(t, 200.0, stats.AvgAPIDurationMs)
}

func TestAccountantSmoothsDuration(t *testing.T) {
	a := New()
	a.IncrementTurn()
	a.AddAPIDuration(100 * time.Millisecond)
	a.IncrementTurn()
	a.AddAPIDuration(300 * time.Millisecond)

	stats := a.GetStats()
	assert.InDelta(t, 120.0, stats.AvgAPIDurationMs, 0.001)
}

func TestFormatStats(t *testing.T) {
	a := New()
	a.AddInput(10)
	out := a.FormatStats()
	assert.Contains(t, out, "tokens_in=10")
}
