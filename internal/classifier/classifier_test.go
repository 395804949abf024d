package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/agentshell/internal/queue"
)

func TestClassifyCommand(t *testing.T) {
	item, priority, retryLimit := Classify("/shell echo hello", "s1")
	assert.Equal(t, queue.KindCommand, item.Kind)
	assert.Equal(t, "shell", item.Verb)
	assert.Equal(t, "echo hello", item.Args)
	assert.Equal(t, queue.Normal, priority)
	assert.Equal(t, 1, retryLimit)
}

func TestClassifyUrgentCommand(t *testing.T) {
	for _, verb := range []string{"stop", "kill", "status", "jobs", "interrupt", "abort", "emergency"} {
		item, priority, _ := Classify("/"+verb, "")
		assert.Equal(t, queue.Urgent, priority, "verb %q should be urgent", verb)
		assert.Equal(t, verb, item.Verb)
	}
}

func TestClassifySystemDirective(t *testing.T) {
	item, priority, _ := Classify("system: shutdown", "")
	assert.Equal(t, queue.KindSystem, item.Kind)
	assert.Equal(t, "shutdown", item.Content)
	assert.Equal(t, queue.Urgent, priority)
}

func TestClassifyMessage(t *testing.T) {
	item, priority, retryLimit := Classify("what is the weather", "s1")
	assert.Equal(t, queue.KindMessage, item.Kind)
	assert.Equal(t, queue.Normal, priority)
	assert.Equal(t, 3, retryLimit)
}

func TestClassifyReflexMessage(t *testing.T) {
	item, priority, _ := Classify("!ping", "")
	assert.Equal(t, queue.KindMessage, item.Kind)
	assert.True(t, item.Reflex)
	assert.Equal(t, "ping", item.Content)
	assert.Equal(t, queue.Normal, priority)
}

func TestBackgroundIsLowPriority(t *testing.T) {
	_, priority, _ := Background("compact history")
	assert.Equal(t, queue.Low, priority)
}

func TestManagerStats(t *testing.T) {
	q := queue.New(queue.Config{})
	m := NewManager(q)

	_, err := m.Submit("/status", "")
	assert.NoError(t, err)
	_, err = m.Submit("hello", "")
	assert.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.UrgentCount)
	assert.Equal(t, int64(1), snap.NormalCount)
	assert.Equal(t, int64(0), snap.ErrorCount)
}
