package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentshell/internal/queue"
)

func TestRecordTaskIncrementsCounters(t *testing.T) {
	r := New(Config{})
	r.RecordTask("message", "success", 25*time.Millisecond)
	r.RecordTask("message", "error", 10*time.Millisecond)

	metrics, err := r.Gatherer().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metrics {
		if mf.GetName() == "agentshell_queue_tasks_total" {
			found = true
			assert.Len(t, mf.GetMetric(), 2)
		}
	}
	assert.True(t, found, "expected agentshell_queue_tasks_total to be registered")
}

func TestSetQueueDepthAndActiveSessions(t *testing.T) {
	r := New(Config{})
	r.SetQueueDepth("urgent", 3)
	r.SetActiveSessions(2)
	r.RecordSessionKill("timeout")
	r.RecordEmergencyStop()

	metrics, err := r.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range metrics {
		names[mf.GetName()] = true
	}
	assert.True(t, names["agentshell_queue_depth"])
	assert.True(t, names["agentshell_supervisor_sessions_active"])
	assert.True(t, names["agentshell_supervisor_session_kills_total"])
	assert.True(t, names["agentshell_processor_emergency_stops_total"])
}

func TestQueueListenerRecordsEnqueueAndCompletion(t *testing.T) {
	r := New(Config{})
	listener := r.QueueListener()

	task := &queue.QueuedTask{ID: "t1", Priority: queue.Urgent, Payload: queue.InputItem{Kind: queue.KindMessage}}
	listener(queue.Event{Kind: queue.EventEnqueued, TaskID: task.ID, Task: task})
	listener(queue.Event{Kind: queue.EventCompleted, TaskID: task.ID, Task: task, Result: &queue.Result{Success: true, Duration: 12}})

	metrics, err := r.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range metrics {
		names[mf.GetName()] = true
	}
	assert.True(t, names["agentshell_queue_enqueued_total"])
	assert.True(t, names["agentshell_queue_tasks_total"])
}
