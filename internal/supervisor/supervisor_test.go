package supervisor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentshell/internal/streamer"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *streamer.Streamer) {
	t.Helper()
	st := streamer.New(t.TempDir(), 100)
	return New(st, nil), st
}

func TestNextSessionIDMintsSequentialBgIDs(t *testing.T) {
	a := NextSessionID()
	b := NextSessionID()
	assert.True(t, strings.HasPrefix(a, "bg-"))
	assert.True(t, strings.HasPrefix(b, "bg-"))
	assert.NotEqual(t, a, b)
}

func TestStartSessionReturnsBeforeSpawnCompletes(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, sup.StartSession(ctx, Spec{
		SessionID: "async1",
		Command:   "sh",
		Args:      []string{"-c", "sleep 30"},
	}))

	info, err := sup.GetInfo("async1")
	require.NoError(t, err)
	assert.Contains(t, []Status{StatusStarting, StatusRunning}, info.Status)

	require.NoError(t, sup.KillSession("async1", KillReasonShutdown))
}

func TestStartSessionRunsToExit(t *testing.T) {
	sup, st := newTestSupervisor(t)
	ctx := context.Background()

	err := sup.StartSession(ctx, Spec{
		SessionID: "sess1",
		Command:   "sh",
		Args:      []string{"-c", "echo hello; echo world"},
	})
	require.NoError(t, err)

	session, err := sup.GetSession("sess1")
	require.NoError(t, err)
	session.wait()

	info := session.info()
	assert.Equal(t, StatusExited, info.Status)
	assert.Equal(t, 0, info.ExitCode)

	recs, err := st.SessionOutput("sess1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "hello", recs[0].Line)
	assert.Equal(t, "world", recs[1].Line)
}

func TestKillSessionTerminatesProcessGroup(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	err := sup.StartSession(ctx, Spec{
		SessionID: "sess1",
		Command:   "sh",
		Args:      []string{"-c", "sleep 30"},
	})
	require.NoError(t, err)

	err = sup.KillSession("sess1", KillReasonUserRequest)
	require.NoError(t, err)

	info, err := sup.GetInfo("sess1")
	require.NoError(t, err)
	assert.Equal(t, StatusKilled, info.Status)
	assert.Equal(t, KillReasonUserRequest, info.KillReason)
}

func TestSessionTimeout(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	err := sup.StartSession(ctx, Spec{
		SessionID: "sess1",
		Command:   "sh",
		Args:      []string{"-c", "sleep 30"},
		Timeout:   50 * time.Millisecond,
	})
	require.NoError(t, err)

	session, err := sup.GetSession("sess1")
	require.NoError(t, err)
	session.wait()

	info := session.info()
	assert.Equal(t, StatusTimedOut, info.Status)
	assert.Equal(t, KillReasonTimeout, info.KillReason)
}

func TestOutputLimitKillsSession(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	err := sup.StartSession(ctx, Spec{
		SessionID:      "sess1",
		Command:        "sh",
		Args:           []string{"-c", "yes hello | head -c 1000000"},
		MaxOutputBytes: 1024,
	})
	require.NoError(t, err)

	session, err := sup.GetSession("sess1")
	require.NoError(t, err)
	session.wait()

	info := session.info()
	assert.Equal(t, StatusKilled, info.Status)
	assert.Equal(t, KillReasonOutputLimit, info.KillReason)
}

func TestGetStatsAndClearHistory(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, sup.StartSession(ctx, Spec{SessionID: "a", Command: "sh", Args: []string{"-c", "true"}}))
	require.NoError(t, sup.StartSession(ctx, Spec{SessionID: "b", Command: "sh", Args: []string{"-c", "sleep 30"}}))

	sa, _ := sup.GetSession("a")
	sa.wait()
	time.Sleep(50 * time.Millisecond) // let "b"'s async spawn reach StatusRunning

	stats := sup.GetStats()
	assert.Equal(t, 1, stats.Exited)
	assert.Equal(t, 1, stats.Running)

	sup.ClearHistory()
	all := sup.GetAllSessions()
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].SessionID)

	require.NoError(t, sup.KillSession("b", KillReasonShutdown))
}
