package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agentshell/internal/streamer"
	"github.com/hrygo/agentshell/internal/supervisor"
)

func newTestService(t *testing.T) (*echo.Echo, *streamer.Streamer, *supervisor.Supervisor) {
	t.Helper()
	st := streamer.New(t.TempDir(), 100)
	sup := supervisor.New(st, nil)
	svc := &Service{Supervisor: sup, Streamer: st}
	e := echo.New()
	svc.Register(e)
	return e, st, sup
}

func TestHealthzOK(t *testing.T) {
	e, _, _ := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestSessionsListsStartedSessions(t *testing.T) {
	e, _, sup := newTestService(t)
	require.NoError(t, sup.StartSession(context.Background(), supervisor.Spec{
		SessionID: "job1",
		Command:   "sh",
		Args:      []string{"-c", "echo hi"},
	}))
	time.Sleep(50 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "job1")
}

func TestSessionOutputReturnsCapturedLines(t *testing.T) {
	e, _, sup := newTestService(t)
	require.NoError(t, sup.StartSession(context.Background(), supervisor.Spec{
		SessionID: "job2",
		Command:   "sh",
		Args:      []string{"-c", "echo hello-world"},
	}))
	time.Sleep(50 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/sessions/job2/output", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello-world")
}

func TestSessionOutputUnknownSessionReturns404(t *testing.T) {
	e, _, _ := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/sessions/missing/output", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
