// Package httpapi exposes an optional echo-based observability API
// mirroring the CLI's read-only surface: a Prometheus scrape endpoint,
// JSON session listing/inspection, and an SSE feed of a session's live
// output. It mirrors the teacher's server/router/frontend pattern of a
// Service whose Register method mounts routes on a caller-owned
// *echo.Echo, rather than owning the server lifecycle itself.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/agentshell/internal/metrics"
	"github.com/hrygo/agentshell/internal/processor"
	"github.com/hrygo/agentshell/internal/streamer"
	"github.com/hrygo/agentshell/internal/supervisor"
)

// Service bundles the collaborators the observability API reads from.
// Every field is read-only from the API's perspective.
type Service struct {
	Supervisor *supervisor.Supervisor
	Streamer   *streamer.Streamer
	Processor  *processor.Processor
	Metrics    *metrics.Registry
}

// Register mounts the observability API's routes on e. Callers own e's
// lifecycle (Start/Shutdown); Register only wires handlers.
func (s *Service) Register(e *echo.Echo) {
	e.Use(middleware.Recover())

	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}
	e.GET("/healthz", s.handleHealthz)
	e.GET("/status", s.handleStatus)
	e.GET("/sessions", s.handleSessions)
	e.GET("/sessions/:id", s.handleSessionInfo)
	e.GET("/sessions/:id/output", s.handleSessionOutput)
	e.GET("/sessions/:id/attach", s.handleAttach)
}

func (s *Service) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Service) handleStatus(c echo.Context) error {
	if s.Processor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "processor unavailable")
	}
	return c.JSON(http.StatusOK, s.Processor.Status())
}

func (s *Service) handleSessions(c echo.Context) error {
	if s.Supervisor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "supervisor unavailable")
	}
	return c.JSON(http.StatusOK, s.Supervisor.GetAllSessions())
}

func (s *Service) handleSessionInfo(c echo.Context) error {
	if s.Supervisor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "supervisor unavailable")
	}
	info, err := s.Supervisor.GetInfo(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Service) handleSessionOutput(c echo.Context) error {
	if s.Streamer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streamer unavailable")
	}
	tail := 200
	if raw := c.QueryParam("tail"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			tail = n
		}
	}
	recs, err := s.Streamer.SessionOutput(c.Param("id"), tail)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, recs)
}

// handleAttach streams a session's live output as server-sent events,
// one JSON-encoded OutputRecord per event, until the client disconnects.
func (s *Service) handleAttach(c echo.Context) error {
	if s.Streamer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streamer unavailable")
	}
	sessionID := c.Param("id")
	ch, unsubscribe, err := s.Streamer.Subscribe(sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	defer unsubscribe()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-heartbeat.C:
			if _, err := resp.Write([]byte(": keepalive\n\n")); err != nil {
				return nil
			}
			resp.Flush()
		case rec, ok := <-ch:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if _, err := resp.Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := resp.Write(payload); err != nil {
				return nil
			}
			if _, err := resp.Write([]byte("\n\n")); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

