// Package metrics exports Prometheus metrics for the queue, the
// subprocess supervisor, and the command processor, following the
// same registry-and-vectors layout as the teacher's
// ai/metrics.PrometheusExporter.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/agentshell/internal/queue"
)

// Registry exports agentshell runtime metrics in Prometheus format.
type Registry struct {
	registry *prometheus.Registry

	// Priority input queue metrics.
	queueDepth      *prometheus.GaugeVec
	enqueued        *prometheus.CounterVec
	dequeueWaitSecs prometheus.Histogram
	taskDuration    *prometheus.HistogramVec
	tasksTotal      *prometheus.CounterVec
	cancellations   prometheus.Counter

	// Subprocess supervisor metrics.
	sessionsActive prometheus.Gauge
	sessionsTotal  *prometheus.CounterVec
	sessionKills   *prometheus.CounterVec
	outputBytes    *prometheus.CounterVec

	// Command processor metrics.
	commandsTotal  *prometheus.CounterVec
	emergencyStops prometheus.Counter
}

// Config configures the metrics registry.
type Config struct {
	// Registry to use (if nil, creates a new one).
	Registry *prometheus.Registry

	// Buckets for duration histograms, in seconds.
	DurationBuckets []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		DurationBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}
}

// New creates a Registry and registers all of its collectors.
func New(cfg Config) *Registry {
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultConfig().DurationBuckets
	}

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Registry{registry: reg}

	r.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentshell",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of tasks currently queued, by priority",
		},
		[]string{"priority"},
	)

	r.enqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentshell",
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Total number of tasks enqueued, by priority",
		},
		[]string{"priority"},
	)

	r.dequeueWaitSecs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentshell",
			Subsystem: "queue",
			Name:      "dequeue_wait_seconds",
			Help:      "Time a task spent queued before being dequeued",
			Buckets:   cfg.DurationBuckets,
		},
	)

	r.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentshell",
			Subsystem: "queue",
			Name:      "task_duration_seconds",
			Help:      "Task processing duration in seconds",
			Buckets:   cfg.DurationBuckets,
		},
		[]string{"kind", "status"},
	)

	r.tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentshell",
			Subsystem: "queue",
			Name:      "tasks_total",
			Help:      "Total number of tasks processed, by kind and status",
		},
		[]string{"kind", "status"},
	)

	r.cancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentshell",
			Subsystem: "queue",
			Name:      "cancellations_total",
			Help:      "Total number of tasks whose cancel token was triggered",
		},
	)

	r.sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentshell",
			Subsystem: "supervisor",
			Name:      "sessions_active",
			Help:      "Number of subprocess sessions currently running",
		},
	)

	r.sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentshell",
			Subsystem: "supervisor",
			Name:      "sessions_total",
			Help:      "Total number of subprocess sessions started, by terminal status",
		},
		[]string{"status"},
	)

	r.sessionKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentshell",
			Subsystem: "supervisor",
			Name:      "session_kills_total",
			Help:      "Total number of subprocess sessions killed, by reason",
		},
		[]string{"reason"},
	)

	r.outputBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentshell",
			Subsystem: "streamer",
			Name:      "output_bytes_total",
			Help:      "Total bytes of subprocess output captured, by stream",
		},
		[]string{"stream"},
	)

	r.commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentshell",
			Subsystem: "processor",
			Name:      "commands_total",
			Help:      "Total number of commands dispatched, by verb and status",
		},
		[]string{"verb", "status"},
	)

	r.emergencyStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentshell",
			Subsystem: "processor",
			Name:      "emergency_stops_total",
			Help:      "Total number of emergency-stop invocations",
		},
	)

	reg.MustRegister(
		r.queueDepth,
		r.enqueued,
		r.dequeueWaitSecs,
		r.taskDuration,
		r.tasksTotal,
		r.cancellations,
		r.sessionsActive,
		r.sessionsTotal,
		r.sessionKills,
		r.outputBytes,
		r.commandsTotal,
		r.emergencyStops,
	)

	return r
}

// SetQueueDepth records the current queue depth for a priority label.
func (r *Registry) SetQueueDepth(priority string, depth int) {
	r.queueDepth.WithLabelValues(priority).Set(float64(depth))
}

// RecordEnqueue records one task entering the queue at a priority.
func (r *Registry) RecordEnqueue(priority string) {
	r.enqueued.WithLabelValues(priority).Inc()
}

// RecordDequeueWait records how long a task waited before processing began.
func (r *Registry) RecordDequeueWait(wait time.Duration) {
	r.dequeueWaitSecs.Observe(wait.Seconds())
}

// RecordTask records a completed task's duration, kind and outcome.
func (r *Registry) RecordTask(kind, status string, d time.Duration) {
	r.taskDuration.WithLabelValues(kind, status).Observe(d.Seconds())
	r.tasksTotal.WithLabelValues(kind, status).Inc()
}

// RecordCancellation records a task whose cancel token fired.
func (r *Registry) RecordCancellation() {
	r.cancellations.Inc()
}

// SetActiveSessions sets the number of subprocess sessions running now.
func (r *Registry) SetActiveSessions(n int) {
	r.sessionsActive.Set(float64(n))
}

// RecordSessionEnd records a subprocess session reaching a terminal status.
func (r *Registry) RecordSessionEnd(status string) {
	r.sessionsTotal.WithLabelValues(status).Inc()
}

// RecordSessionKill records a subprocess session being killed for a reason.
func (r *Registry) RecordSessionKill(reason string) {
	r.sessionKills.WithLabelValues(reason).Inc()
}

// RecordOutputBytes records n bytes of output captured on a stream.
func (r *Registry) RecordOutputBytes(stream string, n int) {
	r.outputBytes.WithLabelValues(stream).Add(float64(n))
}

// RecordCommand records a dispatched command's verb and outcome.
func (r *Registry) RecordCommand(verb, status string) {
	r.commandsTotal.WithLabelValues(verb, status).Inc()
}

// RecordEmergencyStop records one emergency-stop invocation.
func (r *Registry) RecordEmergencyStop() {
	r.emergencyStops.Inc()
}

// Handler returns the HTTP handler serving metrics in Prometheus text
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for composition with other
// collectors (e.g. the default Go runtime collectors).
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// QueueListener returns a queue.Listener that feeds Priority Queue
// lifecycle events into the registry. Subscribe it once at startup via
// Queue.Subscribe.
func (r *Registry) QueueListener() queue.Listener {
	return func(ev queue.Event) {
		switch ev.Kind {
		case queue.EventEnqueued:
			if ev.Task != nil {
				r.RecordEnqueue(priorityLabel(ev.Task.Priority))
			}
		case queue.EventCancelled:
			r.RecordCancellation()
			r.recordTaskResult(ev)
		case queue.EventCompleted, queue.EventFailed:
			r.recordTaskResult(ev)
		}
	}
}

func (r *Registry) recordTaskResult(ev queue.Event) {
	if ev.Task == nil || ev.Result == nil {
		return
	}
	status := "success"
	if ev.Result.Cancelled() {
		status = "cancelled"
	} else if !ev.Result.Success {
		status = "error"
	}
	r.RecordTask(string(ev.Task.Payload.Kind), status, time.Duration(ev.Result.Duration)*time.Millisecond)
}

func priorityLabel(p queue.Priority) string {
	switch p {
	case queue.Urgent:
		return "urgent"
	case queue.Low:
		return "low"
	default:
		return "normal"
	}
}
