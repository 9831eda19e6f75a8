// Package metrics provides Prometheus instrumentation for the wallet bridge.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AgentLogins counts sign-in attempts against the agent platform by outcome.
	AgentLogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awb_agent_logins_total",
		Help: "Agent platform sign-in attempts",
	}, []string{"outcome"})

	// AgentCalls counts agent API calls by endpoint and outcome.
	AgentCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awb_agent_calls_total",
		Help: "Agent platform API calls",
	}, []string{"endpoint", "outcome"})

	// AgentRetries counts retried agent API attempts.
	AgentRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awb_agent_retries_total",
		Help: "Retried agent platform API attempts",
	}, []string{"endpoint", "reason"})

	// TasksProcessed counts worker tasks by kind and outcome.
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awb_tasks_processed_total",
		Help: "Operation queue tasks processed",
	}, []string{"kind", "outcome"})

	// TaskDuration tracks task execution time by kind.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "awb_task_duration_seconds",
		Help:    "Operation queue task duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})

	// QueueDepth is the last observed operation queue length.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "awb_queue_depth",
		Help: "Tasks waiting in the operation queue",
	})

	// RequestsResolved counts moderated request resolutions by kind and status.
	RequestsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awb_requests_resolved_total",
		Help: "Moderated requests resolved",
	}, []string{"kind", "status"})

	// DuplicateCallbacks counts suppressed repeat presses of moderation buttons.
	DuplicateCallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "awb_duplicate_callbacks_total",
		Help: "Moderation callbacks suppressed as duplicates",
	})

	// AuditDropped counts audit entries discarded because the write buffer was full.
	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "awb_audit_dropped_total",
		Help: "Audit entries dropped on a full buffer",
	})

	// SchedulerRuns counts scheduled job runs by job and outcome.
	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awb_scheduler_runs_total",
		Help: "Scheduled job runs",
	}, []string{"job", "outcome"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awb_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "awb_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Outcome labels shared by the counters above.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
	OutcomePanic    = "panic"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics. The route pattern is used as the path
// label to keep cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveTask records one finished task.
func ObserveTask(kind, outcome string, elapsed time.Duration) {
	TasksProcessed.WithLabelValues(kind, outcome).Inc()
	TaskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
