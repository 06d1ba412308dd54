// Package observability exposes the runtime's prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector on a private registry so parallel tests
// never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	TasksExecuted   *prometheus.CounterVec
	TokensUsed      *prometheus.CounterVec
	PipelinesRun    *prometheus.CounterVec
	SchedulerFires  prometheus.Counter
	SchedulerSkips  *prometheus.CounterVec
	EventsEmitted   *prometheus.CounterVec
	WebhookRequests *prometheus.CounterVec
	BudgetSpentUSD  prometheus.Gauge
	QueueDepth      prometheus.Gauge
}

// NewMetrics builds the collector set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		TasksExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_tasks_executed_total",
			Help: "Tasks executed by the agent executor, by terminal status.",
		}, []string{"status"}),
		TokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_tokens_used_total",
			Help: "Model tokens consumed, by direction.",
		}, []string{"direction"}),
		PipelinesRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_pipeline_runs_total",
			Help: "Pipeline runs finished, by terminal status.",
		}, []string{"status"}),
		SchedulerFires: factory.NewCounter(prometheus.CounterOpts{
			Name: "cadence_scheduler_fires_total",
			Help: "Schedule entries fired.",
		}),
		SchedulerSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_scheduler_skips_total",
			Help: "Schedule evaluations skipped, by reason.",
		}, []string{"reason"}),
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_events_emitted_total",
			Help: "System events processed by the event bus, by type.",
		}, []string{"type"}),
		WebhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_webhook_requests_total",
			Help: "Webhook HTTP requests, by path and status code.",
		}, []string{"path", "code"}),
		BudgetSpentUSD: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cadence_budget_spent_usd",
			Help: "Aggregate model spend in USD.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cadence_queue_depth",
			Help: "Tasks waiting in the execution queue.",
		}),
	}
}

// RecordFire counts one schedule firing. Satisfies scheduler.Recorder.
func (m *Metrics) RecordFire() { m.SchedulerFires.Inc() }

// RecordSkip counts one suppressed schedule evaluation by reason.
func (m *Metrics) RecordSkip(reason string) { m.SchedulerSkips.WithLabelValues(reason).Inc() }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying gatherer for assertions in tests.
func (m *Metrics) Registry() prometheus.Gatherer { return m.registry }
