package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollect(t *testing.T) {
	m := NewMetrics()
	m.TasksExecuted.WithLabelValues("completed").Inc()
	m.TasksExecuted.WithLabelValues("completed").Inc()
	m.TasksExecuted.WithLabelValues("failed").Inc()
	m.TokensUsed.WithLabelValues("input").Add(120)
	m.SchedulerFires.Inc()
	m.SchedulerSkips.WithLabelValues("budget_throttle").Inc()
	m.BudgetSpentUSD.Set(18.4)

	require.Equal(t, 2.0, testutil.ToFloat64(m.TasksExecuted.WithLabelValues("completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TasksExecuted.WithLabelValues("failed")))
	require.Equal(t, 120.0, testutil.ToFloat64(m.TokensUsed.WithLabelValues("input")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerFires))
	require.Equal(t, 18.4, testutil.ToFloat64(m.BudgetSpentUSD))
}

func TestMetricsHandlerServesTextFormat(t *testing.T) {
	m := NewMetrics()
	m.WebhookRequests.WithLabelValues("/webhook/event", "200").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "cadence_webhook_requests_total"), body)
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.SchedulerFires.Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(a.SchedulerFires))
	require.Equal(t, 0.0, testutil.ToFloat64(b.SchedulerFires))
}
