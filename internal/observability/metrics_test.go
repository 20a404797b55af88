package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestObserveTool(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveTool("list_staff", "ok", 20*time.Millisecond)
	m.ObserveTool("list_staff", "ok", 30*time.Millisecond)
	m.ObserveTool("create_payment_link", "business_rule", time.Millisecond)

	expected := `
		# HELP agent_tool_executions_total Total number of tool executions by tool and result
		# TYPE agent_tool_executions_total counter
		agent_tool_executions_total{result="business_rule",tool="create_payment_link"} 1
		agent_tool_executions_total{result="ok",tool="list_staff"} 2
	`
	if err := testutil.CollectAndCompare(m.ToolExecutions, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
	if count := testutil.CollectAndCount(m.ToolDuration); count != 2 {
		t.Errorf("expected 2 duration series, got %d", count)
	}
}

func TestObserveJob(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveJob("processed")
	m.ObserveJob("duplicate")
	m.ObserveJob("delivery_failed")

	if got := testutil.ToFloat64(m.JobsTotal.WithLabelValues("processed")); got != 1 {
		t.Errorf("processed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DeliveryFailures); got != 1 {
		t.Errorf("delivery failures = %v, want 1", got)
	}
}

func TestObserveLoopAndModel(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveLoop("answered", 2)
	m.ObserveLoop("iteration_limit", 5)
	m.ObserveModel(true, time.Second)
	m.ObserveModel(false, time.Second)

	if got := testutil.ToFloat64(m.LoopOutcomes.WithLabelValues("iteration_limit")); got != 1 {
		t.Errorf("iteration_limit = %v, want 1", got)
	}
	if count := testutil.CollectAndCount(m.ModelRequestDuration); count != 2 {
		t.Errorf("expected 2 model series, got %d", count)
	}
	if count := testutil.CollectAndCount(m.LoopIterations); count != 1 {
		t.Errorf("expected 1 iteration histogram, got %d", count)
	}
}

func TestObserveHTTP(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveHTTP("POST", "/process", 200)
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/process", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestMetricsIsolatedRegistries(t *testing.T) {
	// Two instances must not collide.
	newTestMetrics(t)
	newTestMetrics(t)
}
