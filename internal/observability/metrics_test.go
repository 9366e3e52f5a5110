package observability

import (
	"net/http/httptest"
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

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAggregateOperation("op", "success", time.Millisecond)
	m.IncAggregateConflict("op")
	m.IncValidationResult("retry")
	m.ObserveLoopOutcome("retry", "FAILED", "max_retries_exhausted", 3)
	m.AddStaleReviews(2)
	m.ObserveVectorOperation("qdrant", "upsert", "success", time.Millisecond)
	m.ObserveAPI("GET", "/healthcheck", "200", time.Millisecond)
	m.ApiInflightInc()
	m.ApiInflightDec()
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have nil registry")
	}
}

func TestMetricsCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.IncValidationResult("retry")
	m.IncValidationResult("retry")
	m.IncValidationFinding("E_POV_LEAK", "BLOCK")
	m.AddStaleReviews(3)
	m.AddStaleReviews(0)
	m.IncAggregateConflict("")
	m.ApiInflightInc()
	m.ApiInflightInc()
	m.ApiInflightDec()

	if got := testutil.ToFloat64(m.validationOutcomes.WithLabelValues("retry")); got != 2 {
		t.Fatalf("validation retry count: want=2 got=%v", got)
	}
	if got := testutil.ToFloat64(m.validationFindings.WithLabelValues("E_POV_LEAK", "BLOCK")); got != 1 {
		t.Fatalf("finding count: want=1 got=%v", got)
	}
	if got := testutil.ToFloat64(m.staleReviews); got != 3 {
		t.Fatalf("stale reviews: want=3 got=%v", got)
	}
	if got := testutil.ToFloat64(m.aggregateConflicts.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("empty label should map to unknown, got=%v", got)
	}
	if got := testutil.ToFloat64(m.apiInflight); got != 1 {
		t.Fatalf("inflight: want=1 got=%v", got)
	}
}

func TestMetricsHandlerExposesSeries(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveLoopOutcome("fanout", "ACCEPTED", "", 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `qg_loop_outcomes_total{mode="fanout",reason="none",state="ACCEPTED"} 1`) {
		t.Fatalf("loop outcome series missing from exposition:\n%s", body)
	}
}
