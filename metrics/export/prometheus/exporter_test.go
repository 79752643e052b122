package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot goSession.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goSession.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestCollectOnlyAuditDroppedWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters:   map[goSession.MetricID]uint64{},
			Histograms: map[goSession.MetricID][]uint64{},
		},
	})

	if got := testutil.CollectAndCount(exp); got != 1 {
		t.Fatalf("expected only the audit dropped counter, got %d metrics", got)
	}
}

func TestCollectCounterAndCumulativeHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricTokenTheftDetected: 7,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP gosession_token_theft_detected_total Replays of superseded refresh tokens.
# TYPE gosession_token_theft_detected_total counter
gosession_token_theft_detected_total 7
# HELP gosession_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE gosession_audit_dropped_total counter
gosession_audit_dropped_total 2
# HELP gosession_verify_latency_seconds VerifySession latency.
# TYPE gosession_verify_latency_seconds histogram
gosession_verify_latency_seconds_bucket{le="0.005"} 1
gosession_verify_latency_seconds_bucket{le="0.01"} 3
gosession_verify_latency_seconds_bucket{le="0.025"} 6
gosession_verify_latency_seconds_bucket{le="0.05"} 10
gosession_verify_latency_seconds_bucket{le="0.1"} 15
gosession_verify_latency_seconds_bucket{le="0.25"} 21
gosession_verify_latency_seconds_bucket{le="0.5"} 28
gosession_verify_latency_seconds_bucket{le="+Inf"} 36
gosession_verify_latency_seconds_sum 0
gosession_verify_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(exp, strings.NewReader(expected),
		"gosession_token_theft_detected_total",
		"gosession_audit_dropped_total",
		"gosession_verify_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}

func TestRegisterIntoSharedRegistry(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters:   map[goSession.MetricID]uint64{goSession.MetricSessionCreated: 3},
			Histograms: map[goSession.MetricID][]uint64{},
		},
	})

	reg := prometheus.NewRegistry()
	if err := exp.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := exp.Register(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	got, err := testutil.GatherAndCount(reg, "gosession_session_created_total")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected one session_created sample, got %d", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters:   map[goSession.MetricID]uint64{goSession.MetricSessionCreated: 1},
			Histograms: map[goSession.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected text exposition content type, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "gosession_session_created_total 1") {
		t.Fatalf("expected session_created counter in output, got:\n%s", rec.Body.String())
	}
}

func BenchmarkGather(b *testing.B) {
	counters := make(map[goSession.MetricID]uint64)
	for i, def := range []goSession.MetricID{
		goSession.MetricSessionCreated,
		goSession.MetricRefreshSuccess,
		goSession.MetricRefreshFailure,
		goSession.MetricVerifySuccess,
		goSession.MetricVerifyTryRefresh,
		goSession.MetricTokenTheftDetected,
	} {
		counters[def] = uint64(1000 * (i + 1))
	}
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: counters,
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricVerifyLatency:  {10, 20, 30, 40, 50, 60, 70, 80},
				goSession.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := exp.registry.Gather(); err != nil {
			b.Fatal(err)
		}
	}
}
