package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lsc-studio/lscauth"
	"github.com/lsc-studio/lscauth/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot lscauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() lscauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func populatedSource() fakeSource {
	return fakeSource{
		snapshot: lscauth.MetricsSnapshot{
			Counters: map[lscauth.MetricID]uint64{
				lscauth.MetricLoginSuccess: 7,
			},
			Histograms: map[lscauth.MetricID][]uint64{
				lscauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			Sums: map[lscauth.MetricID]time.Duration{
				lscauth.MetricValidateLatency: 2 * time.Second,
			},
		},
		dropped: 2,
	}
}

func TestCollectorOnlyAuditDroppedWhenMetricsDisabled(t *testing.T) {
	collector := NewCollectorFromSource(fakeSource{
		snapshot: lscauth.MetricsSnapshot{
			Counters:   map[lscauth.MetricID]uint64{},
			Histograms: map[lscauth.MetricID][]uint64{},
		},
	})

	if got := testutil.CollectAndCount(collector); got != 1 {
		t.Fatalf("expected only the audit dropped counter, got %d metrics", got)
	}
}

func TestCollectorCountersAndHistogram(t *testing.T) {
	collector := NewCollectorFromSource(populatedSource())

	want := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs) + 1
	if got := testutil.CollectAndCount(collector); got != want {
		t.Fatalf("expected %d metrics, got %d", want, got)
	}

	expected := `
# HELP lscauth_login_success_total Successful login attempts.
# TYPE lscauth_login_success_total counter
lscauth_login_success_total 7
# HELP lscauth_audit_dropped_total Dropped audit entries due to dispatcher backpressure.
# TYPE lscauth_audit_dropped_total counter
lscauth_audit_dropped_total 2
# HELP lscauth_validate_latency_seconds Access token validation latency.
# TYPE lscauth_validate_latency_seconds histogram
lscauth_validate_latency_seconds_bucket{le="0.005"} 1
lscauth_validate_latency_seconds_bucket{le="0.01"} 3
lscauth_validate_latency_seconds_bucket{le="0.025"} 6
lscauth_validate_latency_seconds_bucket{le="0.05"} 10
lscauth_validate_latency_seconds_bucket{le="0.1"} 15
lscauth_validate_latency_seconds_bucket{le="0.25"} 21
lscauth_validate_latency_seconds_bucket{le="0.5"} 28
lscauth_validate_latency_seconds_bucket{le="+Inf"} 36
lscauth_validate_latency_seconds_sum 2
lscauth_validate_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"lscauth_login_success_total",
		"lscauth_audit_dropped_total",
		"lscauth_validate_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected collector output: %v", err)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	exp := NewPrometheusExporterFromSource(populatedSource())

	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, fragment := range []string{
		"lscauth_login_success_total 7",
		"lscauth_validate_latency_seconds_count 36",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), fragment) {
			t.Fatalf("expected %q in output", fragment)
		}
	}
}

func TestInstrumentLabelsByRoutePattern(t *testing.T) {
	exp := NewPrometheusExporterFromSource(populatedSource())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := exp.Instrument(mux)

	for _, path := range []string{"/users/1", "/users/2", "/nowhere"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(exp.requests.WithLabelValues("GET", "GET /users/{id}", "418")); got != 2 {
		t.Fatalf("expected 2 routed requests, got %v", got)
	}
	if got := testutil.ToFloat64(exp.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
	if got := testutil.ToFloat64(exp.inFlight); got != 0 {
		t.Fatalf("expected no in-flight requests, got %v", got)
	}
}

func BenchmarkCollect(b *testing.B) {
	collector := NewCollectorFromSource(populatedSource())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = testutil.CollectAndCount(collector)
	}
}
