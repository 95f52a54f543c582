package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistry_CounterIsShared(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("x_total", "help", `k="v"`)
	b := r.Counter("x_total", "help", `k="v"`)
	a.Inc()
	b.Add(2)
	if a != b || a.Value() != 3 {
		t.Fatalf("expected one shared counter with value 3, got %d", a.Value())
	}
}

func TestRegistry_HistogramBuckets(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("lat_seconds", "latency", "", []float64{1, 0.5})
	h.Observe(0.2)
	h.Observe(0.7)
	h.Observe(3)
	if h.Count() != 3 {
		t.Fatalf("expected 3 observations, got %d", h.Count())
	}

	var sb strings.Builder
	r.Render(&sb)
	out := sb.String()
	for _, want := range []string{
		`lat_seconds_bucket{le="0.5"} 1`,
		`lat_seconds_bucket{le="1"} 2`,
		`lat_seconds_bucket{le="+Inf"} 3`,
		`lat_seconds_count 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestHandler_RendersLabelledCounters(t *testing.T) {
	r := NewRegistry()
	r.Counter("drops_total", "drops", `reason="junk"`).Inc()
	r.Counter("drops_total", "drops", `reason="unrouted"`).Add(4)
	r.Gauge("inflight", "in flight", "").Set(2)

	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if strings.Count(body, "# TYPE drops_total counter") != 1 {
		t.Errorf("expected a single TYPE line for drops_total:\n%s", body)
	}
	for _, want := range []string{`drops_total{reason="junk"} 1`, `drops_total{reason="unrouted"} 4`, "inflight 2"} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q", want)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}
