// Package metrics provides a lightweight, Prometheus-compatible metrics
// registry for the forwarding pipeline. It renders text/plain in Prometheus
// exposition format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewRegistry()

// Registry aggregates counters, gauges, and histograms keyed by name+labels.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Uptime returns how long the registry has been running.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)   { g.value.Store(v) }
func (g *Gauge) Inc()          { g.value.Add(1) }
func (g *Gauge) Dec()          { g.value.Add(-1) }
func (g *Gauge) Value() int64  { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func metricKey(name, labels string) string { return name + "{" + labels + "}" }

// Counter returns or creates a counter.
func (r *Registry) Counter(name, help, labels string) *Counter {
	key := metricKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[key] = c
	return c
}

// Gauge returns or creates a gauge.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	key := metricKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[key] = g
	return g
}

// Histogram returns or creates a histogram with the given upper bounds.
func (r *Registry) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := metricKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[key]; ok {
		return h
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	hb := make([]histBucket, len(sorted))
	for i, b := range sorted {
		hb[i] = histBucket{le: b}
	}
	h := &Histogram{name: name, help: help, labels: labels, buckets: hb}
	r.histograms[key] = h
	return h
}

// --- Prometheus text rendering ---

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.Render(w)
	}
}

// Render renders every metric, sorted by name then labels.
func (r *Registry) Render(w io.Writer) {
	fmt.Fprintf(w, "# HELP hwbot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(w, "# TYPE hwbot_uptime_seconds gauge\n")
	fmt.Fprintf(w, "hwbot_uptime_seconds %d\n\n", int64(r.Uptime().Seconds()))

	r.mu.RLock()
	defer r.mu.RUnlock()

	helpWritten := make(map[string]bool)
	for _, key := range sortedKeys(r.counters) {
		c := r.counters[key]
		if !helpWritten[c.name] {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
			helpWritten[c.name] = true
		}
		writeSample(w, c.name, c.labels, c.Value())
	}

	for _, key := range sortedKeys(r.gauges) {
		g := r.gauges[key]
		if !helpWritten[g.name] {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
			helpWritten[g.name] = true
		}
		writeSample(w, g.name, g.labels, g.Value())
	}

	for _, key := range sortedKeys(r.histograms) {
		h := r.histograms[key]
		h.mu.Lock()
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
		prefix := h.name + "_bucket{"
		if h.labels != "" {
			prefix += h.labels + ","
		}
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(w, "%sle=\"%s\"} %d\n", prefix, le, b.count)
		}
		fmt.Fprintf(w, "%sle=\"+Inf\"} %d\n", prefix, h.count)
		writeSample(w, h.name+"_count", h.labels, h.count)
		if h.labels != "" {
			fmt.Fprintf(w, "%s_sum{%s} %f\n", h.name, h.labels, h.sum)
		} else {
			fmt.Fprintf(w, "%s_sum %f\n", h.name, h.sum)
		}
		h.mu.Unlock()
	}
}

func writeSample(w io.Writer, name, labels string, v int64) {
	if labels != "" {
		fmt.Fprintf(w, "%s{%s} %d\n", name, labels, v)
		return
	}
	fmt.Fprintf(w, "%s %d\n", name, v)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Pre-defined metrics used across the application ---

var (
	MessagesReceived = Collector.Counter("hwbot_messages_received_total", "Inbound messages entering triage", "")
	DroppedUnrouted  = Collector.Counter("hwbot_messages_dropped_total", "Messages dropped before classification", `reason="unrouted"`)
	DroppedJunk      = Collector.Counter("hwbot_messages_dropped_total", "Messages dropped before classification", `reason="junk"`)
	NotMatched       = Collector.Counter("hwbot_messages_not_matched_total", "Messages without homework content", "")
	HomeworkMatched  = Collector.Counter("hwbot_homework_matched_total", "Messages classified as homework", "")

	ExtractionFailures = Collector.Counter("hwbot_extraction_failures_total", "Failed or timed-out text extractions", "")
	DeliveriesOK       = Collector.Counter("hwbot_deliveries_total", "Delivery attempts by result", `result="delivered"`)
	DeliveriesFailed   = Collector.Counter("hwbot_deliveries_total", "Delivery attempts by result", `result="failed"`)
	StoreErrors        = Collector.Counter("hwbot_store_errors_total", "Activity log write failures", "")
	InFlight           = Collector.Gauge("hwbot_messages_in_flight", "Messages currently in the pipeline", "")

	ExtractionLatency = Collector.Histogram("hwbot_extraction_latency_seconds", "Text extraction latency in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
	DeliveryLatency = Collector.Histogram("hwbot_delivery_latency_seconds", "Per-destination delivery latency in seconds", "",
		[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10})
)
