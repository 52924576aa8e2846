package prometheus

import (
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lsc-studio/lscauth"
	"github.com/lsc-studio/lscauth/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() lscauth.MetricsSnapshot
	AuditDropped() uint64
}

// Collector is a [prom.Collector] over engine metrics snapshots.
type Collector struct {
	source       metricsSource
	counters     []*prom.Desc
	histograms   []*prom.Desc
	auditDropped *prom.Desc
}

// NewCollector creates a Collector that reads from engine.
func NewCollector(engine *lscauth.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource creates a Collector from any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]*prom.Desc, len(internaldefs.CounterDefs)),
		histograms: make([]*prom.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prom.NewDesc(
			internaldefs.AuditDroppedName,
			"Dropped audit entries due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for i, def := range internaldefs.CounterDefs {
		c.counters[i] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		c.histograms[i] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.auditDropped
}

// Collect emits nothing but the audit drop counter while engine metrics are disabled.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	ch <- prom.MustNewConstMetric(c.auditDropped, prom.CounterValue, float64(c.source.AuditDropped()))
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return
	}

	for i, def := range internaldefs.CounterDefs {
		ch <- prom.MustNewConstMetric(c.counters[i], prom.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
		for b, le := range internaldefs.HistogramBounds {
			buckets[le] = cumulative[b]
		}
		count := cumulative[len(cumulative)-1]
		sum := snapshot.Sums[def.ID].Seconds()
		ch <- prom.MustNewConstHistogram(c.histograms[i], count, sum, buckets)
	}
}

// PrometheusExporter owns a registry holding the engine collector, the Go runtime and
// process collectors and the HTTP request metrics of [PrometheusExporter.Instrument].
type PrometheusExporter struct {
	registry *prom.Registry

	inFlight prom.Gauge
	requests *prom.CounterVec
	duration *prom.HistogramVec
}

// NewPrometheusExporter creates an exporter that reads from engine.
func NewPrometheusExporter(engine *lscauth.Engine) *PrometheusExporter {
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource creates an exporter from any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	p := &PrometheusExporter{
		registry: prom.NewRegistry(),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Name: "lscauth_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requests: prom.NewCounterVec(
			prom.CounterOpts{
				Name: "lscauth_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		duration: prom.NewHistogramVec(
			prom.HistogramOpts{
				Name:    "lscauth_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prom.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	p.registry.MustRegister(
		NewCollectorFromSource(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.inFlight,
		p.requests,
		p.duration,
	)
	return p
}

// Registry exposes the exporter registry for additional collectors.
func (p *PrometheusExporter) Registry() *prom.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Instrument records request count, latency and in-flight requests of next. The route
// label is the ServeMux pattern that matched, so raw paths never become label values.
func (p *PrometheusExporter) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.inFlight.Inc()
		defer p.inFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(sw.code)
		p.duration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		p.requests.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
