package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockcache"

// Outcome labels.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeStale    = "stale"
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
)

// Metrics holds every collector exported by the service.
type Metrics struct {
	CacheLookups      *prometheus.CounterVec
	UpstreamCalls     *prometheus.CounterVec
	ChunkFailures     prometheus.Counter
	RecordsDropped    prometheus.Counter
	PageFetchDuration prometheus.Histogram
	GateWait          prometheus.Histogram
	RegistryLoads     *prometheus.CounterVec
	RegistrySize      prometheus.Gauge
	Handshakes        *prometheus.CounterVec
	Degraded          *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by entry kind and outcome",
		}, []string{"kind", "outcome"}),
		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Upstream calls by operation and outcome",
		}, []string{"op", "outcome"}),
		ChunkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "chunk_failures_total",
			Help:      "Quote chunks that failed and contributed no items",
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_dropped_total",
			Help:      "Upstream records dropped during normalization",
		}),
		PageFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "page_fetch_duration_seconds",
			Help:      "Time to fetch and assemble one page from upstream",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		GateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a pacing turn",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		}),
		RegistryLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "loads_total",
			Help:      "Instrument universe loads by source and outcome",
		}, []string{"source", "outcome"}),
		RegistrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "instruments",
			Help:      "Instruments in the current universe",
		}),
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "handshakes_total",
			Help:      "Upstream session handshakes by outcome",
		}, []string{"outcome"}),
		Degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "degraded_total",
			Help:      "Responses served through the degrade policy",
		}, []string{"kind", "mode"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		gatherer: reg,
	}

	collectors := []prometheus.Collector{
		m.CacheLookups,
		m.UpstreamCalls,
		m.ChunkFailures,
		m.RecordsDropped,
		m.PageFetchDuration,
		m.GateWait,
		m.RegistryLoads,
		m.RegistrySize,
		m.Handshakes,
		m.Degraded,
		m.HTTPRequests,
		m.HTTPDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// CacheLookup records one cache lookup.
func (m *Metrics) CacheLookup(kind, outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(kind, outcome).Inc()
}

// UpstreamCall records one upstream call.
func (m *Metrics) UpstreamCall(op string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.UpstreamCalls.WithLabelValues(op, outcome).Inc()
}

// ChunkFailed records a failed quote chunk.
func (m *Metrics) ChunkFailed() {
	if m == nil {
		return
	}
	m.ChunkFailures.Inc()
}

// Dropped records records dropped by normalization.
func (m *Metrics) Dropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsDropped.Add(float64(n))
}

// PageFetched records the duration of a page fetch.
func (m *Metrics) PageFetched(d time.Duration) {
	if m == nil {
		return
	}
	m.PageFetchDuration.Observe(d.Seconds())
}

// GateWaited records time spent waiting for a pacing turn.
func (m *Metrics) GateWaited(d time.Duration) {
	if m == nil {
		return
	}
	m.GateWait.Observe(d.Seconds())
}

// RegistryLoaded records a universe load.
func (m *Metrics) RegistryLoaded(source string, fallback bool, size int) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if fallback {
		outcome = OutcomeFallback
	}
	m.RegistryLoads.WithLabelValues(source, outcome).Inc()
	m.RegistrySize.Set(float64(size))
}

// Handshake records a session handshake attempt.
func (m *Metrics) Handshake(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.Handshakes.WithLabelValues(outcome).Inc()
}

// DegradedResponse records a response served through the degrade policy.
func (m *Metrics) DegradedResponse(kind, mode string) {
	if m == nil {
		return
	}
	m.Degraded.WithLabelValues(kind, mode).Inc()
}

// HTTPRequest records one served HTTP request.
func (m *Metrics) HTTPRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
