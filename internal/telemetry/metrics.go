package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics is optional observability wired to the acquisition and refresh
// paths. It is nil-safe: every method on a nil *Metrics is a no-op, so
// packages can carry a *Metrics field unconditionally and callers who
// never register one pay nothing at runtime.
type Metrics struct {
	acquisitions   *prometheus.CounterVec
	collisions     prometheus.Counter
	staleReclaims  prometheus.Counter
	compromises    *prometheus.CounterVec
	refreshLatency prometheus.Histogram
}

// NewMetrics constructs and registers a Metrics on reg. Pass a nil
// Registerer to opt out of metrics entirely.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filelock",
			Name:      "acquisitions_total",
			Help:      "Lock acquisitions by outcome.",
		}, []string{"outcome"}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filelock",
			Name:      "collisions_total",
			Help:      "Acquisition attempts that observed a live sentinel.",
		}),
		staleReclaims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filelock",
			Name:      "stale_reclaims_total",
			Help:      "Sentinels reclaimed because their mtime crossed the stale threshold.",
		}),
		compromises: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filelock",
			Name:      "compromises_total",
			Help:      "Held locks lost, by kind.",
		}, []string{"kind"}),
		refreshLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "filelock",
			Name:      "refresh_latency_seconds",
			Help:      "Time spent performing a single refresh tick's utimes call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.acquisitions, m.collisions, m.staleReclaims, m.compromises, m.refreshLatency)
	return m
}

func (m *Metrics) ObserveAcquired() {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues("acquired").Inc()
}

func (m *Metrics) ObserveCollision() {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues("collision").Inc()
	m.collisions.Inc()
}

func (m *Metrics) ObserveStaleReclaim() {
	if m == nil {
		return
	}
	m.staleReclaims.Inc()
}

func (m *Metrics) ObserveCompromise(kind string) {
	if m == nil {
		return
	}
	m.compromises.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRefreshLatencySeconds(seconds float64) {
	if m == nil {
		return
	}
	m.refreshLatency.Observe(seconds)
}
