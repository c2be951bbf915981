// Package lockmetrics exports datasetlock events as Prometheus and
// OpenTelemetry metrics. Both exporters are datasetlock.Observer
// implementations attached with Lock.WithObserver.
package lockmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/christophcemper/datasetlock"
)

const namespace = "datasetlock"

// PrometheusObserver records lock events into Prometheus collectors.
// Labels: lock (lock name), type (ReadLock, WriteLock).
type PrometheusObserver struct {
	acquisitions *prometheus.CounterVec
	contentions  *prometheus.CounterVec
	releases     *prometheus.CounterVec
	waitSeconds  *prometheus.HistogramVec
	holdSeconds  *prometheus.HistogramVec
	held         *prometheus.GaugeVec
}

var _ datasetlock.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	buckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

	return &PrometheusObserver{
		acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Outermost lock acquisitions",
		}, []string{"lock", "type"}),
		contentions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contentions_total",
			Help:      "Acquisitions that had to wait for another goroutine",
		}, []string{"lock", "type"}),
		releases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Outermost lock releases",
		}, []string{"lock", "type"}),
		waitSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a lock",
			Buckets:   buckets,
		}, []string{"lock", "type"}),
		holdSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hold_seconds",
			Help:      "Time a lock was held, outermost acquisition to release",
			Buckets:   buckets,
		}, []string{"lock", "type"}),
		held: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "held",
			Help:      "Current reader count or writer depth",
		}, []string{"lock", "type"}),
	}
}

func (p *PrometheusObserver) Acquired(ev datasetlock.Event) {
	p.setHeld(ev)
	if !ev.Outermost() {
		return
	}
	typ := ev.Type.String()
	p.acquisitions.WithLabelValues(ev.Lock, typ).Inc()
	if ev.Contended {
		p.contentions.WithLabelValues(ev.Lock, typ).Inc()
	}
	p.waitSeconds.WithLabelValues(ev.Lock, typ).Observe(ev.Wait.Seconds())
}

func (p *PrometheusObserver) Released(ev datasetlock.Event) {
	p.setHeld(ev)
	if !ev.Outermost() {
		return
	}
	typ := ev.Type.String()
	p.releases.WithLabelValues(ev.Lock, typ).Inc()
	p.holdSeconds.WithLabelValues(ev.Lock, typ).Observe(ev.Held.Seconds())
}

func (p *PrometheusObserver) setHeld(ev datasetlock.Event) {
	p.held.WithLabelValues(ev.Lock, datasetlock.ReadLock.String()).Set(float64(ev.Readers))
	p.held.WithLabelValues(ev.Lock, datasetlock.WriteLock.String()).Set(float64(ev.Writers))
}

// Acquisitions returns the acquisition counter for a lock and type, for
// diagnostics.
func (p *PrometheusObserver) Acquisitions(lock string, typ datasetlock.LockType) prometheus.Counter {
	return p.acquisitions.WithLabelValues(lock, typ.String())
}

// Contentions returns the contention counter for a lock and type.
func (p *PrometheusObserver) Contentions(lock string, typ datasetlock.LockType) prometheus.Counter {
	return p.contentions.WithLabelValues(lock, typ.String())
}

// Held returns the gauge holding the current reader count or writer depth.
func (p *PrometheusObserver) Held(lock string, typ datasetlock.LockType) prometheus.Gauge {
	return p.held.WithLabelValues(lock, typ.String())
}

