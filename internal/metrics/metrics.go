// Package metrics exposes device-side sync metrics for Prometheus. A nil
// *Sync is valid and records nothing, so components can run without it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcus/rollcall/internal/models"
)

const namespace = "rollcall"

// Pass results used as the "result" label.
const (
	PassOK        = "ok"
	PassPartial   = "partial"
	PassTransport = "transport"
	PassAuth      = "auth"
	PassStore     = "store"
	PassOffline   = "offline"
)

// Sync holds the sync engine collectors on a private registry.
type Sync struct {
	Registry *prometheus.Registry

	passes       *prometheus.CounterVec
	records      *prometheus.CounterVec
	passDuration prometheus.Histogram
	pending      prometheus.Gauge
	failed       prometheus.Gauge
	online       prometheus.Gauge
	lastSync     prometheus.Gauge
}

// NewSync creates and registers the collectors.
func NewSync() *Sync {
	m := &Sync{
		Registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Reconciliation passes by result.",
		}, []string{"result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Attendance records processed by outcome.",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_records",
			Help:      "Attendance records not yet acknowledged by the server.",
		}),
		failed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "failed_records",
			Help:      "Attendance records needing attention.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the server is reachable.",
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last pass without transport or auth failure.",
		}),
	}
	m.Registry.MustRegister(m.passes, m.records, m.passDuration, m.pending, m.failed, m.online, m.lastSync)
	return m
}

// ObservePass counts a finished pass.
func (m *Sync) ObservePass(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(result).Inc()
	m.passDuration.Observe(d.Seconds())
}

// AddRecords counts n records with outcome.
func (m *Sync) AddRecords(outcome models.SyncOutcome, n int) {
	if m == nil || n == 0 {
		return
	}
	m.records.WithLabelValues(string(outcome)).Add(float64(n))
}

// SetQueue publishes the queue gauges.
func (m *Sync) SetQueue(pending, failed int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.failed.Set(float64(failed))
}

func (m *Sync) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

func (m *Sync) SetLastSync(t time.Time) {
	if m == nil {
		return
	}
	m.lastSync.Set(float64(t.Unix()))
}

// Handler serves the registry in the Prometheus text format.
func (m *Sync) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
