// Package metrics exposes ledger activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "custody"

const (
	resultOK    = "ok"
	resultError = "error"
)

// Recorder owns the custody collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	pooled     prometheus.Gauge
}

// New builds a Recorder on a fresh registry that also carries the Go and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		pooled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vault_pooled_value",
			Help:      "Value currently pooled in the vault holder.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.operations,
		r.duration,
		r.pooled,
	)
	return r
}

// Observe records the outcome and latency of one operation started at start.
func (r *Recorder) Observe(op string, start time.Time, err error) {
	if r == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultError
	}
	r.operations.WithLabelValues(op, result).Inc()
	r.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetPooledValue publishes the vault's pooled value.
func (r *Recorder) SetPooledValue(v uint64) {
	if r == nil {
		return
	}
	r.pooled.Set(float64(v))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
