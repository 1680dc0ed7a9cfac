package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts requests by outcome. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridserve",
			Name:      "requests_total",
			Help:      "Requests seen by the middleware, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gridserve",
			Name:      "request_duration_seconds",
			Help:      "Time to resolve and stream a file, by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridserve",
			Name:      "response_bytes_total",
			Help:      "File bytes written to clients.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.bytes)
	return m
}

func (m *Metrics) passedThrough() {
	if m == nil {
		return
	}
	m.requests.WithLabelValues("passthrough").Inc()
}

func (m *Metrics) observe(outcome string, start time.Time, written int64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	m.bytes.Add(float64(written))
}
