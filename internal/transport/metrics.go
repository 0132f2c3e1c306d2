package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes recorded in wallet_client_refresh_total.
const (
	RefreshSuccess = "success"
	RefreshReused  = "reused"
	RefreshFailure = "failure"
	RefreshError   = "error"
)

// Metrics holds the client-side request collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_client_requests_total",
			Help: "HTTP requests sent to the wallet API, by method, route and status.",
		}, []string{"method", "path", "status"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_client_refresh_total",
			Help: "Access token refresh attempts, by result.",
		}, []string{"result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_client_request_duration_seconds",
			Help:    "Wallet API round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) observeRequest(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, status).Inc()
	m.duration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}
