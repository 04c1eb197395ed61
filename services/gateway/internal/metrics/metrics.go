package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EdgeRequests     *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EdgeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_edge_requests_total",
			Help: "Inbound requests by edge verification outcome.",
		}, []string{"outcome"}),
		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_duration_seconds",
			Help:    "Time spent proxying to each upstream.",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream"}),
	}
}
