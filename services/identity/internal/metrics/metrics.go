package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Logins       *prometheus.CounterVec
	Refreshes    *prometheus.CounterVec
	ProfileCache *prometheus.CounterVec
}

// New registers the identity collectors on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_login_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_refresh_total",
			Help: "Refresh-token redemptions by outcome.",
		}, []string{"outcome"}),
		ProfileCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_profile_cache_total",
			Help: "Profile cache lookups by index key and result.",
		}, []string{"key", "result"}),
	}
}
