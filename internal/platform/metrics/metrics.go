// Package metrics holds the Prometheus metrics each frontend gateway exposes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a frontend gateway.
type Metrics struct {
	Logins            *prometheus.CounterVec
	Logouts           prometheus.Counter
	GuardDecisions    *prometheus.CounterVec
	RelayCaptures     *prometheus.CounterVec
	AuthorityDuration *prometheus.HistogramVec
}

// New creates and registers all gateway metrics on reg. Pass a fresh
// prometheus.NewRegistry in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_logins_total",
			Help: "Login attempts by outcome (success, bad_request, invalid_credentials, forbidden, unavailable, error).",
		}, []string{"outcome"}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_logouts_total",
			Help: "Completed logouts, including ones where Authority revocation failed.",
		}),
		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_guard_decisions_total",
			Help: "Route guard decisions by outcome (allowed, denied, exempt, login_redirect).",
		}, []string{"outcome"}),
		RelayCaptures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_relay_captures_total",
			Help: "Cross-origin token relay captures by outcome (captured, replayed, rejected, error).",
		}, []string{"outcome"}),
		AuthorityDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_authority_request_seconds",
			Help:    "Duration of calls to the Authority by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}
