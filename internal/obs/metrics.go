// Package obs exposes process metrics for the authorization engine.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors the engine reports into. A single instance is
// created at startup and handed to the services that need it; a nil *Metrics
// is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	registry *prometheus.Registry

	Decisions      *prometheus.CounterVec
	Evaluations    prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	LoginFailures  prometheus.Counter
	Lockouts       prometheus.Counter
	ForcedLogouts  prometheus.Counter
	ActiveSessions prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Authorization decisions by outcome reason.",
		}, []string{"reason"}),
		Evaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "authz",
			Name:      "evaluations_total",
			Help:      "Full permission evaluations (cache misses included).",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "authz",
			Name:      "decision_cache_hits_total",
			Help:      "Decision cache lookups served from cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "authz",
			Name:      "decision_cache_misses_total",
			Help:      "Decision cache lookups that fell through to evaluation.",
		}),
		LoginFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "session",
			Name:      "login_failures_total",
			Help:      "Failed credential checks.",
		}),
		Lockouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "session",
			Name:      "lockouts_total",
			Help:      "Identifiers locked out after repeated failures.",
		}),
		ForcedLogouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "canopy",
			Subsystem: "session",
			Name:      "forced_logouts_total",
			Help:      "Sessions terminated by revalidation or administrative action.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "canopy",
			Subsystem: "session",
			Name:      "active_sessions",
			Help:      "Sessions currently in the authenticated state.",
		}),
	}
}

// Handler returns the scrape endpoint for this metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Decision(reason string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncEvaluations() {
	if m == nil {
		return
	}
	m.Evaluations.Inc()
}

func (m *Metrics) IncCacheHits() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) IncCacheMisses() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) IncLoginFailures() {
	if m == nil {
		return
	}
	m.LoginFailures.Inc()
}

func (m *Metrics) IncLockouts() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *Metrics) IncForcedLogouts() {
	if m == nil {
		return
	}
	m.ForcedLogouts.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
