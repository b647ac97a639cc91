// Package metrics exposes the consensus core's Prometheus instrumentation on
// a dedicated registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the core updates. One instance is shared
// by the engine, the cache wrapper, and the HTTP layer.
type Metrics struct {
	Registry *prometheus.Registry

	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	Signals         *prometheus.CounterVec
	TradableSignals prometheus.Counter
	RejectedInputs  *prometheus.CounterVec
}

// New builds and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aiquorum",
			Name:      "provider_calls_total",
			Help:      "Provider adapter calls by provider id and typed status.",
		}, []string{"provider", "status"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aiquorum",
			Name:      "provider_latency_seconds",
			Help:      "Provider adapter call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"provider"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aiquorum",
			Name:      "signal_cache_hits_total",
			Help:      "Signal cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aiquorum",
			Name:      "signal_cache_misses_total",
			Help:      "Signal cache misses.",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aiquorum",
			Name:      "consensus_signals_total",
			Help:      "Consensus signals produced, by direction.",
		}, []string{"direction"}),
		TradableSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aiquorum",
			Name:      "tradable_signals_total",
			Help:      "Signals that passed the trade gate.",
		}),
		RejectedInputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aiquorum",
			Name:      "rejected_requests_total",
			Help:      "Signal requests rejected at validation, by error code.",
		}, []string{"code"}),
	}

	m.Registry.MustRegister(
		m.ProviderCalls,
		m.ProviderLatency,
		m.CacheHits,
		m.CacheMisses,
		m.Signals,
		m.TradableSignals,
		m.RejectedInputs,
	)
	return m
}
