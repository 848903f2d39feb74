// Copyright 2025 Certen Protocol
//
// Package metrics exposes the Prometheus counters and histograms spec §5's
// concurrency/resource model implies an operator needs: per-command
// counts and latencies, and RA outcome counts by flavor and result. No
// repo in the example pack exercises client_golang directly (it arrives
// only as a transitive dependency of cometbft's RPC server), so this
// package follows the library's own documented promauto idiom rather than
// a pack-internal precedent — see DESIGN.md for that justification.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric this daemon exports under a single
// *prometheus.Registry so cmd/lcpd can mount one /metrics handler over it
// without reaching for the global DefaultRegisterer.
type Registry struct {
	registry *prometheus.Registry

	CommandsTotal    *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	AttestationTotal *prometheus.CounterVec
	ActiveClients    prometheus.Gauge
	FrozenClients    prometheus.Gauge
}

// New constructs a Registry with every metric registered against a fresh
// prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		registry: reg,
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lcp",
			Name:      "commands_total",
			Help:      "Total ELC/outer-client commands processed, by command name and result.",
		}, []string{"command", "result"}),
		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lcp",
			Name:      "command_duration_seconds",
			Help:      "Command processing latency in seconds, by command name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		AttestationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lcp",
			Name:      "attestation_total",
			Help:      "Total remote-attestation attempts, by RA flavor and result.",
		}, []string{"ra_type", "result"}),
		ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lcp",
			Name:      "active_clients",
			Help:      "Number of outer LCP clients currently tracked and not frozen.",
		}),
		FrozenClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lcp",
			Name:      "frozen_clients",
			Help:      "Number of outer LCP clients currently frozen due to accepted misbehaviour.",
		}),
	}
}

// Gatherer exposes the underlying registry for the HTTP handler wiring in
// cmd/lcpd to mount with promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveCommand records one command's outcome and latency in seconds.
func (r *Registry) ObserveCommand(command, result string, seconds float64) {
	r.CommandsTotal.WithLabelValues(command, result).Inc()
	r.CommandDuration.WithLabelValues(command).Observe(seconds)
}

// ObserveAttestation records one RA attempt's flavor and outcome.
func (r *Registry) ObserveAttestation(raType, result string) {
	r.AttestationTotal.WithLabelValues(raType, result).Inc()
}
