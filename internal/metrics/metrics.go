package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ddi_ipam"

// Metrics holds the collectors updated by the orchestrator.
type Metrics struct {
	Allocations    *prometheus.CounterVec
	Deallocations  *prometheus.CounterVec
	RangeFallbacks prometheus.Counter
	Exhaustions    prometheus.Counter
	Reservations   *prometheus.CounterVec
	Releases       prometheus.Counter
	Subnets        *prometheus.CounterVec
}

// New creates the collectors and registers them on r when r is not nil.
func New(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		Allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocations_total",
				Help:      "Counter of address allocations by strategy and result.",
			},
			[]string{"strategy", "result"},
		),
		Deallocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deallocations_total",
				Help:      "Counter of address deallocations by result.",
			},
			[]string{"result"},
		),
		RangeFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "range_fallbacks_total",
				Help:      "Counter of exhausted ranges skipped during allocation.",
			},
		),
		Exhaustions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subnet_exhaustions_total",
				Help:      "Counter of allocations failing because every range of the subnet was exhausted.",
			},
		),
		Reservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "member_reservations_total",
				Help:      "Counter of member reservation requests by member type and result.",
			},
			[]string{"type", "result"},
		),
		Releases: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "member_releases_total",
				Help:      "Counter of network views whose member reservations were released.",
			},
		),
		Subnets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subnet_operations_total",
				Help:      "Counter of subnet provisioning operations by operation and result.",
			},
			[]string{"operation", "result"},
		),
	}

	if r != nil {
		r.MustRegister(
			m.Allocations,
			m.Deallocations,
			m.RangeFallbacks,
			m.Exhaustions,
			m.Reservations,
			m.Releases,
			m.Subnets,
		)
	}
	return m
}

// Result labels an operation outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
