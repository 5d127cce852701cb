// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import "github.com/prometheus/client_golang/prometheus"

// GateDecisionsTotal counts gate decisions by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var GateDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeeper_gate_decisions_total",
		Help: "Total number of request gate decisions",
	},
	[]string{"decision"},
)

// RegisterMetrics registers access package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(GateDecisionsTotal)
}
