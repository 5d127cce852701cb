// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for auth operation metrics.
const (
	ResultSuccess     = "success"
	ResultRejected    = "rejected"
	ResultError       = "error"
	ResultUnavailable = "unavailable"
)

// Operation labels for auth operation metrics.
const (
	OpRegister        = "register"
	OpValidLogin      = "valid_login"
	OpCreateSession   = "create_session"
	OpResolveSession  = "resolve_session"
	OpDestroySession  = "destroy_session"
	OpResetToken      = "reset_token"
	OpUpdatePassword  = "update_password"
	OpPasswordUpgrade = "password_upgrade"
)

// OperationsTotal counts auth service operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeeper_auth_operations_total",
		Help: "Total number of authentication operations by result",
	},
	[]string{"operation", "result"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
}

// RecordOperation increments the operation counter.
func RecordOperation(operation, result string) {
	OperationsTotal.WithLabelValues(operation, result).Inc()
}

// resultFor maps an operation error to a result label.
func resultFor(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case IsStoreUnavailable(err):
		return ResultUnavailable
	default:
		return ResultError
	}
}
