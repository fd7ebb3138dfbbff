// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// =============================================================================
// Prometheus Metrics for the Solve and Explain Flow
// =============================================================================

// Metrics holds the collectors for one registry. A nil *Metrics is valid
// and records nothing, so services can run without metrics in tests.
type Metrics struct {
	// solveAttempts counts evaluator attempts.
	// Labels: solver (local, remote), status (success, error)
	solveAttempts *prometheus.CounterVec

	// solveDuration measures evaluator latency.
	// Labels: solver
	solveDuration *prometheus.HistogramVec

	// explanations counts explanation outcomes.
	// Labels: outcome (generated, missing_credential, ...)
	explanations *prometheus.CounterVec

	// requests counts HTTP requests.
	// Labels: endpoint, status (HTTP status code)
	requests *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
//
// # Inputs
//
//   - reg: Target registry. Pass prometheus.NewRegistry() in tests; a
//     registry can only hold one set of these collectors.
//
// # Outputs
//
//   - *Metrics: Ready to record.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		solveAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentic_math",
			Subsystem: "solve",
			Name:      "attempts_total",
			Help:      "Solver attempts by solver and status",
		}, []string{"solver", "status"}),

		solveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentic_math",
			Subsystem: "solve",
			Name:      "duration_seconds",
			Help:      "Solver attempt latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"solver"}),

		explanations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentic_math",
			Name:      "explanations_total",
			Help:      "Explanation requests by outcome",
		}, []string{"outcome"}),

		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentic_math",
			Name:      "requests_total",
			Help:      "HTTP requests by endpoint and status",
		}, []string{"endpoint", "status"}),
	}
}

// RecordSolveAttempt records one evaluator attempt.
//
// Inputs:
//
//	solver - "local" or "remote".
//	err - The attempt's error; nil counts as success.
//	elapsed - Attempt duration.
func (m *Metrics) RecordSolveAttempt(solver string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.solveAttempts.WithLabelValues(solver, status).Inc()
	m.solveDuration.WithLabelValues(solver).Observe(elapsed.Seconds())
}

// RecordExplanation records an explanation outcome.
func (m *Metrics) RecordExplanation(outcome string) {
	if m == nil {
		return
	}
	m.explanations.WithLabelValues(outcome).Inc()
}

// RecordRequest records a served HTTP request.
func (m *Metrics) RecordRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, status).Inc()
}
