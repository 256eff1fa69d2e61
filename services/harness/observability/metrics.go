// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the harness.
//
// # Description
//
// This package implements Prometheus metrics for monitoring the observation
// loop. Metrics include:
//   - Event counters (by event type)
//   - Failure counters (crashes by severity, ANRs)
//   - Coverage gauges (activities discovered, exploration ratio, velocity)
//   - Init-sequence step outcomes
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint on the daemon. Use with
// Prometheus + Grafana for dashboards and alerting on exploration progress
// and failure rates.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "smata"

// Subsystem for harness metrics
const harnessSubsystem = "harness"

// HarnessMetrics holds all Prometheus metrics for the observation loop.
//
// # Description
//
// Provides counters and gauges for monitoring exploration progress, failure
// rates, and initialization outcomes. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type HarnessMetrics struct {
	// EventsRecorded counts ingested input events by type.
	// Labels: type (tap, swipe, text_input, key_event, ...)
	EventsRecorded *prometheus.CounterVec

	// CrashesReported counts crash reports by assigned severity.
	// Labels: severity (critical, high, medium)
	CrashesReported *prometheus.CounterVec

	// ANRsReported counts ANR reports.
	ANRsReported prometheus.Counter

	// ObservationsIngested counts structured observations fed to the
	// recorder and coverage model.
	ObservationsIngested prometheus.Counter

	// InitSteps counts initialization steps by outcome.
	// Labels: outcome (completed, failed, skipped)
	InitSteps *prometheus.CounterVec

	// ExportFailures counts failed export or persistence attempts.
	// Labels: target (json, csv, journal, store)
	ExportFailures *prometheus.CounterVec

	// ActivitiesDiscovered tracks distinct activities seen this session.
	ActivitiesDiscovered prometheus.Gauge

	// ExplorationRatio tracks well-explored activities over total (0..1).
	ExplorationRatio prometheus.Gauge

	// CoverageVelocity tracks new activities per minute over the recent
	// sample window.
	CoverageVelocity prometheus.Gauge

	// FailureWindowEvents tracks how many events the correlation window
	// currently holds.
	FailureWindowEvents prometheus.Gauge

	// DistinctCrashSignatures tracks distinct crash signatures seen,
	// bounded by the correlator's signature cache.
	DistinctCrashSignatures prometheus.Gauge
}

// DefaultMetrics is the singleton instance of HarnessMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *HarnessMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics with the default registry.
// Should be called once at application startup.
//
// # Outputs
//
//   - *HarnessMetrics: The initialized metrics instance.
//
// # Examples
//
//	func main() {
//	    metrics := observability.InitMetrics()
//	    // ... wire into the session ...
//	}
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *HarnessMetrics {
	DefaultMetrics = &HarnessMetrics{
		EventsRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "events_recorded_total",
				Help:      "Total input events recorded by type",
			},
			[]string{"type"},
		),

		CrashesReported: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "crashes_reported_total",
				Help:      "Total crash reports by severity",
			},
			[]string{"severity"},
		),

		ANRsReported: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "anrs_reported_total",
				Help:      "Total ANR reports",
			},
		),

		ObservationsIngested: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "observations_ingested_total",
				Help:      "Total structured observations ingested",
			},
		),

		InitSteps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "init_steps_total",
				Help:      "Total initialization steps by outcome",
			},
			[]string{"outcome"},
		),

		ExportFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "export_failures_total",
				Help:      "Total failed export and persistence attempts by target",
			},
			[]string{"target"},
		),

		ActivitiesDiscovered: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "activities_discovered",
				Help:      "Distinct activities discovered this session",
			},
		),

		ExplorationRatio: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "exploration_ratio",
				Help:      "Well-explored activities over total activities (0..1)",
			},
		),

		CoverageVelocity: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "coverage_velocity_per_minute",
				Help:      "New activities discovered per minute over the recent window",
			},
		),

		FailureWindowEvents: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "failure_window_events",
				Help:      "Events currently held in the failure correlation window",
			},
		),

		DistinctCrashSignatures: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: harnessSubsystem,
				Name:      "distinct_crash_signatures",
				Help:      "Distinct crash signatures seen, bounded by the signature cache",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Step Outcomes
// =============================================================================

// StepOutcome represents a categorized init-step result for metrics labeling.
type StepOutcome string

const (
	// OutcomeCompleted indicates the step succeeded.
	OutcomeCompleted StepOutcome = "completed"

	// OutcomeFailed indicates a required step exhausted its retries.
	OutcomeFailed StepOutcome = "failed"

	// OutcomeSkipped indicates an optional step failed and was skipped.
	OutcomeSkipped StepOutcome = "skipped"
)

// =============================================================================
// Export Targets
// =============================================================================

// ExportTarget represents a persistence destination for metrics labeling.
type ExportTarget string

const (
	// TargetJSON is the JSON event export.
	TargetJSON ExportTarget = "json"

	// TargetCSV is the CSV event export.
	TargetCSV ExportTarget = "csv"

	// TargetJournal is the append-only event journal.
	TargetJournal ExportTarget = "journal"

	// TargetStore is the report store.
	TargetStore ExportTarget = "store"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordEvent records one ingested input event.
//
// # Inputs
//
//   - eventType: The event type (tap, swipe, ...).
func (m *HarnessMetrics) RecordEvent(eventType string) {
	m.EventsRecorded.WithLabelValues(eventType).Inc()
}

// RecordCrash records one crash report.
//
// # Inputs
//
//   - severity: The assigned severity (critical, high, medium).
func (m *HarnessMetrics) RecordCrash(severity string) {
	m.CrashesReported.WithLabelValues(severity).Inc()
}

// RecordANR records one ANR report.
func (m *HarnessMetrics) RecordANR() {
	m.ANRsReported.Inc()
}

// RecordObservation records one ingested structured observation.
func (m *HarnessMetrics) RecordObservation() {
	m.ObservationsIngested.Inc()
}

// RecordInitStep records one init-step outcome.
//
// # Inputs
//
//   - outcome: The step outcome.
func (m *HarnessMetrics) RecordInitStep(outcome StepOutcome) {
	m.InitSteps.WithLabelValues(string(outcome)).Inc()
}

// RecordExportFailure records one failed export or persistence attempt.
//
// # Inputs
//
//   - target: The destination that failed.
func (m *HarnessMetrics) RecordExportFailure(target ExportTarget) {
	m.ExportFailures.WithLabelValues(string(target)).Inc()
}

// UpdateCoverage refreshes the coverage gauges from a model summary.
//
// # Inputs
//
//   - activities: Distinct activities discovered.
//   - ratio: Exploration ratio in [0, 1].
//   - velocity: New activities per minute.
func (m *HarnessMetrics) UpdateCoverage(activities int, ratio, velocity float64) {
	m.ActivitiesDiscovered.Set(float64(activities))
	m.ExplorationRatio.Set(ratio)
	m.CoverageVelocity.Set(velocity)
}

// UpdateFailureWindow refreshes the correlation-window gauges.
//
// # Inputs
//
//   - windowEvents: Events currently in the window.
//   - distinctSignatures: Distinct crash signatures seen.
func (m *HarnessMetrics) UpdateFailureWindow(windowEvents, distinctSignatures int) {
	m.FailureWindowEvents.Set(float64(windowEvents))
	m.DistinctCrashSignatures.Set(float64(distinctSignatures))
}
