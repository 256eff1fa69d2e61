// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ============================================================================
// Test Helper: Create isolated metrics for testing
// ============================================================================

// newTestMetrics creates a HarnessMetrics instance with a custom registry.
// This avoids conflicts with the global Prometheus registry and allows
// parallel testing.
func newTestMetrics(t *testing.T) *HarnessMetrics {
	t.Helper()

	reg := prometheus.NewRegistry()

	eventsRecorded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "events_recorded_total",
			Help:      "Total input events recorded by type",
		},
		[]string{"type"},
	)

	crashesReported := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "crashes_reported_total",
			Help:      "Total crash reports by severity",
		},
		[]string{"severity"},
	)

	anrsReported := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "anrs_reported_total",
			Help:      "Total ANR reports",
		},
	)

	observationsIngested := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "observations_ingested_total",
			Help:      "Total structured observations ingested",
		},
	)

	initSteps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "init_steps_total",
			Help:      "Total initialization steps by outcome",
		},
		[]string{"outcome"},
	)

	exportFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "export_failures_total",
			Help:      "Total failed export and persistence attempts by target",
		},
		[]string{"target"},
	)

	activitiesDiscovered := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "activities_discovered",
			Help:      "Distinct activities discovered this session",
		},
	)

	explorationRatio := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "exploration_ratio",
			Help:      "Well-explored activities over total activities (0..1)",
		},
	)

	coverageVelocity := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "coverage_velocity_per_minute",
			Help:      "New activities discovered per minute over the recent window",
		},
	)

	failureWindowEvents := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "failure_window_events",
			Help:      "Events currently held in the failure correlation window",
		},
	)

	distinctCrashSignatures := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: harnessSubsystem,
			Name:      "distinct_crash_signatures",
			Help:      "Distinct crash signatures seen, bounded by the signature cache",
		},
	)

	// Register all metrics with the test registry
	reg.MustRegister(
		eventsRecorded,
		crashesReported,
		anrsReported,
		observationsIngested,
		initSteps,
		exportFailures,
		activitiesDiscovered,
		explorationRatio,
		coverageVelocity,
		failureWindowEvents,
		distinctCrashSignatures,
	)

	return &HarnessMetrics{
		EventsRecorded:          eventsRecorded,
		CrashesReported:         crashesReported,
		ANRsReported:            anrsReported,
		ObservationsIngested:    observationsIngested,
		InitSteps:               initSteps,
		ExportFailures:          exportFailures,
		ActivitiesDiscovered:    activitiesDiscovered,
		ExplorationRatio:        explorationRatio,
		CoverageVelocity:        coverageVelocity,
		FailureWindowEvents:     failureWindowEvents,
		DistinctCrashSignatures: distinctCrashSignatures,
	}
}

// ============================================================================
// InitMetrics Tests
// ============================================================================

// Note: InitMetrics uses promauto which registers with the default Prometheus
// registry. This test must only run once per test binary execution since
// duplicate registration will panic.
var initMetricsTestOnce bool

func TestInitMetrics(t *testing.T) {
	if initMetricsTestOnce {
		t.Skip("InitMetrics can only be called once per test run (promauto restriction)")
	}
	initMetricsTestOnce = true

	result := InitMetrics()

	if result == nil {
		t.Fatal("InitMetrics() returned nil")
	}
	if DefaultMetrics == nil {
		t.Fatal("DefaultMetrics should be set after InitMetrics()")
	}
	if DefaultMetrics != result {
		t.Error("DefaultMetrics should equal the returned value")
	}

	if result.EventsRecorded == nil {
		t.Error("EventsRecorded should not be nil")
	}
	if result.CrashesReported == nil {
		t.Error("CrashesReported should not be nil")
	}
	if result.ANRsReported == nil {
		t.Error("ANRsReported should not be nil")
	}
	if result.ObservationsIngested == nil {
		t.Error("ObservationsIngested should not be nil")
	}
	if result.InitSteps == nil {
		t.Error("InitSteps should not be nil")
	}
	if result.ExportFailures == nil {
		t.Error("ExportFailures should not be nil")
	}
	if result.ActivitiesDiscovered == nil {
		t.Error("ActivitiesDiscovered should not be nil")
	}
	if result.ExplorationRatio == nil {
		t.Error("ExplorationRatio should not be nil")
	}
	if result.CoverageVelocity == nil {
		t.Error("CoverageVelocity should not be nil")
	}
	if result.FailureWindowEvents == nil {
		t.Error("FailureWindowEvents should not be nil")
	}
	if result.DistinctCrashSignatures == nil {
		t.Error("DistinctCrashSignatures should not be nil")
	}

	// Verify metrics can be used
	result.RecordEvent("tap")
	result.RecordCrash("critical")
	result.RecordANR()
	result.RecordObservation()
	result.RecordInitStep(OutcomeCompleted)
	result.UpdateCoverage(5, 0.4, 1.2)
}

// ============================================================================
// Constants Tests
// ============================================================================

func TestConstants(t *testing.T) {
	if metricsNamespace != "smata" {
		t.Errorf("metricsNamespace = %q, want %q", metricsNamespace, "smata")
	}
	if harnessSubsystem != "harness" {
		t.Errorf("harnessSubsystem = %q, want %q", harnessSubsystem, "harness")
	}
}

func TestStepOutcomeConstants(t *testing.T) {
	tests := []struct {
		outcome StepOutcome
		want    string
	}{
		{OutcomeCompleted, "completed"},
		{OutcomeFailed, "failed"},
		{OutcomeSkipped, "skipped"},
	}

	for _, tt := range tests {
		if string(tt.outcome) != tt.want {
			t.Errorf("StepOutcome = %q, want %q", tt.outcome, tt.want)
		}
	}
}

func TestExportTargetConstants(t *testing.T) {
	tests := []struct {
		target ExportTarget
		want   string
	}{
		{TargetJSON, "json"},
		{TargetCSV, "csv"},
		{TargetJournal, "journal"},
		{TargetStore, "store"},
	}

	for _, tt := range tests {
		if string(tt.target) != tt.want {
			t.Errorf("ExportTarget = %q, want %q", tt.target, tt.want)
		}
	}
}

// ============================================================================
// Counter Tests
// ============================================================================

func TestHarnessMetrics_RecordEvent(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordEvent("tap")
	m.RecordEvent("tap")
	m.RecordEvent("swipe")

	tapVal := testutil.ToFloat64(m.EventsRecorded.WithLabelValues("tap"))
	if tapVal != 2 {
		t.Errorf("EventsRecorded[tap] = %f, want 2", tapVal)
	}

	swipeVal := testutil.ToFloat64(m.EventsRecorded.WithLabelValues("swipe"))
	if swipeVal != 1 {
		t.Errorf("EventsRecorded[swipe] = %f, want 1", swipeVal)
	}
}

func TestHarnessMetrics_RecordCrash(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCrash("critical")
	m.RecordCrash("critical")
	m.RecordCrash("medium")

	criticalVal := testutil.ToFloat64(m.CrashesReported.WithLabelValues("critical"))
	if criticalVal != 2 {
		t.Errorf("CrashesReported[critical] = %f, want 2", criticalVal)
	}

	mediumVal := testutil.ToFloat64(m.CrashesReported.WithLabelValues("medium"))
	if mediumVal != 1 {
		t.Errorf("CrashesReported[medium] = %f, want 1", mediumVal)
	}
}

func TestHarnessMetrics_RecordANR(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordANR()
	m.RecordANR()

	val := testutil.ToFloat64(m.ANRsReported)
	if val != 2 {
		t.Errorf("ANRsReported = %f, want 2", val)
	}
}

func TestHarnessMetrics_RecordObservation(t *testing.T) {
	m := newTestMetrics(t)

	for i := 0; i < 5; i++ {
		m.RecordObservation()
	}

	val := testutil.ToFloat64(m.ObservationsIngested)
	if val != 5 {
		t.Errorf("ObservationsIngested = %f, want 5", val)
	}
}

func TestHarnessMetrics_RecordInitStep(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordInitStep(OutcomeCompleted)
	m.RecordInitStep(OutcomeCompleted)
	m.RecordInitStep(OutcomeSkipped)
	m.RecordInitStep(OutcomeFailed)

	completedVal := testutil.ToFloat64(m.InitSteps.WithLabelValues("completed"))
	if completedVal != 2 {
		t.Errorf("InitSteps[completed] = %f, want 2", completedVal)
	}

	skippedVal := testutil.ToFloat64(m.InitSteps.WithLabelValues("skipped"))
	if skippedVal != 1 {
		t.Errorf("InitSteps[skipped] = %f, want 1", skippedVal)
	}

	failedVal := testutil.ToFloat64(m.InitSteps.WithLabelValues("failed"))
	if failedVal != 1 {
		t.Errorf("InitSteps[failed] = %f, want 1", failedVal)
	}
}

func TestHarnessMetrics_RecordExportFailure(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordExportFailure(TargetJournal)
	m.RecordExportFailure(TargetJournal)
	m.RecordExportFailure(TargetStore)

	journalVal := testutil.ToFloat64(m.ExportFailures.WithLabelValues("journal"))
	if journalVal != 2 {
		t.Errorf("ExportFailures[journal] = %f, want 2", journalVal)
	}

	storeVal := testutil.ToFloat64(m.ExportFailures.WithLabelValues("store"))
	if storeVal != 1 {
		t.Errorf("ExportFailures[store] = %f, want 1", storeVal)
	}
}

// ============================================================================
// Gauge Tests
// ============================================================================

func TestHarnessMetrics_UpdateCoverage(t *testing.T) {
	m := newTestMetrics(t)

	m.UpdateCoverage(7, 0.43, 2.5)

	if val := testutil.ToFloat64(m.ActivitiesDiscovered); val != 7 {
		t.Errorf("ActivitiesDiscovered = %f, want 7", val)
	}
	if val := testutil.ToFloat64(m.ExplorationRatio); val != 0.43 {
		t.Errorf("ExplorationRatio = %f, want 0.43", val)
	}
	if val := testutil.ToFloat64(m.CoverageVelocity); val != 2.5 {
		t.Errorf("CoverageVelocity = %f, want 2.5", val)
	}
}

func TestHarnessMetrics_UpdateCoverage_Overwrites(t *testing.T) {
	m := newTestMetrics(t)

	m.UpdateCoverage(3, 0.0, 3.0)
	m.UpdateCoverage(12, 0.5, 0.8)

	if val := testutil.ToFloat64(m.ActivitiesDiscovered); val != 12 {
		t.Errorf("ActivitiesDiscovered = %f, want 12", val)
	}
	if val := testutil.ToFloat64(m.ExplorationRatio); val != 0.5 {
		t.Errorf("ExplorationRatio = %f, want 0.5", val)
	}
}

func TestHarnessMetrics_UpdateFailureWindow(t *testing.T) {
	m := newTestMetrics(t)

	m.UpdateFailureWindow(50, 4)

	if val := testutil.ToFloat64(m.FailureWindowEvents); val != 50 {
		t.Errorf("FailureWindowEvents = %f, want 50", val)
	}
	if val := testutil.ToFloat64(m.DistinctCrashSignatures); val != 4 {
		t.Errorf("DistinctCrashSignatures = %f, want 4", val)
	}
}

// ============================================================================
// Scenario Tests
// ============================================================================

func TestHarnessMetrics_ObservationLoopScenario(t *testing.T) {
	m := newTestMetrics(t)

	// Simulate one exploration burst ending in a crash.
	m.RecordInitStep(OutcomeCompleted)
	m.RecordInitStep(OutcomeCompleted)
	for i := 0; i < 10; i++ {
		m.RecordEvent("tap")
		m.RecordObservation()
	}
	m.RecordEvent("swipe")
	m.UpdateCoverage(4, 0.25, 1.5)
	m.RecordCrash("high")
	m.UpdateFailureWindow(11, 1)

	if val := testutil.ToFloat64(m.EventsRecorded.WithLabelValues("tap")); val != 10 {
		t.Errorf("EventsRecorded[tap] = %f, want 10", val)
	}
	if val := testutil.ToFloat64(m.CrashesReported.WithLabelValues("high")); val != 1 {
		t.Errorf("CrashesReported[high] = %f, want 1", val)
	}
	if val := testutil.ToFloat64(m.FailureWindowEvents); val != 11 {
		t.Errorf("FailureWindowEvents = %f, want 11", val)
	}
}

// ============================================================================
// Concurrent Safety Tests
// ============================================================================

func TestHarnessMetrics_ConcurrentSafety(t *testing.T) {
	m := newTestMetrics(t)

	done := make(chan bool, 80)

	for i := 0; i < 20; i++ {
		go func() {
			m.RecordEvent("tap")
			done <- true
		}()
	}

	for i := 0; i < 20; i++ {
		go func() {
			m.RecordCrash("medium")
			done <- true
		}()
	}

	for i := 0; i < 20; i++ {
		go func() {
			m.RecordObservation()
			m.RecordANR()
			done <- true
		}()
	}

	for i := 0; i < 20; i++ {
		go func() {
			m.UpdateCoverage(5, 0.5, 1.0)
			m.UpdateFailureWindow(10, 2)
			done <- true
		}()
	}

	for i := 0; i < 80; i++ {
		<-done
	}

	if val := testutil.ToFloat64(m.EventsRecorded.WithLabelValues("tap")); val != 20 {
		t.Errorf("EventsRecorded[tap] = %f, want 20", val)
	}
	if val := testutil.ToFloat64(m.CrashesReported.WithLabelValues("medium")); val != 20 {
		t.Errorf("CrashesReported[medium] = %f, want 20", val)
	}
	if val := testutil.ToFloat64(m.ANRsReported); val != 20 {
		t.Errorf("ANRsReported = %f, want 20", val)
	}
}
