// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package correlator turns raw crash and ANR notifications into reports
// correlated with the input events that preceded them.
//
// The correlator keeps a bounded sliding window of recent input events.
// When a failure arrives it snapshots the window, classifies severity from
// the exception class, and renders the trailing window entries into
// human-readable reproduction steps.
package correlator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/event"
	"github.com/Saher-Elsayed/SMATA/services/harness/history"
)

// defaultWindowCapacity bounds the sliding event window.
const defaultWindowCapacity = 50

// reproStepCount is how many trailing window entries become reproduction
// steps on a crash, and how many recent events an ANR report captures.
const reproStepCount = 10

// signatureCacheSize bounds the crash-signature LRU.
const signatureCacheSize = 512

// ReportSeverity classifies a crash report. Distinct from event severity:
// reports rank remediation urgency, events rank log noise.
type ReportSeverity string

const (
	SeverityCritical ReportSeverity = "critical"
	SeverityHigh     ReportSeverity = "high"
	SeverityMedium   ReportSeverity = "medium"
)

// severityRules is evaluated top to bottom against the exception class;
// the first rule with a matching substring wins.
var severityRules = []struct {
	needles  []string
	severity ReportSeverity
}{
	{
		needles:  []string{"OutOfMemoryError", "StackOverflowError", "SecurityException", "SQLiteException"},
		severity: SeverityCritical,
	},
	{
		needles:  []string{"NullPointerException", "IllegalStateException", "ConcurrentModificationException"},
		severity: SeverityHigh,
	},
}

// classifySeverity maps a failure to a report severity. Rules match on the
// exception class first; native crashes with no matching class are always
// critical; everything else is medium.
func classifySeverity(crashType, exceptionClass string) ReportSeverity {
	for _, rule := range severityRules {
		for _, needle := range rule.needles {
			if strings.Contains(exceptionClass, needle) {
				return rule.severity
			}
		}
	}
	if crashType == "native" {
		return SeverityCritical
	}
	return SeverityMedium
}

// CrashReport is an immutable correlation snapshot for one crash.
type CrashReport struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	CrashType      string         `json:"crash_type"`
	ExceptionClass string         `json:"exception_class"`
	Message        string         `json:"message"`
	StackTrace     string         `json:"stack_trace"`
	AppState       string         `json:"app_state,omitempty"`
	Severity       ReportSeverity `json:"severity"`
	Window         []event.Event  `json:"window"`
	ReproSteps     []string       `json:"repro_steps"`
	Reproducible   bool           `json:"reproducible"`
}

// ANRReport is an immutable correlation snapshot for one ANR.
type ANRReport struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Activity     string        `json:"activity"`
	Reason       string        `json:"reason"`
	CPUPercent   float64       `json:"cpu_percent,omitempty"`
	RecentEvents []event.Event `json:"recent_events"`
}

// Options configures a Correlator. The zero value works.
type Options struct {
	Logger *logging.Logger
	Clock  func() time.Time

	// WindowCapacity bounds the sliding event window;
	// defaultWindowCapacity when <= 0.
	WindowCapacity int
}

// Correlator is the failure-analysis state for one session.
type Correlator struct {
	mu         sync.Mutex
	logger     *logging.Logger
	now        func() time.Time
	window     *history.Ring[event.Event]
	crashes    []CrashReport
	anrs       []ANRReport
	crashSeq   int
	anrSeq     int
	signatures *lru.Cache[string, int]
}

// New creates an empty Correlator.
func New(opts Options) *Correlator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	capacity := opts.WindowCapacity
	if capacity <= 0 {
		capacity = defaultWindowCapacity
	}
	// Only errors on size <= 0, which the guard above rules out.
	signatures, _ := lru.New[string, int](signatureCacheSize)
	return &Correlator{
		logger:     logger.With("component", "correlator"),
		now:        now,
		window:     history.NewRing[event.Event](capacity),
		signatures: signatures,
	}
}

// UpdateWindow appends events to the sliding window, evicting the oldest
// entries once the window is full. Events are cloned on the way in so later
// caller mutation cannot reach a report snapshot.
func (c *Correlator) UpdateWindow(events []event.Event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range events {
		c.window.Push(e.Clone())
	}
}

// WindowSize returns the current number of events in the window.
func (c *Correlator) WindowSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.Len()
}

// ReportCrash builds, stores, and returns the report for one crash. The
// window snapshot, severity, and reproduction steps are all taken inside a
// single critical section so concurrent window updates cannot tear them.
func (c *Correlator) ReportCrash(crashType, exceptionClass, message, stackTrace, appState string) *CrashReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.crashSeq++
	report := CrashReport{
		ID:             fmt.Sprintf("CRASH-%04d", c.crashSeq),
		Timestamp:      c.now(),
		CrashType:      crashType,
		ExceptionClass: exceptionClass,
		Message:        message,
		StackTrace:     stackTrace,
		AppState:       appState,
		Severity:       classifySeverity(crashType, exceptionClass),
		Window:         event.CloneAll(c.window.Snapshot()),
		ReproSteps:     renderSteps(c.window.Tail(reproStepCount)),
	}
	report.Reproducible = len(report.ReproSteps) > 0
	c.crashes = append(c.crashes, report)

	sig := signature(exceptionClass, stackTrace)
	count, _ := c.signatures.Get(sig)
	c.signatures.Add(sig, count+1)

	c.logger.Warn("crash correlated",
		"crash_id", report.ID,
		"severity", string(report.Severity),
		"exception_class", exceptionClass,
		"repro_steps", len(report.ReproSteps),
	)
	return &report
}

// ReportANR builds, stores, and returns the report for one ANR. The report
// captures the trailing window entries rather than the full window.
func (c *Correlator) ReportANR(activity, reason string, cpuPercent float64) *ANRReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.anrSeq++
	report := ANRReport{
		ID:           fmt.Sprintf("ANR-%04d", c.anrSeq),
		Timestamp:    c.now(),
		Activity:     activity,
		Reason:       reason,
		CPUPercent:   cpuPercent,
		RecentEvents: event.CloneAll(c.window.Tail(reproStepCount)),
	}
	c.anrs = append(c.anrs, report)

	c.logger.Warn("anr correlated", "anr_id", report.ID, "activity", activity)
	return &report
}

// renderSteps turns window entries into reproduction steps, oldest first.
func renderSteps(events []event.Event) []string {
	if len(events) == 0 {
		return nil
	}
	steps := make([]string, 0, len(events))
	for i, e := range events {
		target := e.Detail("target", "unknown")
		steps = append(steps, fmt.Sprintf("Step %d: %s on %s (via %s)", i+1, e.Type, target, e.Source))
	}
	return steps
}

// signature keys a crash by exception class and top stack frame. Used only
// to count distinct failure modes; it never suppresses a report.
func signature(exceptionClass, stackTrace string) string {
	frame := ""
	for _, line := range strings.Split(stackTrace, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			frame = trimmed
			break
		}
	}
	return exceptionClass + "|" + frame
}

// CrashCount returns the number of crash reports this session.
func (c *Correlator) CrashCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.crashes)
}

// ANRCount returns the number of ANR reports this session.
func (c *Correlator) ANRCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.anrs)
}

// Crashes returns a copy of all crash reports in creation order.
func (c *Correlator) Crashes() []CrashReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CrashReport, len(c.crashes))
	copy(out, c.crashes)
	return out
}

// ANRs returns a copy of all ANR reports in creation order.
func (c *Correlator) ANRs() []ANRReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ANRReport, len(c.anrs))
	copy(out, c.anrs)
	return out
}

// CrashesBySeverity returns the crash reports with the given severity.
func (c *Correlator) CrashesBySeverity(sev ReportSeverity) []CrashReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CrashReport
	for _, r := range c.crashes {
		if r.Severity == sev {
			out = append(out, r)
		}
	}
	return out
}

// ReproducibleCrashes returns the crash reports with at least one
// reproduction step.
func (c *Correlator) ReproducibleCrashes() []CrashReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CrashReport
	for _, r := range c.crashes {
		if r.Reproducible {
			out = append(out, r)
		}
	}
	return out
}

// ReproducibilityRate returns the percentage of crashes with reproduction
// steps, 0 when no crashes were reported.
func (c *Correlator) ReproducibilityRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.crashes) == 0 {
		return 0
	}
	reproducible := 0
	for _, r := range c.crashes {
		if r.Reproducible {
			reproducible++
		}
	}
	return float64(reproducible) / float64(len(c.crashes)) * 100
}

// DistinctSignatures returns the number of distinct crash signatures seen,
// bounded by the signature cache size.
func (c *Correlator) DistinctSignatures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signatures.Len()
}

// Reset clears reports, the window, and the signature cache. Reports
// already handed out stay valid; they were copied on creation.
func (c *Correlator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.crashes = nil
	c.anrs = nil
	c.crashSeq = 0
	c.anrSeq = 0
	c.window.Clear()
	c.signatures.Purge()
	c.logger.Info("failure correlator reset")
}
