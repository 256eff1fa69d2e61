// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package recorder implements the output-side state recorder: activity
// transitions, crash and ANR occurrences, and performance samples.
//
// The recorder is deliberately dumb. It assigns crash_NNNN/anr_NNNN ids,
// counts, and summarizes. Severity classification and reproduction
// analysis belong to the failure correlator, which works from the event
// window, not from this store.
package recorder

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/event"
)

// sinkTimeout bounds a single perf-sample write so a stalled sink cannot
// stall the observation loop.
const sinkTimeout = 2 * time.Second

// PerfSample is one timestamped resource snapshot from the device.
type PerfSample struct {
	Timestamp      time.Time `json:"timestamp"`
	MemoryMB       float64   `json:"memory_mb"`
	CPUPercent     float64   `json:"cpu_percent"`
	FPS            float64   `json:"fps"`
	BatteryPercent float64   `json:"battery_percent"`
}

// PerfSummary aggregates all samples recorded so far.
type PerfSummary struct {
	Samples        int     `json:"samples"`
	MeanMemoryMB   float64 `json:"mean_memory_mb"`
	MaxMemoryMB    float64 `json:"max_memory_mb"`
	MeanCPUPercent float64 `json:"mean_cpu_percent"`
	MaxCPUPercent  float64 `json:"max_cpu_percent"`
}

// Summary is the recorder's aggregate view of a session.
type Summary struct {
	Transitions        int         `json:"transitions"`
	Crashes            int         `json:"crashes"`
	ANRs               int         `json:"anrs"`
	DistinctActivities int         `json:"distinct_activities"`
	Perf               PerfSummary `json:"perf"`
}

// Transition is one recorded activity/state change.
type Transition struct {
	Timestamp time.Time `json:"timestamp"`
	Activity  string    `json:"activity"`
	State     string    `json:"state"`
}

// PerfSink receives performance samples as they are recorded, typically a
// time-series database writer. Implementations must respect the context
// deadline.
type PerfSink interface {
	WriteSample(ctx context.Context, s PerfSample) error
}

// Options configures a Recorder. The zero value works: default logger,
// wall clock, no perf sink.
type Options struct {
	Logger *logging.Logger
	Clock  func() time.Time

	// Sink, when set, receives every perf sample after it is stored.
	// Write failures are logged and otherwise ignored.
	Sink PerfSink
}

// Recorder is the append-only store of output observations.
type Recorder struct {
	mu          sync.Mutex
	logger      *logging.Logger
	now         func() time.Time
	sink        PerfSink
	nextID      uint64
	events      []event.Event
	transitions []Transition
	activities  map[string]struct{}
	perf        []PerfSample
	crashCount  int
	anrCount    int
}

// New creates an empty Recorder.
func New(opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		logger:     logger.With("component", "recorder"),
		now:        now,
		sink:       opts.Sink,
		activities: make(map[string]struct{}),
	}
}

// RecordTransition appends a state-change event and a transition-history
// entry. The hierarchy snapshot is optional; pass "" when unavailable.
func (r *Recorder) RecordTransition(activity, state, hierarchy string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now()
	details := map[string]string{"activity": activity, "state": state}
	if hierarchy != "" {
		details["hierarchy"] = hierarchy
	}
	r.appendLocked(ts, event.TypeStateChange, event.SeverityInfo, details)

	r.transitions = append(r.transitions, Transition{Timestamp: ts, Activity: activity, State: state})
	if activity != "" {
		r.activities[activity] = struct{}{}
	}
}

// RecordCrash appends a critical-severity crash event and returns the
// assigned crash_NNNN id. triggeringEventID is the input-event ordinal
// suspected of triggering the crash; pass 0 when unknown.
func (r *Recorder) RecordCrash(crashType, stackTrace string, triggeringEventID uint64) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.crashCount++
	id := fmt.Sprintf("crash_%04d", r.crashCount)

	details := map[string]string{
		"crash_id":    id,
		"crash_type":  crashType,
		"stack_trace": stackTrace,
	}
	if triggeringEventID != 0 {
		details["triggering_event_id"] = strconv.FormatUint(triggeringEventID, 10)
	}
	r.appendLocked(r.now(), event.TypeCrash, event.SeverityCritical, details)

	r.logger.Warn("crash recorded", "crash_id", id, "crash_type", crashType)
	return id
}

// RecordANR appends an error-severity ANR event and returns the assigned
// anr_NNNN id.
func (r *Recorder) RecordANR(description string, triggeringEventID uint64) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.anrCount++
	id := fmt.Sprintf("anr_%04d", r.anrCount)

	details := map[string]string{
		"anr_id":      id,
		"description": description,
	}
	if triggeringEventID != 0 {
		details["triggering_event_id"] = strconv.FormatUint(triggeringEventID, 10)
	}
	r.appendLocked(r.now(), event.TypeANR, event.SeverityError, details)

	r.logger.Warn("anr recorded", "anr_id", id)
	return id
}

// RecordPerfSample stores a resource snapshot and forwards it to the
// configured sink. The sink write is bounded by sinkTimeout; a failure is
// logged and never affects the stored sample.
func (r *Recorder) RecordPerfSample(ctx context.Context, s PerfSample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = r.now()
	}

	r.mu.Lock()
	r.perf = append(r.perf, s)
	sink := r.sink
	r.mu.Unlock()

	if sink == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := sink.WriteSample(writeCtx, s); err != nil {
		r.logger.Warn("perf sink write failed", "error", err.Error())
	}
}

func (r *Recorder) appendLocked(ts time.Time, eventType string, sev event.Severity, details map[string]string) {
	r.nextID++
	r.events = append(r.events, event.Event{
		Timestamp: ts,
		ID:        r.nextID,
		Source:    "state_recorder",
		Type:      eventType,
		Details:   details,
		Severity:  sev,
	})
}

// CrashCount returns the number of crashes recorded this session.
func (r *Recorder) CrashCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.crashCount
}

// ANRCount returns the number of ANRs recorded this session.
func (r *Recorder) ANRCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.anrCount
}

// ActivitiesVisited returns the number of distinct activities seen in
// transitions.
func (r *Recorder) ActivitiesVisited() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activities)
}

// TransitionCount returns the total number of recorded transitions.
func (r *Recorder) TransitionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transitions)
}

// Transitions returns a copy of the transition history in record order.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}

// Events returns copies of all recorded output events.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return event.CloneAll(r.events)
}

// PerfSummary aggregates mean and max memory/CPU over all samples. With no
// samples every field is zero.
func (r *Recorder) PerfSummary() PerfSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perfSummaryLocked()
}

func (r *Recorder) perfSummaryLocked() PerfSummary {
	sum := PerfSummary{Samples: len(r.perf)}
	if sum.Samples == 0 {
		return sum
	}

	var memTotal, cpuTotal float64
	for _, s := range r.perf {
		memTotal += s.MemoryMB
		cpuTotal += s.CPUPercent
		if s.MemoryMB > sum.MaxMemoryMB {
			sum.MaxMemoryMB = s.MemoryMB
		}
		if s.CPUPercent > sum.MaxCPUPercent {
			sum.MaxCPUPercent = s.CPUPercent
		}
	}
	sum.MeanMemoryMB = memTotal / float64(sum.Samples)
	sum.MeanCPUPercent = cpuTotal / float64(sum.Samples)
	return sum
}

// Summary returns the aggregate session view.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{
		Transitions:        len(r.transitions),
		Crashes:            r.crashCount,
		ANRs:               r.anrCount,
		DistinctActivities: len(r.activities),
		Perf:               r.perfSummaryLocked(),
	}
}

// Reset clears all counters and history. The perf sink stays attached.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID = 0
	r.events = nil
	r.transitions = nil
	r.activities = make(map[string]struct{})
	r.perf = nil
	r.crashCount = 0
	r.anrCount = 0
	r.logger.Info("state recorder reset")
}
