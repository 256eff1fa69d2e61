// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package coverage maintains the exploration model: which activities have
// been visited, how thoroughly each was exercised, and which strategy the
// driver should pursue next.
package coverage

import (
	"sort"
	"sync"
	"time"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/history"
)

// Exploration strategies returned by Recommend.
const (
	StrategyBroad    = "broad-exploration"
	StrategyTargeted = "targeted-exploration"
)

// Exploration thresholds. An activity is well explored once it has been
// visited at least minVisits times and at least minActions distinct
// elements were interacted with on it.
const (
	minVisits  = 3
	minActions = 5
)

// velocityWindow is the number of trailing coverage samples considered when
// computing coverage velocity.
const velocityWindow = 5

// defaultSampleCapacity bounds the coverage-sample history.
const defaultSampleCapacity = 256

// activityState is the per-activity exploration record.
type activityState struct {
	visits    int
	actions   map[string]struct{}
	elements  map[string]struct{}
	timeSpent time.Duration
	firstSeen time.Time
	lastVisit time.Time
}

// edge identifies a directed screen transition.
type edge struct {
	from string
	to   string
}

// coverageSample is one timestamped coverage reading, consumed by velocity.
type coverageSample struct {
	ts      time.Time
	percent float64
}

// Recommendation is the driver-facing view of the model.
type Recommendation struct {
	Strategy         string   `json:"strategy"`
	Underexplored    []string `json:"underexplored"`
	ExplorationRatio float64  `json:"exploration_ratio"`
	CoverageVelocity float64  `json:"coverage_velocity"`
	TotalActivities  int      `json:"total_activities"`
}

// Options configures a Model. The zero value works.
type Options struct {
	Logger *logging.Logger
	Clock  func() time.Time

	// SampleCapacity bounds the coverage-sample history;
	// defaultSampleCapacity when <= 0.
	SampleCapacity int
}

// Model is the mutable exploration state for one session.
type Model struct {
	mu         sync.Mutex
	logger     *logging.Logger
	now        func() time.Time
	activities map[string]*activityState
	edges      map[edge]int
	current    string
	lastSeen   time.Time
	firstSeen  time.Time
	samples    *history.Ring[coverageSample]
}

// New creates an empty Model.
func New(opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	capacity := opts.SampleCapacity
	if capacity <= 0 {
		capacity = defaultSampleCapacity
	}
	return &Model{
		logger:     logger.With("component", "coverage"),
		now:        now,
		activities: make(map[string]*activityState),
		edges:      make(map[edge]int),
		samples:    history.NewRing[coverageSample](capacity),
	}
}

// Observe folds one screen observation into the model.
//
// # Description
//
// Observe is the model's sole mutator besides RecordCoverageSample and
// Reset. It increments the visit count of the observed activity, credits
// the time since the previous observation to the previously current
// activity, records a transition edge when the current activity changed,
// and unions the element sets.
//
// # Inputs
//
//   - activity: the currently foregrounded activity. Empty observations
//     are ignored.
//   - visible: element identifiers visible on screen, unioned into the
//     activity's seen set.
//   - interacted: element identifiers acted upon since the last
//     observation, unioned into the activity's unique-action set.
//
// # Thread Safety
//
// Safe for concurrent use; one critical section per call.
func (m *Model) Observe(activity string, visible, interacted []string) {
	if activity == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.now()
	if m.firstSeen.IsZero() {
		m.firstSeen = ts
	}
	if m.current != "" {
		if prev, ok := m.activities[m.current]; ok && !m.lastSeen.IsZero() {
			prev.timeSpent += ts.Sub(m.lastSeen)
		}
		if m.current != activity {
			m.edges[edge{from: m.current, to: activity}]++
		}
	}

	st, ok := m.activities[activity]
	if !ok {
		st = &activityState{
			actions:   make(map[string]struct{}),
			elements:  make(map[string]struct{}),
			firstSeen: ts,
		}
		m.activities[activity] = st
		m.logger.Debug("new activity discovered", "activity", activity)
	}
	st.visits++
	st.lastVisit = ts
	for _, el := range visible {
		if el != "" {
			st.elements[el] = struct{}{}
		}
	}
	for _, el := range interacted {
		if el != "" {
			st.actions[el] = struct{}{}
		}
	}

	m.current = activity
	m.lastSeen = ts
}

// RecordCoverageSample appends one timestamped coverage reading. Only the
// velocity computation consumes these; the history is bounded.
func (m *Model) RecordCoverageSample(percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples.Push(coverageSample{ts: m.now(), percent: percent})
}

// Recommend computes the exploration recommendation.
//
// # Description
//
// An activity is well explored once it has minVisits visits and minActions
// unique actions; everything else is underexplored. The ratio of well
// explored to total activities selects the strategy: with no activities at
// all the driver should go broad, below half coverage it should target the
// underexplored list, and past that it goes broad again to find screens
// the model has never seen.
//
// # Outputs
//
//   - Recommendation with the strategy, the sorted underexplored list, the
//     exploration ratio, the per-minute coverage velocity, and the total
//     activity count.
//
// # Thread Safety
//
// Safe for concurrent use; pure read under the model lock.
func (m *Model) Recommend() Recommendation {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := len(m.activities)
	rec := Recommendation{
		Strategy:         StrategyBroad,
		TotalActivities:  total,
		CoverageVelocity: m.velocityLocked(),
	}

	wellExplored := 0
	for name, st := range m.activities {
		if st.visits >= minVisits && len(st.actions) >= minActions {
			wellExplored++
			continue
		}
		rec.Underexplored = append(rec.Underexplored, name)
	}
	sort.Strings(rec.Underexplored)

	divisor := total
	if divisor < 1 {
		divisor = 1
	}
	rec.ExplorationRatio = float64(wellExplored) / float64(divisor)

	switch {
	case total == 0:
		rec.Strategy = StrategyBroad
	case rec.ExplorationRatio < 0.5:
		rec.Strategy = StrategyTargeted
	default:
		rec.Strategy = StrategyBroad
	}
	return rec
}

// velocityLocked returns coverage gained per minute over the trailing
// velocityWindow samples. Fewer than two samples, or zero elapsed time
// between the endpoints, yields 0.
func (m *Model) velocityLocked() float64 {
	window := m.samples.Tail(velocityWindow)
	if len(window) < 2 {
		return 0
	}
	oldest := window[0]
	newest := window[len(window)-1]
	elapsed := newest.ts.Sub(oldest.ts)
	if elapsed <= 0 {
		return 0
	}
	return (newest.percent - oldest.percent) / elapsed.Minutes()
}

// Reset clears the model.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activities = make(map[string]*activityState)
	m.edges = make(map[edge]int)
	m.current = ""
	m.lastSeen = time.Time{}
	m.firstSeen = time.Time{}
	m.samples.Clear()
	m.logger.Info("coverage model reset")
}
