// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session wires the five harness components into one observable
// exploration session.
//
// # Description
//
// A Session owns an event log, a state recorder, a coverage model, a
// failure correlator, and an init sequencer, all sharing a session id
// minted by the event log. It routes every ingested event batch to the
// log, the correlation window, the optional journal, and the optional
// live-event hook; routes observations to the recorder and the coverage
// model; and snapshots failure reports into the optional store.
//
// Durable writes (journal, store, perf sink) are fire-and-report: a
// failed write is logged and counted, never surfaced to the observation
// loop. Only construction and Close return errors.
//
// # Thread Safety
//
// Session is safe for concurrent use by multiple producers. Component
// state is guarded by the components' own mutexes; the session-level
// mutex only guards the journal handle, which Reset swaps.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/correlator"
	"github.com/Saher-Elsayed/SMATA/services/harness/coverage"
	"github.com/Saher-Elsayed/SMATA/services/harness/event"
	"github.com/Saher-Elsayed/SMATA/services/harness/eventlog"
	"github.com/Saher-Elsayed/SMATA/services/harness/observability"
	"github.com/Saher-Elsayed/SMATA/services/harness/recorder"
	"github.com/Saher-Elsayed/SMATA/services/harness/sequencer"
	"github.com/Saher-Elsayed/SMATA/services/harness/storage"
)

// persistTimeout bounds one store write during Reset or Close.
const persistTimeout = 5 * time.Second

// PerfSink is the session-facing view of a performance sink: the sample
// writer the recorder forwards to, plus session tagging so points land
// under the right series after a reset.
type PerfSink interface {
	recorder.PerfSink
	SetSession(id string)
}

// Observation is one structured screen observation from the device-log
// watcher: the foregrounded activity, its lifecycle state, and what was
// visible and interacted with since the previous observation.
type Observation struct {
	Activity   string   `json:"activity"`
	State      string   `json:"state"`
	Hierarchy  string   `json:"hierarchy,omitempty"`
	Visible    []string `json:"visible,omitempty"`
	Interacted []string `json:"interacted,omitempty"`
}

// CrashInput is one crash notification from the failure watcher.
type CrashInput struct {
	CrashType         string `json:"crash_type"`
	ExceptionClass    string `json:"exception_class"`
	Message           string `json:"message"`
	StackTrace        string `json:"stack_trace"`
	AppState          string `json:"app_state,omitempty"`
	TriggeringEventID uint64 `json:"triggering_event_id,omitempty"`
}

// ANRInput is one application-not-responding notification.
type ANRInput struct {
	Activity          string  `json:"activity"`
	Reason            string  `json:"reason"`
	CPUPercent        float64 `json:"cpu_percent,omitempty"`
	TriggeringEventID uint64  `json:"triggering_event_id,omitempty"`
}

// Status is the driver-facing snapshot of a running session.
type Status struct {
	SessionID           string           `json:"session_id"`
	StartedAt           time.Time        `json:"started_at"`
	Events              int              `json:"events"`
	Fingerprint         string           `json:"fingerprint"`
	Coverage            coverage.Summary `json:"coverage"`
	Recorder            recorder.Summary `json:"recorder"`
	Crashes             int              `json:"crashes"`
	ANRs                int              `json:"anrs"`
	ReproducibilityRate float64          `json:"reproducibility_rate"`
	WindowSize          int              `json:"window_size"`
	JournalPath         string           `json:"journal_path,omitempty"`
}

// SummaryRecord is what gets persisted to the store when a session ends,
// either through Reset or Close.
type SummaryRecord struct {
	SessionID   string    `json:"session_id"`
	EndedAt     time.Time `json:"ended_at"`
	Events      int       `json:"events"`
	Crashes     int       `json:"crashes"`
	ANRs        int       `json:"anrs"`
	Activities  int       `json:"activities"`
	Transitions int       `json:"transitions"`
	Fingerprint string    `json:"fingerprint"`
}

// Options configures a Session. The zero value works for in-memory use:
// default logger, wall clock, component default capacities, no journal,
// no store, no metrics, no perf sink.
type Options struct {
	Logger *logging.Logger
	Clock  func() time.Time

	// WindowCapacity bounds the failure correlation window.
	WindowCapacity int

	// SampleCapacity bounds the coverage-sample history.
	SampleCapacity int

	// ExecLogCapacity bounds the sequencer's execution log.
	ExecLogCapacity int

	// Runner executes init-sequence steps against the device.
	Runner sequencer.StepRunner

	// RetryBackoff is the pause between failed init-step attempts.
	RetryBackoff time.Duration

	// JournalDir, when set, enables the append-only event journal. One
	// journal file is written per session id.
	JournalDir string

	// Store, when set, receives failure reports as they are issued and a
	// session summary on Reset/Close. The caller owns the store's
	// lifecycle.
	Store *storage.Store

	// Metrics, when set, receives loop counters and coverage gauges.
	Metrics *observability.HarnessMetrics

	// PerfSink, when set, is wired into the recorder and retagged with
	// the session id on every reset.
	PerfSink PerfSink

	// OnEvents, when set, is called with every recorded batch after it
	// has been ingested. Used by the WebSocket broadcaster. The hook
	// must not block.
	OnEvents func([]event.Event)
}

// Session is one wired harness session.
type Session struct {
	logger *logging.Logger
	// baseLogger is the untagged logger handed to components that tag
	// themselves, like rotated journals.
	baseLogger *logging.Logger
	now        func() time.Time
	metrics  *observability.HarnessMetrics
	store    *storage.Store
	sink     PerfSink
	onEvents func([]event.Event)

	log        *eventlog.Log
	recorder   *recorder.Recorder
	coverage   *coverage.Model
	correlator *correlator.Correlator
	sequencer  *sequencer.Sequencer

	journalDir string

	mu        sync.Mutex
	journal   *storage.Journal
	startedAt time.Time
}

// New constructs and wires a Session. The journal, when enabled, is
// opened here so a misconfigured directory fails at startup rather than
// on the first ingested event.
func New(opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	s := &Session{
		logger:     logger.With("component", "session"),
		baseLogger: logger,
		now:        now,
		metrics:    opts.Metrics,
		store:      opts.Store,
		sink:       opts.PerfSink,
		onEvents:   opts.OnEvents,
		log: eventlog.New(eventlog.Options{
			Logger: logger,
			Clock:  opts.Clock,
		}),
		recorder: recorder.New(recorder.Options{
			Logger: logger,
			Clock:  opts.Clock,
			Sink:   opts.PerfSink,
		}),
		coverage: coverage.New(coverage.Options{
			Logger:         logger,
			Clock:          opts.Clock,
			SampleCapacity: opts.SampleCapacity,
		}),
		correlator: correlator.New(correlator.Options{
			Logger:         logger,
			Clock:          opts.Clock,
			WindowCapacity: opts.WindowCapacity,
		}),
		sequencer: sequencer.New(sequencer.Options{
			Logger:          logger,
			Clock:           opts.Clock,
			Runner:          opts.Runner,
			RetryBackoff:    opts.RetryBackoff,
			ExecLogCapacity: opts.ExecLogCapacity,
		}),
		journalDir: opts.JournalDir,
		startedAt:  now(),
	}

	id := s.log.SessionID()
	if s.journalDir != "" {
		journal, err := storage.OpenJournal(s.journalDir, id, logger)
		if err != nil {
			return nil, fmt.Errorf("open session journal: %w", err)
		}
		s.journal = journal
	}
	if s.sink != nil {
		s.sink.SetSession(id)
	}

	s.logger.Info("session started", "session_id", id, "journal", s.journalDir != "")
	return s, nil
}

// SessionID returns the current session identifier.
func (s *Session) SessionID() string {
	return s.log.SessionID()
}

// =============================================================================
// Event Ingest
// =============================================================================

// Ingest records a batch of raw input events and fans it out: the event
// log assigns ids, the correlation window absorbs the stamped events, the
// journal archives them, and the live-event hook is invoked. Returns the
// assigned ids in batch order.
//
// Journal failures are logged and counted, never returned; the in-memory
// pipeline is the source of truth.
func (s *Session) Ingest(ctx context.Context, batch []event.Raw) []uint64 {
	if len(batch) == 0 {
		return nil
	}

	recorded := s.log.RecordEvents(batch)
	s.correlator.UpdateWindow(recorded)

	if m := s.metrics; m != nil {
		for _, ev := range recorded {
			m.RecordEvent(ev.Type)
		}
		m.UpdateFailureWindow(s.correlator.WindowSize(), s.correlator.DistinctSignatures())
	}

	s.appendToJournal(ctx, recorded)

	if s.onEvents != nil {
		s.onEvents(recorded)
	}

	ids := make([]uint64, len(recorded))
	for i, ev := range recorded {
		ids[i] = ev.ID
	}
	return ids
}

// appendToJournal archives a recorded batch. A failed append abandons the
// rest of the batch; the journal is an archive, not the source of truth.
func (s *Session) appendToJournal(ctx context.Context, recorded []event.Event) {
	s.mu.Lock()
	journal := s.journal
	s.mu.Unlock()
	if journal == nil {
		return
	}

	for _, ev := range recorded {
		if err := journal.Append(ctx, ev); err != nil {
			s.logger.Warn("journal append failed",
				"session_id", s.log.SessionID(),
				"event_id", ev.ID,
				"error", err.Error())
			if m := s.metrics; m != nil {
				m.RecordExportFailure(observability.TargetJournal)
			}
			return
		}
	}
}

// =============================================================================
// Observations & Failures
// =============================================================================

// Observe folds one structured observation into the recorder and the
// coverage model.
func (s *Session) Observe(o Observation) {
	s.recorder.RecordTransition(o.Activity, o.State, o.Hierarchy)
	s.coverage.Observe(o.Activity, o.Visible, o.Interacted)

	if m := s.metrics; m != nil {
		m.RecordObservation()
		rec := s.coverage.Recommend()
		m.UpdateCoverage(rec.TotalActivities, rec.ExplorationRatio, rec.CoverageVelocity)
	}
}

// ReportCrash counts the crash in the recorder and snapshots the current
// correlation window into an immutable report, which is persisted to the
// store when one is configured.
func (s *Session) ReportCrash(ctx context.Context, in CrashInput) *correlator.CrashReport {
	s.recorder.RecordCrash(in.CrashType, in.StackTrace, in.TriggeringEventID)
	report := s.correlator.ReportCrash(in.CrashType, in.ExceptionClass, in.Message, in.StackTrace, in.AppState)

	if m := s.metrics; m != nil {
		m.RecordCrash(string(report.Severity))
		m.UpdateFailureWindow(s.correlator.WindowSize(), s.correlator.DistinctSignatures())
	}

	s.persistReport(ctx, report.ID, report)
	return report
}

// ReportANR counts the ANR in the recorder and snapshots the current
// correlation window into an immutable report, persisted like a crash.
func (s *Session) ReportANR(ctx context.Context, in ANRInput) *correlator.ANRReport {
	s.recorder.RecordANR(in.Reason, in.TriggeringEventID)
	report := s.correlator.ReportANR(in.Activity, in.Reason, in.CPUPercent)

	if m := s.metrics; m != nil {
		m.RecordANR()
	}

	s.persistReport(ctx, report.ID, report)
	return report
}

// persistReport writes one report to the store, fire-and-report.
func (s *Session) persistReport(ctx context.Context, reportID string, report any) {
	if s.store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.store.SaveReport(saveCtx, s.log.SessionID(), reportID, report); err != nil {
		s.logger.Warn("report persist failed", "report_id", reportID, "error", err.Error())
		if m := s.metrics; m != nil {
			m.RecordExportFailure(observability.TargetStore)
		}
	}
}

// RecordPerf stores one performance sample and forwards it to the sink.
func (s *Session) RecordPerf(ctx context.Context, sample recorder.PerfSample) {
	s.recorder.RecordPerfSample(ctx, sample)
}

// RecordCoverageSample feeds one coverage reading to the velocity window.
func (s *Session) RecordCoverageSample(percent float64) {
	s.coverage.RecordCoverageSample(percent)
}

// =============================================================================
// Reads
// =============================================================================

// Recommend returns the coverage model's current strategy recommendation
// and refreshes the coverage gauges.
func (s *Session) Recommend() coverage.Recommendation {
	rec := s.coverage.Recommend()
	if m := s.metrics; m != nil {
		m.UpdateCoverage(rec.TotalActivities, rec.ExplorationRatio, rec.CoverageVelocity)
	}
	return rec
}

// EventLog exposes the session's event log for exports and replay
// synthesis.
func (s *Session) EventLog() *eventlog.Log {
	return s.log
}

// Coverage exposes the session's coverage model for graph exports.
func (s *Session) Coverage() *coverage.Model {
	return s.coverage
}

// Correlator exposes the session's failure correlator for report reads.
func (s *Session) Correlator() *correlator.Correlator {
	return s.correlator
}

// Recorder exposes the session's state recorder.
func (s *Session) Recorder() *recorder.Recorder {
	return s.recorder
}

// Status assembles the driver-facing snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	startedAt := s.startedAt
	journalPath := ""
	if s.journal != nil {
		journalPath = s.journal.Path()
	}
	s.mu.Unlock()

	return Status{
		SessionID:           s.log.SessionID(),
		StartedAt:           startedAt,
		Events:              s.log.Len(),
		Fingerprint:         s.log.Fingerprint(),
		Coverage:            s.coverage.Summary(),
		Recorder:            s.recorder.Summary(),
		Crashes:             s.correlator.CrashCount(),
		ANRs:                s.correlator.ANRCount(),
		ReproducibilityRate: s.correlator.ReproducibilityRate(),
		WindowSize:          s.correlator.WindowSize(),
		JournalPath:         journalPath,
	}
}

// =============================================================================
// Init Sequences
// =============================================================================

// RegisterSequence adds an init sequence to the library.
func (s *Session) RegisterSequence(seq sequencer.Sequence) error {
	return s.sequencer.Register(seq)
}

// Initialize runs the registered init sequence for a package and records
// step outcomes in the metrics. A package with no registered sequence
// succeeds immediately with zero steps.
func (s *Session) Initialize(ctx context.Context, pkg string) sequencer.Result {
	res := s.sequencer.Initialize(ctx, pkg)

	if m := s.metrics; m != nil {
		for i := 0; i < res.StepsCompleted; i++ {
			m.RecordInitStep(observability.OutcomeCompleted)
		}
		for range res.Errors {
			m.RecordInitStep(observability.OutcomeFailed)
		}
		if res.Success {
			for i := 0; i < res.StepsTotal-res.StepsCompleted; i++ {
				m.RecordInitStep(observability.OutcomeSkipped)
			}
		}
	}
	return res
}

// ListSequences returns the registered package names.
func (s *Session) ListSequences() []string {
	return s.sequencer.ListSequences()
}

// ExportSequence returns the registered sequence for a package.
func (s *Session) ExportSequence(pkg string) (sequencer.Sequence, error) {
	return s.sequencer.ExportSequence(pkg)
}

// Sequencer exposes the underlying sequencer, mainly for the config
// loader's bulk registration.
func (s *Session) Sequencer() *sequencer.Sequencer {
	return s.sequencer
}

// =============================================================================
// Lifecycle
// =============================================================================

// Reset ends the current session and starts a fresh one: the summary is
// persisted, the journal is rotated to a new file, every component is
// cleared, and a new session id is minted. Issued reports already
// persisted to the store are untouched. Returns the new session id.
func (s *Session) Reset(ctx context.Context) string {
	oldID := s.log.SessionID()
	s.persistSummary(ctx, oldID)

	s.mu.Lock()
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("journal close failed", "session_id", oldID, "error", err.Error())
		}
		s.journal = nil
	}
	s.mu.Unlock()

	s.log.Reset()
	s.recorder.Reset()
	s.coverage.Reset()
	s.correlator.Reset()

	newID := s.log.SessionID()

	s.mu.Lock()
	s.startedAt = s.now()
	if s.journalDir != "" {
		journal, err := storage.OpenJournal(s.journalDir, newID, s.baseLogger)
		if err != nil {
			// Archive only: the session keeps running without it.
			s.logger.Error("journal rotate failed", "session_id", newID, "error", err.Error())
		} else {
			s.journal = journal
		}
	}
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.SetSession(newID)
	}
	if m := s.metrics; m != nil {
		m.UpdateCoverage(0, 0, 0)
		m.UpdateFailureWindow(0, 0)
	}

	s.logger.Info("session reset", "old_session", oldID, "new_session", newID)
	return newID
}

// Close persists the final summary and releases the journal. The store
// and perf sink belong to the caller and are left open.
func (s *Session) Close(ctx context.Context) error {
	id := s.log.SessionID()
	s.persistSummary(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal != nil {
		journal := s.journal
		s.journal = nil
		if err := journal.Close(); err != nil {
			return fmt.Errorf("close session journal: %w", err)
		}
	}
	return nil
}

// persistSummary writes the end-of-session record, fire-and-report.
func (s *Session) persistSummary(ctx context.Context, sessionID string) {
	if s.store == nil {
		return
	}

	recSummary := s.recorder.Summary()
	record := SummaryRecord{
		SessionID:   sessionID,
		EndedAt:     s.now(),
		Events:      s.log.Len(),
		Crashes:     s.correlator.CrashCount(),
		ANRs:        s.correlator.ANRCount(),
		Activities:  recSummary.DistinctActivities,
		Transitions: recSummary.Transitions,
		Fingerprint: s.log.Fingerprint(),
	}

	saveCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.store.SaveSessionSummary(saveCtx, sessionID, record); err != nil {
		s.logger.Warn("summary persist failed", "session_id", sessionID, "error", err.Error())
		if m := s.metrics; m != nil {
			m.RecordExportFailure(observability.TargetStore)
		}
	}
}
