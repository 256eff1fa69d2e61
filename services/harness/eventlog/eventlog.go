// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package eventlog implements the append-only input-event store at the
// center of the harness feedback loop.
//
// Every input event a tool adapter produces lands here first. The log
// assigns each event a session-scoped ordinal id, keeps the full ordered
// sequence for the lifetime of the session, and derives three things from
// it: a deterministic sequence fingerprint (the reproduction-verification
// primitive), a synthesized replay script, and the JSON/CSV exports the
// external driver consumes.
//
// # Thread Safety
//
// Log is safe for concurrent use. A single mutex serializes id assignment
// and appends, so per-producer ordering is preserved and ids never race.
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/event"
)

// Options configures a Log. The zero value is usable: it logs through
// logging.Default and stamps events with time.Now.
type Options struct {
	// Logger receives structured records for resets and export failures.
	Logger *logging.Logger

	// Clock overrides the wall clock, mainly for tests.
	Clock func() time.Time
}

// Log is the append-only, timestamp-ordered store of input events.
type Log struct {
	mu      sync.Mutex
	logger  *logging.Logger
	now     func() time.Time
	session string
	nextID  uint64
	events  []event.Event
}

// New creates an empty Log with a fresh session identifier.
func New(opts Options) *Log {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Log{
		logger:  logger.With("component", "eventlog"),
		now:     now,
		session: newSessionID(),
	}
}

func newSessionID() string {
	return uuid.NewString()[:12] // 48 bits of entropy
}

// Record appends a batch of raw events, assigning each a sequential id.
//
// Events with a zero timestamp are stamped with the log's clock. Detail
// maps are copied, never aliased, so producers may reuse their buffers.
// Record never rejects input; it returns the assigned ids in batch order.
func (l *Log) Record(batch []event.Raw) []uint64 {
	if len(batch) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]uint64, len(batch))
	for i, raw := range batch {
		ids[i] = l.appendLocked(raw)
	}
	return ids
}

// RecordOne is the single-event convenience form of Record.
func (l *Log) RecordOne(source, eventType string, details map[string]string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(event.Raw{Source: source, Type: eventType, Details: details})
}

// RecordEvents is Record for callers that need the stamped events back:
// it appends the batch and returns deep copies of the recorded events,
// ids and timestamps assigned. The session uses this to feed the same
// batch to the correlation window and the journal.
func (l *Log) RecordEvents(batch []event.Raw) []event.Event {
	if len(batch) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]event.Event, len(batch))
	for i, raw := range batch {
		l.appendLocked(raw)
		out[i] = l.events[len(l.events)-1].Clone()
	}
	return out
}

func (l *Log) appendLocked(raw event.Raw) uint64 {
	l.nextID++

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}
	sev := raw.Severity
	if sev == "" {
		sev = event.SeverityInfo
	}

	ev := event.Event{
		Timestamp: ts,
		ID:        l.nextID,
		Source:    raw.Source,
		Type:      raw.Type,
		Severity:  sev,
	}
	if raw.Details != nil {
		ev.Details = make(map[string]string, len(raw.Details))
		for k, v := range raw.Details {
			ev.Details[k] = v
		}
	}

	l.events = append(l.events, ev)
	return ev.ID
}

// EventsOfType returns copies of all events whose type matches.
func (l *Log) EventsOfType(eventType string) []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []event.Event
	for _, ev := range l.events {
		if ev.Type == eventType {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// EventsInRange returns copies of all events with t0 <= timestamp <= t1.
func (l *Log) EventsInRange(t0, t1 time.Time) []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []event.Event
	for _, ev := range l.events {
		if ev.Timestamp.Before(t0) || ev.Timestamp.After(t1) {
			continue
		}
		out = append(out, ev.Clone())
	}
	return out
}

// Events returns a copy of the full recorded sequence in record order.
func (l *Log) Events() []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return event.CloneAll(l.events)
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// SessionID returns the current session identifier.
func (l *Log) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Reset clears all recorded events, restarts id assignment, and assigns a
// fresh session identifier.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.session
	l.events = nil
	l.nextID = 0
	l.session = newSessionID()
	l.logger.Info("event log reset", "old_session", old, "new_session", l.session)
}
