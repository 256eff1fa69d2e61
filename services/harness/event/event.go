// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package event defines the event model shared by every harness component.
//
// An Event is immutable once recorded: the recorder that created it is its
// sole owner, and correlation windows or failure reports always hold deep
// copies rather than aliases. Producers submit Raw values; the recording
// component assigns the ordinal ID and fills in a timestamp when the
// producer did not supply one.
package event

import "time"

// Severity classifies an event's impact.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Well-known event types emitted by tool adapters and device watchers.
// The set is open: components must tolerate types outside this list.
const (
	TypeTouch       = "touch"
	TypeTextInput   = "text_input"
	TypeKey         = "key"
	TypeStateChange = "state_change"
	TypeCrash       = "crash"
	TypeANR         = "anr"
)

// Event is one recorded input or output observation.
//
// # Thread Safety
//
// Events are value types and immutable after recording. Callers must not
// mutate Details on an Event obtained from a log, window, or report.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	ID        uint64            `json:"id"`
	Source    string            `json:"source"`
	Type      string            `json:"type"`
	Details   map[string]string `json:"details,omitempty"`
	Severity  Severity          `json:"severity"`
}

// Clone returns a deep copy of the event. The Details map is copied so the
// clone stays valid however the original's owner evolves.
func (e Event) Clone() Event {
	out := e
	if e.Details != nil {
		out.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			out.Details[k] = v
		}
	}
	return out
}

// Detail returns the named detail field, or def when absent.
func (e Event) Detail(key, def string) string {
	if v, ok := e.Details[key]; ok && v != "" {
		return v
	}
	return def
}

// CloneAll deep-copies a slice of events. Used when snapshotting a window
// into a report so later window mutation cannot alter history.
func CloneAll(events []Event) []Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// Raw is a producer-submitted event before recording. A zero Timestamp
// means "stamp with the recorder's clock"; an empty Severity defaults to
// SeverityInfo.
type Raw struct {
	Timestamp time.Time         `json:"timestamp,omitempty"`
	Source    string            `json:"source"`
	Type      string            `json:"type"`
	Details   map[string]string `json:"details,omitempty"`
	Severity  Severity          `json:"severity,omitempty"`
}
