// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package eventlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Saher-Elsayed/SMATA/services/harness/event"
)

// Export is the structured interchange form of a recorded session. It is
// what gets archived, shipped to the driver, and fed back into the CLI for
// offline fingerprinting and replay synthesis.
type Export struct {
	SessionID   string        `json:"session_id"`
	Fingerprint string        `json:"fingerprint"`
	EventCount  int           `json:"event_count"`
	Events      []event.Event `json:"events"`
}

// csvHeader is the fixed column set of the CSV variant. The parameters
// column holds a JSON-encoded object of every detail field except target.
var csvHeader = []string{"timestamp", "event_id", "source", "event_type", "target", "parameters"}

// Snapshot captures the log's current export form without writing it.
func (l *Log) Snapshot() Export {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Export{
		SessionID:   l.session,
		Fingerprint: FingerprintEvents(l.events),
		EventCount:  len(l.events),
		Events:      event.CloneAll(l.events),
	}
}

// ExportJSON writes the session export as indented JSON.
//
// A write failure is logged and returned; the in-memory log is unaffected
// either way.
func (l *Log) ExportJSON(w io.Writer) error {
	snap := l.Snapshot()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		l.logger.Error("event export failed", "format", "json", "session", snap.SessionID, "error", err.Error())
		return fmt.Errorf("export events: %w", err)
	}
	return nil
}

// ExportCSV writes one row per event with a quoted JSON parameters field.
func (l *Log) ExportCSV(w io.Writer) error {
	snap := l.Snapshot()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return l.csvError(snap.SessionID, err)
	}
	for _, ev := range snap.Events {
		params, err := json.Marshal(parametersOf(ev))
		if err != nil {
			return l.csvError(snap.SessionID, err)
		}
		row := []string{
			ev.Timestamp.Format(time.RFC3339Nano),
			strconv.FormatUint(ev.ID, 10),
			ev.Source,
			ev.Type,
			ev.Details["target"],
			string(params),
		}
		if err := cw.Write(row); err != nil {
			return l.csvError(snap.SessionID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return l.csvError(snap.SessionID, err)
	}
	return nil
}

func (l *Log) csvError(session string, err error) error {
	l.logger.Error("event export failed", "format", "csv", "session", session, "error", err.Error())
	return fmt.Errorf("export events: %w", err)
}

// parametersOf strips the target field, which has its own CSV column.
// encoding/json sorts map keys, so the column is deterministic.
func parametersOf(ev event.Event) map[string]string {
	params := make(map[string]string, len(ev.Details))
	for k, v := range ev.Details {
		if k == "target" {
			continue
		}
		params[k] = v
	}
	return params
}

// ParseExport decodes a JSON export produced by ExportJSON.
func ParseExport(data []byte) (*Export, error) {
	var ex Export
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("parse event export: %w", err)
	}
	return &ex, nil
}
