// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package correlator

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ReportExport is the serialized failure-analysis summary. Detail records
// carry ids, steps, and counts rather than full event bodies; the events
// themselves live in the reports and the journal.
type ReportExport struct {
	GeneratedAt         time.Time      `json:"generated_at"`
	CrashCount          int            `json:"crash_count"`
	ANRCount            int            `json:"anr_count"`
	ReproducibilityRate float64        `json:"reproducibility_rate"`
	BySeverity          map[string]int `json:"by_severity"`
	Crashes             []CrashDetail  `json:"crashes"`
	ANRs                []ANRDetail    `json:"anrs"`
}

// CrashDetail is one crash record in a ReportExport.
type CrashDetail struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	CrashType      string    `json:"crash_type"`
	ExceptionClass string    `json:"exception_class"`
	Message        string    `json:"message"`
	Severity       string    `json:"severity"`
	Reproducible   bool      `json:"reproducible"`
	ReproSteps     []string  `json:"repro_steps"`
	WindowSize     int       `json:"window_size"`
}

// ANRDetail is one ANR record in a ReportExport.
type ANRDetail struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Activity     string    `json:"activity"`
	Reason       string    `json:"reason"`
	CPUPercent   float64   `json:"cpu_percent,omitempty"`
	RecentEvents int       `json:"recent_events"`
}

// Export builds the serializable summary under the correlator lock.
func (c *Correlator) Export() ReportExport {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := ReportExport{
		GeneratedAt: c.now(),
		CrashCount:  len(c.crashes),
		ANRCount:    len(c.anrs),
		BySeverity:  make(map[string]int),
		Crashes:     make([]CrashDetail, 0, len(c.crashes)),
		ANRs:        make([]ANRDetail, 0, len(c.anrs)),
	}

	reproducible := 0
	for _, r := range c.crashes {
		if r.Reproducible {
			reproducible++
		}
		out.BySeverity[string(r.Severity)]++
		out.Crashes = append(out.Crashes, CrashDetail{
			ID:             r.ID,
			Timestamp:      r.Timestamp,
			CrashType:      r.CrashType,
			ExceptionClass: r.ExceptionClass,
			Message:        r.Message,
			Severity:       string(r.Severity),
			Reproducible:   r.Reproducible,
			ReproSteps:     r.ReproSteps,
			WindowSize:     len(r.Window),
		})
	}
	if len(c.crashes) > 0 {
		out.ReproducibilityRate = float64(reproducible) / float64(len(c.crashes)) * 100
	}

	for _, r := range c.anrs {
		out.ANRs = append(out.ANRs, ANRDetail{
			ID:           r.ID,
			Timestamp:    r.Timestamp,
			Activity:     r.Activity,
			Reason:       r.Reason,
			CPUPercent:   r.CPUPercent,
			RecentEvents: len(r.RecentEvents),
		})
	}
	return out
}

// ExportReports writes the summary as indented JSON. An I/O failure is
// logged and returned; correlator state is unaffected either way.
func (c *Correlator) ExportReports(w io.Writer) error {
	snapshot := c.Export()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		c.logger.Error("report export failed", "error", err.Error())
		return fmt.Errorf("export reports: %w", err)
	}
	return nil
}
