// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"time"

	"github.com/Saher-Elsayed/SMATA/services/harness/event"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}

// AckResponse acknowledges a write that has no body to return.
type AckResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status string `json:"status"`

	// Version is the harness version.
	Version string `json:"version"`

	// SessionID is the active session.
	SessionID string `json:"session_id"`
}

// IngestRequest is the request body for POST /v1/events. An empty batch
// is accepted and recorded as a no-op.
type IngestRequest struct {
	Events []event.Raw `json:"events"`
}

// IngestResponse reports the ids assigned to an ingested batch.
type IngestResponse struct {
	SessionID string   `json:"session_id"`
	EventIDs  []uint64 `json:"event_ids"`
	Count     int      `json:"count"`
}

// ObservationRequest is the request body for POST /v1/observations.
type ObservationRequest struct {
	Activity   string   `json:"activity" binding:"required"`
	State      string   `json:"state"`
	Hierarchy  string   `json:"hierarchy"`
	Visible    []string `json:"visible"`
	Interacted []string `json:"interacted"`
}

// CoverageSampleRequest is the request body for POST /v1/coverage/samples.
type CoverageSampleRequest struct {
	Percent float64 `json:"percent"`
}

// CrashRequest is the request body for POST /v1/failures/crash.
type CrashRequest struct {
	CrashType         string `json:"crash_type" binding:"required"`
	ExceptionClass    string `json:"exception_class"`
	Message           string `json:"message"`
	StackTrace        string `json:"stack_trace"`
	AppState          string `json:"app_state"`
	TriggeringEventID uint64 `json:"triggering_event_id"`
}

// ANRRequest is the request body for POST /v1/failures/anr.
type ANRRequest struct {
	Activity          string  `json:"activity" binding:"required"`
	Reason            string  `json:"reason"`
	CPUPercent        float64 `json:"cpu_percent"`
	TriggeringEventID uint64  `json:"triggering_event_id"`
}

// PerfSampleRequest is the request body for POST /v1/perf/samples. A zero
// timestamp means "now".
type PerfSampleRequest struct {
	Timestamp      time.Time `json:"timestamp"`
	MemoryMB       float64   `json:"memory_mb"`
	CPUPercent     float64   `json:"cpu_percent"`
	FPS            float64   `json:"fps"`
	BatteryPercent float64   `json:"battery_percent"`
}

// SequencesResponse lists the registered init-sequence packages.
type SequencesResponse struct {
	Packages []string `json:"packages"`
	Count    int      `json:"count"`
}

// ResetResponse carries the id of the session that replaced the old one.
type ResetResponse struct {
	SessionID string `json:"session_id"`
}

// StreamFrame is one WebSocket message on /v1/events/stream: the batch of
// events just ingested, tagged with the session they belong to.
type StreamFrame struct {
	SessionID string        `json:"session_id"`
	Events    []event.Event `json:"events"`
}
