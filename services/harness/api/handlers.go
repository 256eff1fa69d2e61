// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/pkg/validation"
	"github.com/Saher-Elsayed/SMATA/services/harness/observability"
	"github.com/Saher-Elsayed/SMATA/services/harness/recorder"
	"github.com/Saher-Elsayed/SMATA/services/harness/sequencer"
	"github.com/Saher-Elsayed/SMATA/services/harness/session"
)

// ServiceVersion is the harness service version.
const ServiceVersion = "0.1.0"

var upgrader = websocket.Upgrader{
	// The harness binds to loopback or a test rig's private network;
	// origin checks add nothing there.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 32 * 1024,
}

// Handlers contains the HTTP handlers for the harness API.
type Handlers struct {
	session *session.Session
	hub     *Hub
	metrics *observability.HarnessMetrics
	logger  *logging.Logger
}

// NewHandlers creates handlers around one session. The hub and metrics
// are optional; without a hub the stream endpoint refuses connections.
func NewHandlers(s *session.Session, hub *Hub, metrics *observability.HarnessMetrics, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handlers{
		session: s,
		hub:     hub,
		metrics: metrics,
		logger:  logger.With("component", "api"),
	}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   ServiceVersion,
		SessionID: h.session.SessionID(),
	})
}

// =============================================================================
// Events
// =============================================================================

// HandleIngestEvents handles POST /v1/events.
//
// Description:
//
//	Records a batch of raw input events. Ids are assigned in batch order
//	and the same stamped events feed the failure-correlation window, the
//	journal, and the live stream. An empty batch is a recorded no-op.
//
// Request Body:
//
//	IngestRequest
//
// Response:
//
//	200 OK: IngestResponse
//	400 Bad Request: Malformed body
func (h *Handlers) HandleIngestEvents(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleIngestEvents")

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err.Error())
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	ids := h.session.Ingest(c.Request.Context(), req.Events)
	if ids == nil {
		ids = []uint64{}
	}

	c.JSON(http.StatusOK, IngestResponse{
		SessionID: h.session.SessionID(),
		EventIDs:  ids,
		Count:     len(ids),
	})
}

// HandleExportEvents handles GET /v1/events/export.
//
// Description:
//
//	Streams the full event log in the requested format. JSON carries the
//	session id, fingerprint, and count alongside the events; CSV is one
//	row per event with parameters as a quoted JSON object.
//
// Query Parameters:
//
//	format: "json" (default) or "csv"
//
// Response:
//
//	200 OK: export stream
//	400 Bad Request: Unsupported format
func (h *Handlers) HandleExportEvents(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleExportEvents")

	format := c.DefaultQuery("format", "json")
	switch format {
	case "json":
		c.Header("Content-Type", "application/json")
		c.Status(http.StatusOK)
		if err := h.session.EventLog().ExportJSON(c.Writer); err != nil {
			// The status line is already on the wire; log and count.
			logger.Error("event export failed", "format", format, "error", err.Error())
			if m := h.metrics; m != nil {
				m.RecordExportFailure(observability.TargetJSON)
			}
		}
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition",
			fmt.Sprintf("attachment; filename=events_%s.csv", h.session.SessionID()))
		c.Status(http.StatusOK)
		if err := h.session.EventLog().ExportCSV(c.Writer); err != nil {
			logger.Error("event export failed", "format", format, "error", err.Error())
			if m := h.metrics; m != nil {
				m.RecordExportFailure(observability.TargetCSV)
			}
		}
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("unsupported export format %q", format),
			Code:  "UNSUPPORTED_FORMAT",
		})
	}
}

// HandleEventStream handles GET /v1/events/stream.
//
// Description:
//
//	Upgrades to a WebSocket and streams every ingested batch as a
//	StreamFrame. The feed is lossy by design: subscribers that fall
//	behind skip frames instead of slowing ingestion.
func (h *Handlers) HandleEventStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleEventStream")

	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "event streaming is not enabled",
			Code:  "STREAM_DISABLED",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	if _, err := h.hub.add(conn); err != nil {
		_ = conn.Close()
		return
	}
	defer h.hub.remove(conn)

	// Inbound messages are ignored; the read loop only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// =============================================================================
// Observations & Coverage
// =============================================================================

// HandleObservation handles POST /v1/observations.
//
// Description:
//
//	Folds one structured screen observation into the state recorder and
//	the coverage model.
//
// Request Body:
//
//	ObservationRequest
//
// Response:
//
//	200 OK: AckResponse
//	400 Bad Request: Missing activity
func (h *Handlers) HandleObservation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleObservation")

	var req ObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err.Error())
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: activity is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	h.session.Observe(session.Observation{
		Activity:   req.Activity,
		State:      req.State,
		Hierarchy:  req.Hierarchy,
		Visible:    req.Visible,
		Interacted: req.Interacted,
	})
	c.JSON(http.StatusOK, AckResponse{Status: "recorded"})
}

// HandleCoverageSample handles POST /v1/coverage/samples.
func (h *Handlers) HandleCoverageSample(c *gin.Context) {
	var req CoverageSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	h.session.RecordCoverageSample(req.Percent)
	c.JSON(http.StatusOK, AckResponse{Status: "recorded"})
}

// HandleRecommendation handles GET /v1/coverage/recommendation.
//
// Response:
//
//	200 OK: coverage.Recommendation
func (h *Handlers) HandleRecommendation(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Recommend())
}

// HandleCoverageGraph handles GET /v1/coverage/graph.
func (h *Handlers) HandleCoverageGraph(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Coverage().ActivityGraph())
}

// HandleCoverageSummary handles GET /v1/coverage/summary.
func (h *Handlers) HandleCoverageSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Coverage().Summary())
}

// =============================================================================
// Failures
// =============================================================================

// HandleCrash handles POST /v1/failures/crash.
//
// Description:
//
//	Reports one crash. The current correlation window is snapshotted
//	into an immutable report with severity, repro steps, and a
//	reproducibility verdict.
//
// Request Body:
//
//	CrashRequest
//
// Response:
//
//	200 OK: correlator.CrashReport
//	400 Bad Request: Missing crash_type
func (h *Handlers) HandleCrash(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleCrash")

	var req CrashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err.Error())
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: crash_type is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	report := h.session.ReportCrash(c.Request.Context(), session.CrashInput{
		CrashType:         req.CrashType,
		ExceptionClass:    req.ExceptionClass,
		Message:           req.Message,
		StackTrace:        req.StackTrace,
		AppState:          req.AppState,
		TriggeringEventID: req.TriggeringEventID,
	})

	logger.Info("crash reported",
		"crash_id", report.ID,
		"severity", string(report.Severity),
		"reproducible", report.Reproducible)
	c.JSON(http.StatusOK, report)
}

// HandleANR handles POST /v1/failures/anr.
//
// Request Body:
//
//	ANRRequest
//
// Response:
//
//	200 OK: correlator.ANRReport
//	400 Bad Request: Missing activity
func (h *Handlers) HandleANR(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleANR")

	var req ANRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err.Error())
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: activity is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	report := h.session.ReportANR(c.Request.Context(), session.ANRInput{
		Activity:          req.Activity,
		Reason:            req.Reason,
		CPUPercent:        req.CPUPercent,
		TriggeringEventID: req.TriggeringEventID,
	})

	logger.Info("anr reported", "anr_id", report.ID, "activity", report.Activity)
	c.JSON(http.StatusOK, report)
}

// HandleFailureReports handles GET /v1/failures/reports.
//
// Response:
//
//	200 OK: correlator.ReportExport
func (h *Handlers) HandleFailureReports(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Correlator().Export())
}

// =============================================================================
// Performance
// =============================================================================

// HandlePerfSample handles POST /v1/perf/samples.
func (h *Handlers) HandlePerfSample(c *gin.Context) {
	var req PerfSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	h.session.RecordPerf(c.Request.Context(), recorder.PerfSample{
		Timestamp:      req.Timestamp,
		MemoryMB:       req.MemoryMB,
		CPUPercent:     req.CPUPercent,
		FPS:            req.FPS,
		BatteryPercent: req.BatteryPercent,
	})
	c.JSON(http.StatusOK, AckResponse{Status: "recorded"})
}

// =============================================================================
// Init Sequences
// =============================================================================

// HandleInit handles POST /v1/init/:package.
//
// Description:
//
//	Runs the registered init sequence for the package. The result record
//	is returned with status 200 whether or not the sequence succeeded;
//	callers read its success field. A package with no registered
//	sequence succeeds with zero steps.
//
// Response:
//
//	200 OK: sequencer.Result
//	400 Bad Request: Invalid package name
func (h *Handlers) HandleInit(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleInit")

	pkg := c.Param("package")
	if err := validation.ValidatePackageName(pkg); err != nil {
		logger.Warn("invalid package name", "package", pkg, "error", err.Error())
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_PACKAGE",
		})
		return
	}

	res := h.session.Initialize(c.Request.Context(), pkg)
	logger.Info("init sequence finished",
		"package", pkg,
		"success", res.Success,
		"steps_completed", res.StepsCompleted,
		"steps_total", res.StepsTotal)
	c.JSON(http.StatusOK, res)
}

// HandleListSequences handles GET /v1/sequences.
func (h *Handlers) HandleListSequences(c *gin.Context) {
	pkgs := h.session.ListSequences()
	c.JSON(http.StatusOK, SequencesResponse{Packages: pkgs, Count: len(pkgs)})
}

// HandleGetSequence handles GET /v1/sequences/:package.
//
// Response:
//
//	200 OK: sequencer.Sequence
//	404 Not Found: No sequence registered for the package
func (h *Handlers) HandleGetSequence(c *gin.Context) {
	pkg := c.Param("package")
	seq, err := h.session.ExportSequence(pkg)
	if err != nil {
		if errors.Is(err, sequencer.ErrSequenceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: fmt.Sprintf("no sequence registered for %s", pkg),
				Code:  "SEQUENCE_NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SEQUENCE_EXPORT_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, seq)
}

// =============================================================================
// Session
// =============================================================================

// HandleSessionStatus handles GET /v1/session.
func (h *Handlers) HandleSessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Status())
}

// HandleSessionReset handles POST /v1/session/reset.
//
// Description:
//
//	Ends the current session and starts a fresh one. The old session's
//	summary is persisted and its reports remain readable from the store;
//	all in-memory state restarts clean under a new session id.
//
// Response:
//
//	200 OK: ResetResponse
func (h *Handlers) HandleSessionReset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleSessionReset")

	newID := h.session.Reset(c.Request.Context())
	logger.Info("session reset", "session_id", newID)
	c.JSON(http.StatusOK, ResetResponse{SessionID: newID})
}
