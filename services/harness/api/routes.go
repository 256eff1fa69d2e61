// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/observability"
	"github.com/Saher-Elsayed/SMATA/services/harness/session"
)

// serviceName is the otelgin span service name.
const serviceName = "smata-harness"

// Deps carries the wired components the router serves.
type Deps struct {
	// Session is the harness session behind every endpoint.
	Session *session.Session

	// Hub, when set, enables the /v1/events/stream WebSocket feed.
	Hub *Hub

	// Metrics, when set, receives export-failure counters.
	Metrics *observability.HarnessMetrics

	// MetricsHandler, when set, is served at GET /metrics.
	MetricsHandler http.Handler

	// Debug enables Gin request logging on every route.
	Debug bool

	Logger *logging.Logger
}

// NewRouter builds the harness HTTP router: recovery and OpenTelemetry
// middleware, the health and metrics endpoints, and the /v1 API.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware(serviceName))

	handlers := NewHandlers(deps.Session, deps.Hub, deps.Metrics, deps.Logger)

	router.GET("/health", handlers.HandleHealth)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

// RegisterRoutes registers the harness endpoints with the router group.
//
// Description:
//
//	Registers all /v1/* endpoints. The group should already carry any
//	required middleware.
//
// Event Endpoints:
//
//	POST /v1/events - Ingest a batch of raw input events
//	GET  /v1/events/export - Export the event log (json or csv)
//	GET  /v1/events/stream - WebSocket live event feed
//
// Observation & Coverage Endpoints:
//
//	POST /v1/observations - Record a structured screen observation
//	POST /v1/coverage/samples - Record a coverage percentage sample
//	GET  /v1/coverage/recommendation - Current strategy recommendation
//	GET  /v1/coverage/graph - Activity transition graph
//	GET  /v1/coverage/summary - Coverage counters
//
// Failure Endpoints:
//
//	POST /v1/failures/crash - Report a crash
//	POST /v1/failures/anr - Report an ANR
//	GET  /v1/failures/reports - Failure-analysis export
//
// Performance Endpoints:
//
//	POST /v1/perf/samples - Record a performance sample
//
// Init-Sequence Endpoints:
//
//	POST /v1/init/:package - Run the package's init sequence
//	GET  /v1/sequences - List registered packages
//	GET  /v1/sequences/:package - Export one registered sequence
//
// Session Endpoints:
//
//	GET  /v1/session - Session status snapshot
//	POST /v1/session/reset - Rotate to a fresh session
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	events := rg.Group("/events")
	{
		events.POST("", handlers.HandleIngestEvents)
		events.GET("/export", handlers.HandleExportEvents)
		events.GET("/stream", handlers.HandleEventStream)
	}

	rg.POST("/observations", handlers.HandleObservation)

	coverage := rg.Group("/coverage")
	{
		coverage.POST("/samples", handlers.HandleCoverageSample)
		coverage.GET("/recommendation", handlers.HandleRecommendation)
		coverage.GET("/graph", handlers.HandleCoverageGraph)
		coverage.GET("/summary", handlers.HandleCoverageSummary)
	}

	failures := rg.Group("/failures")
	{
		failures.POST("/crash", handlers.HandleCrash)
		failures.POST("/anr", handlers.HandleANR)
		failures.GET("/reports", handlers.HandleFailureReports)
	}

	rg.POST("/perf/samples", handlers.HandlePerfSample)

	rg.POST("/init/:package", handlers.HandleInit)
	sequences := rg.Group("/sequences")
	{
		sequences.GET("", handlers.HandleListSequences)
		sequences.GET("/:package", handlers.HandleGetSequence)
	}

	sess := rg.Group("/session")
	{
		sess.GET("", handlers.HandleSessionStatus)
		sess.POST("/reset", handlers.HandleSessionReset)
	}
}
