// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command smatad starts the SMATA harness daemon.
//
// The daemon hosts the observation and failure-analysis pipeline for
// exploratory mobile-app testing:
//   - Append-only event log with deterministic replay fingerprints
//   - State recorder for transitions, crashes, ANRs, and perf samples
//   - Coverage model producing adaptive exploration recommendations
//   - Failure correlator with severity triage and repro step extraction
//   - Init sequencer for scripted app warm-up
//
// Usage:
//
//	go run ./cmd/smatad
//	go run ./cmd/smatad -config harness.yaml
//	go run ./cmd/smatad -listen :9090 -debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8089/health
//
//	# Ingest a batch of tool events
//	curl -X POST http://localhost:8089/v1/events \
//	  -H "Content-Type: application/json" \
//	  -d '{"events": [{"source": "monkey", "type": "touch", "details": {"target": "btn_login"}}]}'
//
//	# Current exploration recommendation
//	curl http://localhost:8089/v1/coverage/recommendation | jq
//
//	# Export the session as replayable JSON
//	curl "http://localhost:8089/v1/events/export?format=json" | jq
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/api"
	"github.com/Saher-Elsayed/SMATA/services/harness/config"
	"github.com/Saher-Elsayed/SMATA/services/harness/event"
	"github.com/Saher-Elsayed/SMATA/services/harness/observability"
	"github.com/Saher-Elsayed/SMATA/services/harness/perfsink"
	"github.com/Saher-Elsayed/SMATA/services/harness/session"
	"github.com/Saher-Elsayed/SMATA/services/harness/storage"
	"github.com/Saher-Elsayed/SMATA/services/harness/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file (empty = built-in defaults)")
	listen := flag.String("listen", "", "Listen address override, e.g. :9090")
	debug := flag.Bool("debug", false, "Enable debug mode (Gin request logging, debug log level)")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smatad: load config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if *debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "smatad",
		JSON:    cfg.Logging.JSON,
		Quiet:   cfg.Logging.Quiet,
	})

	// Set Gin mode
	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	err = run(ctx, cfg, logger, *debug)
	if closeErr := logger.Close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "smatad: close logger: %v\n", closeErr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// run wires the pipeline, serves it, and tears it down in order. Errors are
// logged where they occur; the returned error only signals the exit code.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, debug bool) error {
	// Telemetry first so every later component can create spans.
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = "smatad"
	tcfg.ServiceVersion = api.ServiceVersion
	tcfg.TraceExporter = cfg.Telemetry.Traces
	tcfg.MetricExporter = cfg.Telemetry.Metrics
	tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	tcfg.SampleRate = cfg.Telemetry.SampleRatio
	telemetryShutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		logger.Error("telemetry init failed", "error", err.Error())
		return err
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err.Error())
		}
	}()

	metrics := observability.InitMetrics()

	// Report store. Badger on disk by default, in-memory for ephemeral runs.
	store, err := storage.OpenStore(storage.StoreOptions{
		Dir:      expandPath(cfg.Storage.Dir),
		InMemory: cfg.Storage.InMemory,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("report store open failed", "error", err.Error())
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("report store close failed", "error", err.Error())
		}
	}()

	// Perf sink is optional; the recorder keeps its own rolling window
	// either way, InfluxDB just adds durable time series.
	var sink *perfsink.Sink
	if cfg.Influx.Enabled {
		sink, err = perfsink.New(perfsink.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, logger)
		if err != nil {
			logger.Error("perf sink init failed", "error", err.Error())
			return err
		}
		defer sink.Close()

		readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := sink.Ready(readyCtx); err != nil {
			logger.Warn("influxdb not reachable, perf writes will fail until it is",
				"url", cfg.Influx.URL, "error", err.Error())
		}
		cancel()
	}

	hub := api.NewHub(logger)

	var journalDir string
	if cfg.Journal.Enabled {
		journalDir = expandPath(cfg.Journal.Dir)
	}

	opts := session.Options{
		Logger:          logger,
		WindowCapacity:  cfg.Harness.WindowCapacity,
		SampleCapacity:  cfg.Harness.SampleCapacity,
		ExecLogCapacity: cfg.Harness.ExecLogCapacity,
		RetryBackoff:    time.Duration(cfg.Harness.RetryBackoffMS) * time.Millisecond,
		JournalDir:      journalDir,
		Store:           store,
		Metrics:         metrics,
	}
	if sink != nil {
		opts.PerfSink = sink
	}

	// The hub stamps frames with the live session ID and the session needs
	// the broadcast hook at construction, so the reference is bound late.
	var sess *session.Session
	opts.OnEvents = func(events []event.Event) {
		hub.Broadcast(sess.SessionID(), events)
	}

	sess, err = session.New(opts)
	if err != nil {
		logger.Error("session init failed", "error", err.Error())
		return err
	}

	if cfg.SequencesPath != "" {
		count, err := config.RegisterSequences(ctx, cfg.SequencesPath, sess.Sequencer())
		if err != nil {
			logger.Error("init sequence load failed", "path", cfg.SequencesPath, "error", err.Error())
			return err
		}
		logger.Info("init sequences loaded", "path", cfg.SequencesPath, "count", count)

		watcher, err := config.NewWatcher(cfg.SequencesPath, 0, logger, func() {
			n, err := config.RegisterSequences(context.Background(), cfg.SequencesPath, sess.Sequencer())
			if err != nil {
				logger.Warn("init sequence reload failed", "error", err.Error())
				return
			}
			logger.Info("init sequences reloaded", "count", n)
		})
		if err != nil {
			logger.Warn("sequence watcher unavailable, edits require a restart", "error", err.Error())
		} else {
			watchCtx, stopWatch := context.WithCancel(ctx)
			defer stopWatch()
			go watcher.Start(watchCtx)
			defer func() {
				if err := watcher.Stop(); err != nil {
					logger.Warn("sequence watcher stop failed", "error", err.Error())
				}
			}()
		}
	}

	router := api.NewRouter(api.Deps{
		Session:        sess,
		Hub:            hub,
		Metrics:        metrics,
		MetricsHandler: telemetry.MetricsHandler(),
		Debug:          debug,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	// Print startup banner
	printBanner(cfg.Server.ListenAddr, sess.SessionID(), cfg.Storage.InMemory, cfg.Influx.Enabled)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("harness daemon listening",
			"addr", cfg.Server.ListenAddr, "session_id", sess.SessionID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", "error", err.Error())
			return err
		}
		return nil
	case <-sigCtx.Done():
	}

	logger.Info("shutdown signal received")

	shCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	// Drain HTTP first, then streams, then the session, so the persisted
	// summary covers every request that made it in.
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err.Error())
	}
	hub.Close()
	if err := sess.Close(shCtx); err != nil {
		logger.Warn("session close failed", "error", err.Error())
	}

	logger.Info("harness daemon stopped")
	return nil
}

// expandPath resolves a leading "~/" against the user's home directory so
// config defaults like "~/.smata/data" work without shell expansion.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func printBanner(addr, sessionID string, inMemory, influx bool) {
	storeMode := "badger (disk)"
	if inMemory {
		storeMode = "in-memory"
	}
	perfMode := "disabled"
	if influx {
		perfMode = "influxdb"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                       SMATA HARNESS DAEMON                        ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Adaptive observation & failure analysis for app exploration.     ║
║  Session:  %-38s             ║
║  Store:    %-13s  Perf sink: %-10s              ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost%s/health                            │  ║
║  │                                                             │  ║
║  │ # Ingest tool events                                        │  ║
║  │ curl -X POST http://localhost%s/v1/events \               │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"events": [{"source": "monkey", "type": "touch"}]}'  │  ║
║  │                                                             │  ║
║  │ # Exploration recommendation                                │  ║
║  │ curl http://localhost%s/v1/coverage/recommendation | jq   │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Events:   POST /v1/events, /export, /stream (websocket)     ║
║  ├── Coverage: /samples, /recommendation, /graph, /summary       ║
║  ├── Failures: /crash, /anr, /reports                            ║
║  ├── Init:     POST /v1/init/:package, GET /v1/sequences         ║
║  └── Session:  GET /v1/session, POST /v1/session/reset           ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, sessionID, storeMode, perfMode, addr, addr, addr)
}
