// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Saher-Elsayed/SMATA/services/harness/event"
)

// defaultSwitchInterval paces the recommendation poller when the caller
// passes a non-positive interval.
const defaultSwitchInterval = 30 * time.Second

var (
	// ErrNilDriver is returned when Run is called without a driver.
	ErrNilDriver = errors.New("session: nil tool driver")

	// ErrInitFailed is returned when the app's init sequence halts on a
	// required step, so the exploration run never starts.
	ErrInitFailed = errors.New("session: init sequence failed")
)

// RunStats aggregates one finite exploration run.
type RunStats struct {
	AppID        string  `json:"app_id"`
	Events       int     `json:"events"`
	ToolSwitches int     `json:"tool_switches"`
	Elapsed      float64 `json:"elapsed_seconds"`
}

// ToolDriver is the external exploration engine: it owns the devices,
// the tool-switching schedule, and the interaction primitives. The
// session supplies initialization, observation, and analysis around it.
//
// AllEvents returns the run's full raw event list for post-hoc
// ingestion. Drivers that already push events live through the HTTP API
// should return nil here, otherwise the run would be ingested twice.
type ToolDriver interface {
	Run(ctx context.Context, appID string, duration, switchInterval time.Duration) (RunStats, error)
	AllEvents() []event.Raw
}

// Run executes one time-bounded exploration of an app: the registered
// init sequence first, then the driver, with a recommendation poller
// ticking at the switch interval so strategy changes are visible in the
// log and the coverage gauges while the run is in flight. When the
// driver finishes cleanly its remaining events are ingested post-hoc.
//
// The driver and the poller share an errgroup context: a driver error or
// the run deadline cancels both.
func (s *Session) Run(ctx context.Context, driver ToolDriver, appID string, duration, switchInterval time.Duration) (RunStats, error) {
	if driver == nil {
		return RunStats{}, ErrNilDriver
	}
	if switchInterval <= 0 {
		switchInterval = defaultSwitchInterval
	}

	initRes := s.Initialize(ctx, appID)
	if !initRes.Success {
		return RunStats{}, fmt.Errorf("%w: package %s: %d step errors", ErrInitFailed, appID, len(initRes.Errors))
	}

	runCtx := ctx
	if duration > 0 {
		// One extra interval of slack so a driver that stops on its own
		// deadline is not raced by ours.
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, duration+switchInterval)
		defer cancel()
	}

	s.logger.Info("exploration run starting",
		"session_id", s.log.SessionID(),
		"app_id", appID,
		"duration_seconds", duration.Seconds(),
		"switch_interval_seconds", switchInterval.Seconds())

	var stats RunStats
	g, gCtx := errgroup.WithContext(runCtx)
	pollCtx, stopPolling := context.WithCancel(gCtx)
	defer stopPolling()

	g.Go(func() error {
		defer stopPolling()
		var err error
		stats, err = driver.Run(gCtx, appID, duration, switchInterval)
		if err != nil {
			return fmt.Errorf("tool driver: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(switchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return nil
			case <-ticker.C:
				rec := s.Recommend()
				s.logger.Info("strategy recommendation",
					"app_id", appID,
					"strategy", rec.Strategy,
					"exploration_ratio", rec.ExplorationRatio,
					"underexplored", len(rec.Underexplored))
			}
		}
	})

	if err := g.Wait(); err != nil {
		return RunStats{}, err
	}

	ingested := s.Ingest(ctx, driver.AllEvents())
	s.logger.Info("exploration run finished",
		"session_id", s.log.SessionID(),
		"app_id", appID,
		"driver_events", stats.Events,
		"tool_switches", stats.ToolSwitches,
		"ingested", len(ingested))
	return stats, nil
}
