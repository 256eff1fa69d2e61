// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package perfsink streams performance samples to InfluxDB.
//
// # Description
//
// The sink turns recorder perf samples (memory, CPU, FPS, battery) into
// time-series points in a configured bucket, tagged with the session id so
// per-session dashboards can be built in Grafana. Writes are blocking and
// bounded by the caller's context; the recorder already caps each write
// with its own timeout and treats failures as non-fatal.
//
// # Thread Safety
//
// Sink is safe for concurrent use. The session tag is guarded by a mutex
// so Reset can swap it while samples are in flight.
package perfsink

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/recorder"
)

// measurement is the InfluxDB measurement name for perf samples.
const measurement = "perf_sample"

// Config holds the InfluxDB connection settings.
type Config struct {
	URL    string `yaml:"url" json:"url"`
	Token  string `yaml:"token" json:"token"`
	Org    string `yaml:"org" json:"org"`
	Bucket string `yaml:"bucket" json:"bucket"`
}

// Sink writes performance samples to InfluxDB. It implements
// recorder.PerfSink.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *logging.Logger

	mu      sync.Mutex
	session string
}

var _ recorder.PerfSink = (*Sink)(nil)

// New connects a Sink to the configured InfluxDB instance. The connection
// is lazy; use Ready to verify the server is reachable.
func New(cfg Config, logger *logging.Logger) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("influxdb url is required")
	}
	if cfg.Org == "" {
		return nil, fmt.Errorf("influxdb org is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("influxdb bucket is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Sink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger:   logger.With("component", "perfsink"),
	}, nil
}

// NewWithWriteAPI builds a Sink around an existing write API. Used by tests
// and by callers that manage the client themselves.
func NewWithWriteAPI(writeAPI api.WriteAPIBlocking, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sink{
		writeAPI: writeAPI,
		logger:   logger.With("component", "perfsink"),
	}
}

// Ready reports whether the InfluxDB server answers its health check.
func (s *Sink) Ready(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("influxdb not ready: status %s", health.Status)
	}
	return nil
}

// SetSession changes the session tag applied to subsequent points.
func (s *Sink) SetSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = id
}

// WriteSample writes one perf sample as a point. A zero timestamp is
// replaced with the current time so the point is never written at the
// epoch.
func (s *Sink) WriteSample(ctx context.Context, sample recorder.PerfSample) error {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{}
	if session != "" {
		tags["session"] = session
	}

	p := influxdb2.NewPoint(
		measurement,
		tags,
		map[string]interface{}{
			"memory_mb":       sample.MemoryMB,
			"cpu_percent":     sample.CPUPercent,
			"fps":             sample.FPS,
			"battery_percent": sample.BatteryPercent,
		},
		ts,
	)

	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write perf point: %w", err)
	}
	return nil
}

// Close releases the underlying client. Safe to call when the Sink was
// built around an injected write API.
func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
