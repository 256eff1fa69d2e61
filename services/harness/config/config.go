// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates harness configuration.
//
// Two inputs live here: the harness YAML (server, storage, telemetry, and
// component capacities) and the per-app init-sequence library (JSON). Both
// loaders enforce file-size limits and reject unknown fields so a typo'd
// key fails at startup instead of silently using a default.
//
// Thread Safety:
//
//	Loading returns fresh values; the watcher serializes reloads on a
//	single goroutine.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants
// =============================================================================

// MaxConfigFileSize is the maximum allowed configuration file size (1MB).
// Prevents memory issues from accidentally pointing the loader at a large
// file.
const MaxConfigFileSize = 1024 * 1024

// =============================================================================
// Validator Instance
// =============================================================================

// configValidate is the validator instance for configuration structs.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// =============================================================================
// OTel Tracer
// =============================================================================

var configTracer = otel.Tracer("smata.harness.config")

// =============================================================================
// Types
// =============================================================================

// Config is the root harness configuration.
type Config struct {
	Server        ServerConfig    `yaml:"server"`
	Logging       LoggingConfig   `yaml:"logging"`
	Storage       StorageConfig   `yaml:"storage"`
	Journal       JournalConfig   `yaml:"journal"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Influx        InfluxConfig    `yaml:"influx"`
	Harness       HarnessConfig   `yaml:"harness"`
	SequencesPath string          `yaml:"sequences_path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	ListenAddr         string `yaml:"listen_addr" validate:"required"`
	ReadTimeoutSec     int    `yaml:"read_timeout_sec" validate:"gte=0"`
	WriteTimeoutSec    int    `yaml:"write_timeout_sec" validate:"gte=0"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec" validate:"gte=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
	Quiet bool   `yaml:"quiet"`
}

// StorageConfig configures the report store.
type StorageConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// JournalConfig configures the append-only event journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// TelemetryConfig configures trace and metric export.
type TelemetryConfig struct {
	Traces       string  `yaml:"traces" validate:"omitempty,oneof=none stdout otlp"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Metrics      string  `yaml:"metrics" validate:"omitempty,oneof=none stdout prometheus"`
	SampleRatio  float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// InfluxConfig configures the performance-sample sink.
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" validate:"omitempty,url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// HarnessConfig sets component capacities and timing. Zero values mean
// "use the component default".
type HarnessConfig struct {
	WindowCapacity  int `yaml:"window_capacity" validate:"gte=0"`
	SampleCapacity  int `yaml:"sample_capacity" validate:"gte=0"`
	ExecLogCapacity int `yaml:"exec_log_capacity" validate:"gte=0"`
	RetryBackoffMS  int `yaml:"retry_backoff_ms" validate:"gte=0"`
}

// =============================================================================
// Defaults & Validation
// =============================================================================

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:         ":8089",
			ReadTimeoutSec:     15,
			WriteTimeoutSec:    30,
			ShutdownTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Dir: "~/.smata/data",
		},
		Journal: JournalConfig{
			Enabled: true,
			Dir:     "~/.smata/journal",
		},
		Telemetry: TelemetryConfig{
			Traces:       "none",
			OTLPEndpoint: "localhost:4317",
			Metrics:      "prometheus",
			SampleRatio:  1.0,
		},
		Influx: InfluxConfig{
			URL:    "http://localhost:8086",
			Org:    "smata",
			Bucket: "perf",
		},
	}
}

// EnsureDefaults fills fields the file left empty.
func (c *Config) EnsureDefaults() {
	def := Default()
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = def.Server.ListenAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = def.Storage.Dir
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = def.Journal.Dir
	}
	if c.Telemetry.Traces == "" {
		c.Telemetry.Traces = def.Telemetry.Traces
	}
	if c.Telemetry.Metrics == "" {
		c.Telemetry.Metrics = def.Telemetry.Metrics
	}
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = def.Telemetry.OTLPEndpoint
	}
	if c.Influx.URL == "" {
		c.Influx.URL = def.Influx.URL
	}
}

// Validate checks the configuration against its validation tags.
func (c *Config) Validate() error {
	return configValidate.Struct(c)
}

// =============================================================================
// Loading
// =============================================================================

// Load reads, defaults, and validates the harness configuration. An empty
// path returns the defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	_, span := configTracer.Start(ctx, "config.Load")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := readLimited(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, fmt.Errorf("load config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}

	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return &cfg, nil
}

// readLimited reads a configuration file with path and size checks.
func readLimited(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if strings.Contains(absPath, "..") {
		return nil, fmt.Errorf("path traversal not allowed: %s", absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileSize)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}
