// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// waitEntries polls the exporter until it holds at least n entries or the
// deadline passes. Export is asynchronous, so tests cannot read the buffer
// immediately after logging.
func waitEntries(t *testing.T, e *BufferedExporter, n int) []LogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries := e.Entries()
		if len(entries) >= n {
			return entries
		}
		time.Sleep(5 * time.Millisecond)
	}
	return e.Entries()
}

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	if !(LevelDebug < LevelInfo && LevelInfo < LevelWarn && LevelWarn < LevelError) {
		t.Error("levels must be ordered Debug < Info < Warn < Error")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{" Debug ", LevelDebug},
		{"", LevelInfo},
		{"verbose", LevelInfo}, // unknown falls back to Info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Constructor Tests
// =============================================================================

func TestNew_ZeroConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_AllLevels(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		t.Run(level.String(), func(t *testing.T) {
			logger := New(Config{Level: level, Quiet: true})
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			defer logger.Close()
		})
	}
}

func TestNew_WithService(t *testing.T) {
	logger := New(Config{Service: "smatad", Quiet: true})
	defer logger.Close()

	if logger.config.Service != "smatad" {
		t.Errorf("Service = %v, want smatad", logger.config.Service)
	}
}

func TestNew_QuietMode(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	// Quiet with no file still needs a working handler.
	if logger.slog == nil {
		t.Error("logger.slog is nil in quiet mode")
	}
	logger.Info("discarded")
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "smatad",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("logger.file is nil when LogDir specified")
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(files))
	}
	if !strings.HasPrefix(files[0].Name(), "smatad_") || !strings.HasSuffix(files[0].Name(), ".log") {
		t.Errorf("unexpected log file name %q", files[0].Name())
	}
}

func TestNew_WithLogDir_DefaultServiceName(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "smata_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected log file with 'smata_' prefix when Service is empty")
	}
}

func TestNew_WithLogDir_UncreatablePath(t *testing.T) {
	logger := New(Config{
		LogDir: "/proc/nonexistent/deep/path",
		Quiet:  true,
	})
	defer logger.Close()

	// Falls back to the remaining destinations instead of failing.
	if logger.file != nil {
		t.Error("logger.file should be nil when the directory cannot be created")
	}
	logger.Info("still works")
}

func TestNew_WithExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Exporter: exporter, Quiet: true})
	defer logger.Close()

	if logger.exporter == nil {
		t.Error("logger.exporter is nil")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "smata" {
		t.Errorf("Default service = %v, want smata", logger.config.Service)
	}
}

// =============================================================================
// Logger Method Tests
// =============================================================================

func TestLogger_Debug(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelDebug,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("new activity discovered", "activity", "com.example.app/.MainActivity")

	entries := waitEntries(t, exporter, 1)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelDebug {
		t.Errorf("Level = %v, want LevelDebug", entries[0].Level)
	}
	if entries[0].Message != "new activity discovered" {
		t.Errorf("Message = %v", entries[0].Message)
	}
}

func TestLogger_Info_Attrs(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Info("crash recorded", "crash_id", "crash_0001", "events", 42)

	entries := waitEntries(t, exporter, 1)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Attrs["crash_id"] != "crash_0001" {
		t.Errorf("Attrs[crash_id] = %v", entries[0].Attrs["crash_id"])
	}
	if entries[0].Attrs["events"] != 42 {
		t.Errorf("Attrs[events] = %v, want 42", entries[0].Attrs["events"])
	}
}

func TestLogger_WarnAndError(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Warn("init step attempt failed", "attempt", 2)
	logger.Error("journal write failed", "error", "disk full")

	entries := waitEntries(t, exporter, 2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	levels := map[Level]bool{}
	for _, e := range entries {
		levels[e.Level] = true
	}
	if !levels[LevelWarn] || !levels[LevelError] {
		t.Errorf("expected one Warn and one Error entry, got %v", levels)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	entries := waitEntries(t, exporter, 2)
	if len(entries) != 2 {
		t.Errorf("expected 2 exported entries (Warn+Error), got %d", len(entries))
	}
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	sessionLogger := logger.With("session_id", "session_1700000000")
	if sessionLogger == nil {
		t.Fatal("With() returned nil")
	}

	sessionLogger.Info("observation loop started")

	entries := waitEntries(t, exporter, 1)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].Attrs["session_id"]; got != "session_1700000000" {
		t.Errorf("exported session_id = %v, want session_1700000000", got)
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "smatad",
		Quiet:   true,
	})
	defer logger.Close()

	child := logger.With("component", "correlator")
	if child.file != logger.file {
		t.Error("child logger should share the parent's file handle")
	}
	if child.exporter != logger.exporter {
		t.Error("child logger should share the parent's exporter")
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.Slog() == nil {
		t.Error("Slog() returned nil")
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("event appended", "event_id", n)
		}(i)
	}
	wg.Wait()

	entries := waitEntries(t, exporter, 100)
	if len(entries) != 100 {
		t.Errorf("expected 100 entries, got %d", len(entries))
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestLogger_Close_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "smatad",
		Quiet:   true,
	})

	logger.Info("session reset", "previous_events", 7)

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}

	// The handle is closed; further writes must fail.
	if logger.file != nil {
		if _, writeErr := logger.file.WriteString("late"); writeErr == nil {
			t.Error("expected write error after Close()")
		}
	}
}

func TestLogger_Close_FlushError(t *testing.T) {
	exporter := &errorExporter{flushErr: errors.New("flush failed")}
	logger := New(Config{Exporter: exporter, Quiet: true})

	err := logger.Close()
	if err == nil {
		t.Fatal("expected error from Close()")
	}
	if !strings.Contains(err.Error(), "flush exporter") {
		t.Errorf("error should mention 'flush exporter': %v", err)
	}
}

func TestLogger_Close_CloseError(t *testing.T) {
	exporter := &errorExporter{closeErr: errors.New("close failed")}
	logger := New(Config{Exporter: exporter, Quiet: true})

	if err := logger.Close(); err == nil {
		t.Error("expected error from Close()")
	}
}

func TestLogger_Close_FirstErrorWins(t *testing.T) {
	exporter := &errorExporter{
		flushErr: errors.New("flush failed"),
		closeErr: errors.New("close failed"),
	}
	logger := New(Config{Exporter: exporter, Quiet: true})

	err := logger.Close()
	if err == nil {
		t.Fatal("expected error from Close()")
	}
	if !strings.Contains(err.Error(), "flush") {
		t.Errorf("expected the flush error first: %v", err)
	}
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h1 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	// Enabled when any child accepts the level.
	if !mh.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Debug should be enabled via the debug handler")
	}
	if !mh.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("Warn should be enabled")
	}
}

func TestMultiHandler_Enabled_NoneAccept(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})
	mh := &multiHandler{handlers: []slog.Handler{h}}

	if mh.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Debug should not be enabled when the only handler wants Error")
	}
}

func TestMultiHandler_Handle_FansOut(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&buf1, opts),
		slog.NewTextHandler(&buf2, opts),
	}}

	record := slog.Record{Level: slog.LevelInfo, Message: "anr detected"}
	if err := mh.Handle(context.Background(), record); err != nil {
		t.Fatalf("Handle() returned error: %v", err)
	}

	if buf1.Len() == 0 || buf2.Len() == 0 {
		t.Error("both destinations should receive the record")
	}
}

func TestMultiHandler_Handle_RespectsChildLevels(t *testing.T) {
	var debugBuf, errorBuf bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}}

	record := slog.Record{Level: slog.LevelInfo, Message: "coverage sample"}
	_ = mh.Handle(context.Background(), record)

	if debugBuf.Len() == 0 {
		t.Error("debug handler should receive Info records")
	}
	if errorBuf.Len() != 0 {
		t.Error("error-level handler should skip Info records")
	}
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{slog.NewTextHandler(&buf, nil)}}

	withAttrs := mh.WithAttrs([]slog.Attr{slog.String("service", "smatad")})
	if _, ok := withAttrs.(*multiHandler); !ok {
		t.Error("WithAttrs() should return *multiHandler")
	}

	withGroup := mh.WithGroup("harness")
	if _, ok := withGroup.(*multiHandler); !ok {
		t.Error("WithGroup() should return *multiHandler")
	}
}

func TestMultiHandler_Handle_PropagatesError(t *testing.T) {
	mh := &multiHandler{handlers: []slog.Handler{
		&errorHandler{err: errors.New("handler error")},
	}}

	record := slog.Record{Level: slog.LevelInfo}
	if err := mh.Handle(context.Background(), record); err == nil {
		t.Error("expected error from Handle()")
	}
}

func TestMultiHandler_Empty(t *testing.T) {
	mh := &multiHandler{}

	if mh.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("empty multiHandler should not be enabled")
	}
	if err := mh.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("Handle() on empty handler returned error: %v", err)
	}
}

// =============================================================================
// Helper Function Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~/.smata/logs", filepath.Join(home, ".smata/logs")},
		{"~", home},
		{"/var/log/smata", "/var/log/smata"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want map[string]any
	}{
		{
			name: "empty",
			args: []any{},
			want: map[string]any{},
		},
		{
			name: "single pair",
			args: []any{"session_id", "session_42"},
			want: map[string]any{"session_id": "session_42"},
		},
		{
			name: "mixed types",
			args: []any{"activity", "MainActivity", "visits", 3, "explored", true},
			want: map[string]any{"activity": "MainActivity", "visits": 3, "explored": true},
		},
		{
			name: "dangling key dropped",
			args: []any{"crash_id", "crash_0001", "orphan"},
			want: map[string]any{"crash_id": "crash_0001"},
		},
		{
			name: "non-string key skipped",
			args: []any{42, "value", "valid", "kept"},
			want: map[string]any{"valid": "kept"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsToMap(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("argsToMap() len = %d, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("argsToMap()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	if err := e.Export(context.Background(), LogEntry{Message: "dropped"}); err != nil {
		t.Errorf("Export() returned error: %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() returned error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestBufferedExporter_Export(t *testing.T) {
	e := NewBufferedExporter()
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "report exported",
		Service:   "smatad",
		Attrs:     map[string]any{"report_id": "CRASH-0001"},
	}

	if err := e.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export() returned error: %v", err)
	}

	entries := e.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "report exported" {
		t.Errorf("Message = %v", entries[0].Message)
	}
	if entries[0].Service != "smatad" {
		t.Errorf("Service = %v", entries[0].Service)
	}
}

func TestBufferedExporter_Entries_ReturnsCopy(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "original"})

	first := e.Entries()
	second := e.Entries()
	first[0].Message = "mutated"

	if second[0].Message != "original" {
		t.Error("Entries() should return a copy, not shared backing storage")
	}
}

func TestBufferedExporter_ConcurrentAccess(t *testing.T) {
	e := NewBufferedExporter()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{Message: "msg"})
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Entries()
		}()
	}
	wg.Wait()

	if got := len(e.Entries()); got != 100 {
		t.Errorf("expected 100 entries, got %d", got)
	}
}

func TestWriterExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelWarn,
		Message:   "perf sink unavailable",
		Attrs:     map[string]any{"error": "connection refused"},
	}

	if err := e.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export() returned error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "perf sink unavailable") {
		t.Errorf("output should contain the message: %v", output)
	}
	if !strings.Contains(output, "WARN") {
		t.Errorf("output should contain the level: %v", output)
	}
}

func TestWriterExporter_ConcurrentAccess(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{Message: "msg"})
		}()
	}
	wg.Wait()

	if lines := strings.Count(buf.String(), "\n"); lines != 100 {
		t.Errorf("expected 100 lines, got %d", lines)
	}
}

// =============================================================================
// Error Handling Tests
// =============================================================================

// errorExporter returns configured errors from each method.
type errorExporter struct {
	exportErr error
	flushErr  error
	closeErr  error
}

func (e *errorExporter) Export(ctx context.Context, entry LogEntry) error { return e.exportErr }
func (e *errorExporter) Flush(ctx context.Context) error                  { return e.flushErr }
func (e *errorExporter) Close() error                                     { return e.closeErr }

// errorHandler is a slog.Handler whose Handle always fails.
type errorHandler struct {
	err error
}

func (h *errorHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }
func (h *errorHandler) Handle(ctx context.Context, r slog.Record) error    { return h.err }
func (h *errorHandler) WithAttrs(attrs []slog.Attr) slog.Handler           { return h }
func (h *errorHandler) WithGroup(name string) slog.Handler                 { return h }

func TestLogger_ExportErrorSilentlyDropped(t *testing.T) {
	exporter := &errorExporter{exportErr: errors.New("export failed")}
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	// Must not panic or surface the exporter error at the logging site.
	logger.Info("anr reported", "anr_id", "ANR-0001")
	time.Sleep(50 * time.Millisecond)
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestLogger_FullIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	exporter := NewBufferedExporter()

	logger := New(Config{
		Level:    LevelDebug,
		LogDir:   tmpDir,
		Service:  "smatad",
		Exporter: exporter,
		Quiet:    true,
	})

	logger.Debug("ui dump parsed", "elements", 14)
	logger.Info("sequence registered", "package", "com.example.app")
	logger.Warn("step retry scheduled", "attempt", 2)
	logger.Error("export failed", "error", "short write")

	child := logger.With("session_id", "session_7")
	child.Info("session closed")

	entries := waitEntries(t, exporter, 5)

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}

	if len(entries) != 5 {
		t.Errorf("expected 5 exported entries, got %d", len(entries))
	}

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Error("no log file created")
	}
}

func TestLogger_FileContentIsJSON(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "smatad",
		Quiet:   true,
	})

	logger.Info("crash recorded", "crash_id", "crash_0001")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("no log file created")
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	// File output is always JSON regardless of the stderr format.
	if !strings.Contains(string(content), "crash recorded") {
		t.Error("log file should contain the message")
	}
	if !strings.Contains(string(content), "\"crash_id\":\"crash_0001\"") {
		t.Error("log file should contain the attribute as JSON")
	}
	if !strings.Contains(string(content), "\"service\":\"smatad\"") {
		t.Error("log file should carry the service attribute")
	}
}
