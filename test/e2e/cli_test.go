// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package e2e

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Saher-Elsayed/SMATA/services/harness/event"
	"github.com/Saher-Elsayed/SMATA/services/harness/eventlog"
)

// writeExportFixture builds a small verified event export on disk.
func writeExportFixture(t *testing.T, dir string) string {
	t.Helper()
	events := []event.Event{
		{ID: 1, Timestamp: time.Unix(100, 0), Source: "monkey", Type: event.TypeTouch,
			Details: map[string]string{"x": "120", "y": "840", "target": "btn_login"}},
		{ID: 2, Timestamp: time.Unix(101, 0), Source: "monkey", Type: event.TypeTextInput,
			Details: map[string]string{"text": "tester"}},
	}
	exp := eventlog.Export{
		SessionID:   "fixture00001",
		Fingerprint: eventlog.FingerprintEvents(events),
		EventCount:  len(events),
		Events:      events,
	}
	data, err := json.Marshal(exp)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(dir, "export.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// exitCode extracts the process exit code from exec.Command's error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// TestFingerprint_VerifyAndTamper covers exit codes 0, 1, and 2 through
// the built binary.
func TestFingerprint_VerifyAndTamper(t *testing.T) {
	// 1. Setup
	dir := t.TempDir()
	path := writeExportFixture(t, dir)

	// 2. The untouched export verifies
	out, err := exec.Command(cliBinary, "fingerprint", path).CombinedOutput()
	if code := exitCode(err); code != 0 {
		t.Fatalf("exit = %d, want 0\nOutput: %s", code, out)
	}
	if !strings.Contains(string(out), "MATCH") {
		t.Errorf("output missing MATCH verdict:\n%s", out)
	}

	// 3. Tampering with an event detail breaks verification
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	tampered := strings.Replace(string(raw), `"tester"`, `"intruder"`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("write tampered fixture: %v", err)
	}

	out, err = exec.Command(cliBinary, "fingerprint", path).CombinedOutput()
	if code := exitCode(err); code != 1 {
		t.Fatalf("exit = %d, want 1\nOutput: %s", code, out)
	}
	if !strings.Contains(string(out), "MISMATCH") {
		t.Errorf("output missing MISMATCH verdict:\n%s", out)
	}

	// 4. An unreadable file is an error, not a finding
	out, err = exec.Command(cliBinary, "fingerprint", filepath.Join(dir, "missing.json")).CombinedOutput()
	if code := exitCode(err); code != 2 {
		t.Fatalf("exit = %d, want 2\nOutput: %s", code, out)
	}
}

// TestReplay_WritesScript runs replay synthesis offline and checks the
// emitted script step by step.
func TestReplay_WritesScript(t *testing.T) {
	dir := t.TempDir()
	path := writeExportFixture(t, dir)
	outPath := filepath.Join(dir, "replay.json")

	out, err := exec.Command(cliBinary, "replay", path, "-o", outPath).CombinedOutput()
	if code := exitCode(err); code != 0 {
		t.Fatalf("exit = %d, want 0\nOutput: %s", code, out)
	}
	if !strings.Contains(string(out), "Wrote 3 steps") {
		t.Errorf("output missing step count:\n%s", out)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read replay script: %v", err)
	}
	var script eventlog.ReplayScript
	if err := json.Unmarshal(data, &script); err != nil {
		t.Fatalf("parse replay script: %v", err)
	}

	if script.SessionID != "fixture00001" {
		t.Errorf("SessionID = %s, want fixture00001", script.SessionID)
	}
	// tap, one second of sleep, then the typed text
	if len(script.Steps) != 3 {
		t.Fatalf("Steps = %d, want 3", len(script.Steps))
	}
	if script.Steps[0].Action != "tap" || script.Steps[0].X != 120 || script.Steps[0].Y != 840 {
		t.Errorf("Steps[0] = %+v, want tap at 120,840", script.Steps[0])
	}
	if script.Steps[1].Action != "sleep" || script.Steps[1].Seconds != 1.0 {
		t.Errorf("Steps[1] = %+v, want 1s sleep", script.Steps[1])
	}
	if script.Steps[2].Action != "text" || script.Steps[2].Text != "tester" {
		t.Errorf("Steps[2] = %+v, want text fixture", script.Steps[2])
	}
}

// TestSequencesValidate_ExitCodes covers the validate verdicts through the
// built binary.
func TestSequencesValidate_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	valid := `{"apps": {"Shop": {"package": "com.example.shop", "init_sequence": [{"type": "click", "target": "skip"}]}}}`

	validPath := filepath.Join(dir, "valid.json")
	if err := os.WriteFile(validPath, []byte(valid), 0o644); err != nil {
		t.Fatalf("write library: %v", err)
	}
	out, err := exec.Command(cliBinary, "sequences", "validate", validPath).CombinedOutput()
	if code := exitCode(err); code != 0 {
		t.Fatalf("exit = %d, want 0\nOutput: %s", code, out)
	}
	if strings.Contains(string(out), "INVALID") {
		t.Errorf("valid library reported invalid:\n%s", out)
	}

	invalidPath := filepath.Join(dir, "invalid.json")
	invalid := strings.Replace(valid, `"click"`, `"teleport"`, 1)
	if err := os.WriteFile(invalidPath, []byte(invalid), 0o644); err != nil {
		t.Fatalf("write library: %v", err)
	}
	out, err = exec.Command(cliBinary, "sequences", "validate", invalidPath).CombinedOutput()
	if code := exitCode(err); code != 1 {
		t.Fatalf("exit = %d, want 1\nOutput: %s", code, out)
	}
	if !strings.Contains(string(out), "INVALID") {
		t.Errorf("output missing INVALID verdict:\n%s", out)
	}

	out, err = exec.Command(cliBinary, "sequences", "validate", filepath.Join(dir, "missing.json")).CombinedOutput()
	if code := exitCode(err); code != 2 {
		t.Fatalf("exit = %d, want 2\nOutput: %s", code, out)
	}
}

// TestStatus_DaemonUnreachable checks the error path when no daemon is
// listening at the configured address.
func TestStatus_DaemonUnreachable(t *testing.T) {
	cmd := exec.Command(cliBinary, "status")
	cmd.Env = append(os.Environ(), "SMATA_HARNESS_URL=http://127.0.0.1:9")
	out, err := cmd.CombinedOutput()
	if code := exitCode(err); code != 2 {
		t.Fatalf("exit = %d, want 2\nOutput: %s", code, out)
	}
	if !strings.Contains(string(out), "is smatad running") {
		t.Errorf("output missing daemon hint:\n%s", out)
	}
}

// TestVersion prints the CLI version.
func TestVersion(t *testing.T) {
	out, err := exec.Command(cliBinary, "version").CombinedOutput()
	if code := exitCode(err); code != 0 {
		t.Fatalf("exit = %d, want 0\nOutput: %s", code, out)
	}
	if !strings.HasPrefix(string(out), "smata ") {
		t.Errorf("output = %q, want smata version line", out)
	}
}
