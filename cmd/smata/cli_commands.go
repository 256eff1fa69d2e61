// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/services/harness/config"
	"github.com/Saher-Elsayed/SMATA/services/harness/correlator"
	"github.com/Saher-Elsayed/SMATA/services/harness/eventlog"
	"github.com/Saher-Elsayed/SMATA/services/harness/sequencer"
	"github.com/Saher-Elsayed/SMATA/services/harness/session"
)

// cliVersion tracks the daemon version; the two are released together.
const cliVersion = "0.1.0"

// Default daemon address, matching the daemon's default listen address.
const (
	DefaultHarnessHost = "localhost"
	DefaultHarnessPort = 8089
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// FileFingerprint is one export's identity in fingerprint output.
type FileFingerprint struct {
	Path       string `json:"path"`
	SessionID  string `json:"session_id"`
	EventCount int    `json:"event_count"`
	Recorded   string `json:"recorded_fingerprint,omitempty"`
	Computed   string `json:"computed_fingerprint"`
}

// FingerprintResult holds fingerprint verification output.
type FingerprintResult struct {
	Files []FileFingerprint `json:"files"`
	Match bool              `json:"match"`
}

// SequenceProblem is one invalid sequence in validation output.
type SequenceProblem struct {
	Package string `json:"package,omitempty"`
	Error   string `json:"error"`
}

// SequenceValidationResult holds sequence-library validation output.
type SequenceValidationResult struct {
	Path     string            `json:"path"`
	Apps     int               `json:"apps"`
	Valid    bool              `json:"valid"`
	Problems []SequenceProblem `json:"problems,omitempty"`
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("smata %s\n", cliVersion)
}

func runReplay(cmd *cobra.Command, args []string) {
	exp, err := loadExport(args[0])
	if err != nil {
		OutputError(false, "Failed to load export", err)
		os.Exit(CLIExitError)
	}

	script := eventlog.SynthesizeFrom(exp.SessionID, exp.Events)

	if replayOutput != "" {
		var data []byte
		if replayCompact {
			data, err = json.Marshal(script)
		} else {
			data, err = json.MarshalIndent(script, "", "  ")
		}
		if err != nil {
			OutputError(false, "Failed to encode script", err)
			os.Exit(CLIExitError)
		}
		if err := os.WriteFile(replayOutput, append(data, '\n'), 0o644); err != nil {
			OutputError(false, "Failed to write script", err)
			os.Exit(CLIExitError)
		}
		fmt.Printf("Wrote %d steps to %s\n", len(script.Steps), replayOutput)
		return
	}

	if err := OutputJSON(script, replayCompact); err != nil {
		OutputError(false, "Failed to encode script", err)
		os.Exit(CLIExitError)
	}
}

func runFingerprint(cmd *cobra.Command, args []string) {
	result, err := fingerprintFiles(args)
	if err != nil {
		OutputError(fingerprintJSON, "Failed to load export", err)
		os.Exit(CLIExitError)
	}

	if fingerprintJSON {
		if err := OutputJSON(result, false); err != nil {
			os.Exit(CLIExitError)
		}
	} else {
		for _, f := range result.Files {
			fmt.Println(f.Path)
			fmt.Printf("  Session:  %s (%d events)\n", f.SessionID, f.EventCount)
			fmt.Printf("  Computed: %s\n", f.Computed)
			if len(result.Files) == 1 {
				fmt.Printf("  Recorded: %s\n", f.Recorded)
			}
		}
		if result.Match {
			fmt.Println(colorize("MATCH", colorGreen))
		} else {
			fmt.Println(colorize("MISMATCH", colorRed))
		}
	}

	if !result.Match {
		os.Exit(CLIExitFindings)
	}
}

func runSequencesList(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sequences, err := config.LoadSequences(ctx, args[0])
	if err != nil {
		OutputError(sequencesJSON, "Failed to load library", err)
		os.Exit(CLIExitError)
	}

	if sequencesJSON {
		if err := OutputJSON(sequences, false); err != nil {
			os.Exit(CLIExitError)
		}
		return
	}

	fmt.Printf("Init-Sequence Library: %s\n", args[0])
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()
	for _, seq := range sequences {
		fmt.Printf("%s (%d steps", seq.Package, len(seq.Steps))
		if seq.EstimatedDuration > 0 {
			fmt.Printf(", ~%.1fs", seq.EstimatedDuration)
		}
		fmt.Println(")")
		for i, step := range seq.Steps {
			marker := ""
			if step.Optional {
				marker = " [optional]"
			}
			desc := step.Description
			if desc == "" {
				desc = step.Target
			}
			fmt.Printf("  %2d. %-17s %s%s\n", i+1, string(step.Type), desc, marker)
		}
		fmt.Println()
	}
	fmt.Printf("%d app(s)\n", len(sequences))
}

func runSequencesValidate(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	path := args[0]

	if _, err := os.Stat(path); err != nil {
		if !validateQuiet {
			OutputError(sequencesJSON, "Library not found", err)
		}
		os.Exit(CLIExitError)
	}

	result := validateLibrary(ctx, path)

	if !validateQuiet {
		if sequencesJSON {
			if err := OutputJSON(result, false); err != nil {
				os.Exit(CLIExitError)
			}
		} else {
			outputValidationText(result)
		}
	}

	if !result.Valid {
		os.Exit(CLIExitFindings)
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	var status session.Status
	if err := getFromHarness("/v1/session", &status); err != nil {
		OutputError(statusJSON, "Failed to fetch session status", err)
		os.Exit(CLIExitError)
	}

	if statusJSON {
		if err := OutputJSON(status, false); err != nil {
			os.Exit(CLIExitError)
		}
		return
	}

	fmt.Println("Harness Session Status")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()
	fmt.Printf("Session ID:   %s\n", status.SessionID)
	fmt.Printf("Started:      %s\n", status.StartedAt.Format(time.RFC3339))
	fmt.Printf("Events:       %d\n", status.Events)
	fmt.Printf("Fingerprint:  %s\n", status.Fingerprint)
	fmt.Println()
	fmt.Printf("Coverage:     %d activities, %d transitions, %d distinct actions\n",
		status.Coverage.TotalActivities, status.Coverage.TotalTransitions,
		status.Coverage.DistinctActions)
	fmt.Printf("Failures:     %d crashes, %d ANRs (%.1f%% reproducible)\n",
		status.Crashes, status.ANRs, status.ReproducibilityRate)
	fmt.Printf("Window:       %d events\n", status.WindowSize)
	if status.Recorder.Perf.Samples > 0 {
		fmt.Printf("Perf:         %d samples, memory mean %.1f MB / max %.1f MB\n",
			status.Recorder.Perf.Samples, status.Recorder.Perf.MeanMemoryMB,
			status.Recorder.Perf.MaxMemoryMB)
	}
	if status.JournalPath != "" {
		fmt.Printf("Journal:      %s\n", status.JournalPath)
	}
}

func runReports(cmd *cobra.Command, args []string) {
	var export correlator.ReportExport
	if err := getFromHarness("/v1/failures/reports", &export); err != nil {
		OutputError(reportsJSON, "Failed to fetch failure reports", err)
		os.Exit(CLIExitError)
	}

	if reportsJSON {
		if err := OutputJSON(export, false); err != nil {
			os.Exit(CLIExitError)
		}
		return
	}

	fmt.Println("Failure Reports")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()
	fmt.Printf("Crashes: %d   ANRs: %d   Reproducible: %.1f%%\n",
		export.CrashCount, export.ANRCount, export.ReproducibilityRate)

	if len(export.BySeverity) > 0 {
		fmt.Println()
		fmt.Println("By severity:")
		for _, sev := range []string{"critical", "high", "medium"} {
			if count := export.BySeverity[sev]; count > 0 {
				fmt.Printf("  %-8s %d\n", sev, count)
			}
		}
	}

	if len(export.Crashes) > 0 {
		fmt.Println()
		fmt.Println("Crashes:")
		for _, c := range export.Crashes {
			repro := ""
			if c.Reproducible {
				repro = fmt.Sprintf("  (%d repro steps)", len(c.ReproSteps))
			}
			fmt.Printf("  %s  %-8s  %s: %s%s\n",
				c.ID, strings.ToUpper(c.Severity), c.CrashType, c.ExceptionClass, repro)
		}
	}
	if len(export.ANRs) > 0 {
		fmt.Println()
		fmt.Println("ANRs:")
		for _, a := range export.ANRs {
			fmt.Printf("  %s  %s: %s\n", a.ID, a.Activity, a.Reason)
		}
	}
	if export.CrashCount == 0 && export.ANRCount == 0 {
		fmt.Println()
		fmt.Println("No failures reported.")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// loadExport reads and parses a JSON event export file.
func loadExport(path string) (eventlog.Export, error) {
	var exp eventlog.Export
	data, err := os.ReadFile(path)
	if err != nil {
		return exp, fmt.Errorf("read export: %w", err)
	}
	if err := json.Unmarshal(data, &exp); err != nil {
		return exp, fmt.Errorf("parse export %s: %w", path, err)
	}
	return exp, nil
}

// fingerprintFiles recomputes fingerprints for one or two exports. One file
// verifies computed against recorded; two files compare the computed pair.
func fingerprintFiles(paths []string) (FingerprintResult, error) {
	var result FingerprintResult
	for _, path := range paths {
		exp, err := loadExport(path)
		if err != nil {
			return result, err
		}
		result.Files = append(result.Files, FileFingerprint{
			Path:       path,
			SessionID:  exp.SessionID,
			EventCount: len(exp.Events),
			Recorded:   exp.Fingerprint,
			Computed:   eventlog.FingerprintEvents(exp.Events),
		})
	}

	if len(result.Files) == 2 {
		result.Match = result.Files[0].Computed == result.Files[1].Computed
	} else {
		result.Match = result.Files[0].Computed == result.Files[0].Recorded
	}
	return result, nil
}

// validateLibrary runs the daemon's registration checks against a library
// file. Structural problems (malformed JSON, unknown fields, missing package
// keys) are findings rather than errors: the file exists, the daemon would
// just refuse it.
func validateLibrary(ctx context.Context, path string) SequenceValidationResult {
	result := SequenceValidationResult{Path: path, Valid: true}

	sequences, err := config.LoadSequences(ctx, path)
	if err != nil {
		result.Valid = false
		result.Problems = append(result.Problems, SequenceProblem{Error: err.Error()})
	}
	result.Apps = len(sequences)

	// Register against a throwaway sequencer so package names and step
	// types get exactly the checks the daemon applies.
	lib := sequencer.New(sequencer.Options{Logger: logging.New(logging.Config{Quiet: true})})
	for _, seq := range sequences {
		if err := lib.Register(seq); err != nil {
			result.Valid = false
			result.Problems = append(result.Problems, SequenceProblem{
				Package: seq.Package,
				Error:   err.Error(),
			})
		}
	}
	return result
}

func outputValidationText(result SequenceValidationResult) {
	fmt.Printf("Validating %s\n", result.Path)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()
	fmt.Printf("Apps: %d\n", result.Apps)
	if result.Valid {
		fmt.Println(colorize("VALID", colorGreen))
		return
	}
	fmt.Println()
	for _, p := range result.Problems {
		if p.Package != "" {
			fmt.Printf("  %s: %s\n", p.Package, p.Error)
		} else {
			fmt.Printf("  %s\n", p.Error)
		}
	}
	fmt.Println()
	fmt.Println(colorize("INVALID", colorRed))
}

func getHarnessBaseURL() string {
	// 1. Priority: Environment Variable (Used by Tests & overrides)
	if url := os.Getenv("SMATA_HARNESS_URL"); url != "" {
		return url
	}
	// 2. Default: Standard Host/Port
	return fmt.Sprintf("http://%s:%d", DefaultHarnessHost, DefaultHarnessPort)
}

// getFromHarness fetches one daemon endpoint and decodes the JSON body.
func getFromHarness(path string, out interface{}) error {
	url := getHarnessBaseURL() + path
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is smatad running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("harness returned status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
