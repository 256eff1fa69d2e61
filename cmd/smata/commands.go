// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	replayOutput    string
	replayCompact   bool
	fingerprintJSON bool
	sequencesJSON   bool
	validateQuiet   bool
	statusJSON      bool
	reportsJSON     bool

	rootCmd = &cobra.Command{
		Use:   "smata",
		Short: "A CLI for the SMATA exploratory-testing harness",
		Long: `Smata works with event exports, init-sequence libraries, and a running
harness daemon: synthesize replay scripts, verify sequence fingerprints,
inspect and validate init-sequence files, and query session status.`,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the smata version",
		Args:  cobra.NoArgs,
		Run:   runVersion, // Defined in cli_commands.go
	}

	// --- Offline export tooling ---
	replayCmd = &cobra.Command{
		Use:   "replay [export.json]",
		Short: "Synthesize a replay script from an event export",
		Long: `Reads a JSON event export produced by the harness (GET /v1/events/export)
and synthesizes an ordered replay script: tap, text, and key actions with
sleep steps reconstructing the original pacing. The script is written as
JSON to stdout, or to a file with --output.`,
		Args: cobra.ExactArgs(1),
		Run:  runReplay, // Defined in cli_commands.go
	}

	fingerprintCmd = &cobra.Command{
		Use:   "fingerprint [export.json] [other.json]",
		Short: "Verify or compare event-export fingerprints",
		Long: `Recomputes the sequence fingerprint of an event export and checks it
against the fingerprint recorded in the file. With a second export, the
two computed fingerprints are compared instead: equal fingerprints mean
the two sessions performed the same actions in the same order.

Exit Codes:
  0 = Fingerprints match
  1 = Fingerprints differ
  2 = Error (unreadable or malformed export)`,
		Args: cobra.RangeArgs(1, 2),
		Run:  runFingerprint, // Defined in cli_commands.go
	}

	// --- Init-sequence library tooling ---
	sequencesCmd = &cobra.Command{
		Use:   "sequences",
		Short: "Inspect and validate init-sequence library files",
	}
	sequencesListCmd = &cobra.Command{
		Use:   "list [library.json]",
		Short: "List the apps and steps in an init-sequence library",
		Args:  cobra.ExactArgs(1),
		Run:   runSequencesList, // Defined in cli_commands.go
	}
	sequencesValidateCmd = &cobra.Command{
		Use:   "validate [library.json]",
		Short: "Validate an init-sequence library file",
		Long: `Parses the library and checks every sequence the way the daemon would at
registration: package names, step types, and structure.

Exit Codes:
  0 = Library is valid
  1 = Library parsed but one or more sequences are invalid
  2 = Error (missing or unreadable file)`,
		Args: cobra.ExactArgs(1),
		Run:  runSequencesValidate, // Defined in cli_commands.go
	}

	// --- Daemon queries ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the current session status of a running harness daemon",
		Args:  cobra.NoArgs,
		Run:   runStatus, // Defined in cli_commands.go
	}
	reportsCmd = &cobra.Command{
		Use:   "reports",
		Short: "Show the failure reports of a running harness daemon",
		Args:  cobra.NoArgs,
		Run:   runReports, // Defined in cli_commands.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "", "Write the script to a file instead of stdout")
	replayCmd.Flags().BoolVar(&replayCompact, "compact", false, "Emit compact JSON without indentation")

	rootCmd.AddCommand(fingerprintCmd)
	fingerprintCmd.Flags().BoolVar(&fingerprintJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(sequencesCmd)
	sequencesCmd.AddCommand(sequencesListCmd)
	sequencesCmd.AddCommand(sequencesValidateCmd)
	sequencesListCmd.Flags().BoolVar(&sequencesJSON, "json", false, "Output as JSON")
	sequencesValidateCmd.Flags().BoolVar(&sequencesJSON, "json", false, "Output as JSON")
	sequencesValidateCmd.Flags().BoolVar(&validateQuiet, "quiet", false, "Only exit code, no output")

	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.Flags().BoolVar(&reportsJSON, "json", false, "Output as JSON")
}
