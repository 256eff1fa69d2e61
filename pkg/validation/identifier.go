// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for identifiers
// that cross trust boundaries.
//
// Application package names arrive from configuration files and HTTP path
// parameters and end up in adb subprocess invocations and storage keys.
// Validating them here prevents command injection and key-space collisions.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// packagePattern matches Android application ids: two or more dot-separated
// segments, each starting with a letter, using letters, digits, and
// underscores.
var packagePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)

// ValidatePackageName validates an Android application package name before
// it is used in a subprocess call or as part of a storage key.
//
// Valid package names:
//   - At least two dot-separated segments (com.example)
//   - Each segment starts with a letter
//   - Segments contain letters, digits, and underscores only
//
// Returns an error if the package name is invalid.
//
// Example:
//
//	if err := validation.ValidatePackageName(pkg); err != nil {
//	    return nil, fmt.Errorf("invalid package: %w", err)
//	}
//	// Safe to pass to adb
func ValidatePackageName(pkg string) error {
	if pkg == "" {
		return fmt.Errorf("package name cannot be empty")
	}

	if !packagePattern.MatchString(pkg) {
		return fmt.Errorf("invalid package name: %q (must be dot-separated segments starting with a letter)", pkg)
	}

	return nil
}

// ValidatePackageNames validates multiple package names.
// Returns an error listing all invalid names if any fail validation.
func ValidatePackageNames(pkgs []string) error {
	var invalid []string
	for _, p := range pkgs {
		if err := ValidatePackageName(p); err != nil {
			invalid = append(invalid, p)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid package names: %v", invalid)
	}
	return nil
}

// SanitizePackageName trims surrounding whitespace and validates the
// result. Returns the trimmed package name if valid.
//
// Use this on names taken from URL paths or hand-edited configuration:
//
//	safePkg, err := validation.SanitizePackageName(param)
//	if err != nil {
//	    return err
//	}
func SanitizePackageName(pkg string) (string, error) {
	trimmed := strings.TrimSpace(pkg)
	if err := ValidatePackageName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
