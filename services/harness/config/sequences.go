// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Saher-Elsayed/SMATA/services/harness/sequencer"
)

// SequenceLibrary is the wire format of the init-sequence file: app display
// names mapped to their sequences.
//
// Example:
//
//	{
//	  "apps": {
//	    "My Shop": {
//	      "package": "com.example.shop",
//	      "init_sequence": [
//	        {"type": "permission_grant", "target": "android.permission.CAMERA"},
//	        {"type": "click", "target": "skip_login", "optional": true, "retry_count": 2}
//	      ],
//	      "estimated_duration": 12.5
//	    }
//	  }
//	}
type SequenceLibrary struct {
	Apps map[string]sequencer.Sequence `json:"apps"`
}

// LoadSequences parses the init-sequence library file. Sequences are
// returned sorted by app display name so registration order is stable.
// Step-type validation is left to sequencer.Register; this loader only
// enforces structure.
func LoadSequences(ctx context.Context, path string) ([]sequencer.Sequence, error) {
	_, span := configTracer.Start(ctx, "config.LoadSequences")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	data, err := readLimited(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, fmt.Errorf("load sequences: %w", err)
	}

	var lib SequenceLibrary
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&lib); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, fmt.Errorf("parse sequences %s: %w", path, err)
	}

	names := make([]string, 0, len(lib.Apps))
	for name := range lib.Apps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]sequencer.Sequence, 0, len(names))
	for _, name := range names {
		seq := lib.Apps[name]
		if seq.Package == "" {
			return nil, fmt.Errorf("parse sequences %s: app %q has no package", path, name)
		}
		out = append(out, seq)
	}

	span.SetAttributes(attribute.Int("sequence_count", len(out)))
	return out, nil
}

// RegisterSequences loads the library file and registers every sequence.
// Returns the number registered; the first registration failure aborts so
// an invalid file never half-applies.
func RegisterSequences(ctx context.Context, path string, s *sequencer.Sequencer) (int, error) {
	sequences, err := LoadSequences(ctx, path)
	if err != nil {
		return 0, err
	}
	for i, seq := range sequences {
		if err := s.Register(seq); err != nil {
			return i, fmt.Errorf("register sequences from %s: %w", path, err)
		}
	}
	return len(sequences), nil
}
