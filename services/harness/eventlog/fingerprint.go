// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package eventlog

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/Saher-Elsayed/SMATA/services/harness/event"
)

// Fingerprint returns a deterministic digest over the full recorded
// sequence.
//
// # Description
//
// Two logs produce equal fingerprints exactly when they recorded the same
// events, in the same order, with the same type and detail content.
// Timestamps, ids, sources, and severities are deliberately excluded: a
// replay agent reproduces the *actions*, not the wall clock, and the
// fingerprint is how faithful reproduction is verified.
//
// Detail maps are canonicalized by sorting keys, so producers that build
// their maps in different orders still agree.
func (l *Log) Fingerprint() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return FingerprintEvents(l.events)
}

// FingerprintEvents computes the sequence fingerprint for an explicit
// event slice. It is the pure function behind Log.Fingerprint, exposed so
// exported event sets can be re-verified offline.
func FingerprintEvents(events []event.Event) string {
	h := fnv.New64a()

	// Field and record separators keep adjacent values from gluing into
	// ambiguous encodings ("ab"+"c" vs "a"+"bc").
	const (
		fieldSep  = 0x1f
		recordSep = 0x1e
	)

	keys := make([]string, 0, 8)
	for _, ev := range events {
		h.Write([]byte(ev.Type))
		h.Write([]byte{fieldSep})

		keys = keys[:0]
		for k := range ev.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(ev.Details[k]))
			h.Write([]byte{fieldSep})
		}
		h.Write([]byte{recordSep})
	}

	return fmt.Sprintf("%016x", h.Sum64())
}
