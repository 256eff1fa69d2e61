// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import "testing"

func TestRingPushAndSnapshotBeforeWrap(t *testing.T) {
	r := NewRing[int](4)
	for i := 1; i <= 3; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	if r.IsFull() {
		t.Fatal("buffer reported full at 3/4")
	}
	got := r.Snapshot()
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot = %v, want %v", got, want)
		}
	}
}

func TestRingEvictsOldestOnWrap(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	got := r.Snapshot()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot = %v, want %v", got, want)
		}
	}

	oldest, ok := r.Oldest()
	if !ok || oldest != 3 {
		t.Fatalf("Oldest = %d, %v; want 3, true", oldest, ok)
	}
	newest, ok := r.Newest()
	if !ok || newest != 5 {
		t.Fatalf("Newest = %d, %v; want 5, true", newest, ok)
	}
}

func TestRingTailOldestFirst(t *testing.T) {
	r := NewRing[int](5)
	for i := 1; i <= 8; i++ {
		r.Push(i)
	}

	got := r.Tail(3)
	want := []int{6, 7, 8}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tail(3) = %v, want %v", got, want)
		}
	}

	// Asking for more than buffered returns everything, still in order.
	got = r.Tail(10)
	want = []int{4, 5, 6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("Tail(10) len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tail(10) = %v, want %v", got, want)
		}
	}

	if r.Tail(0) != nil {
		t.Fatal("Tail(0) should be nil")
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing[string](2)
	r.Push("a")
	r.Push("b")
	r.Clear()

	if !r.IsEmpty() || r.Len() != 0 {
		t.Fatalf("Clear left %d items", r.Len())
	}
	if _, ok := r.Newest(); ok {
		t.Fatal("Newest returned an item after Clear")
	}

	r.Push("c")
	got := r.Snapshot()
	if len(got) != 1 || got[0] != "c" {
		t.Fatalf("Snapshot after Clear+Push = %v, want [c]", got)
	}
}

func TestRingEachStopsEarly(t *testing.T) {
	r := NewRing[int](4)
	for i := 1; i <= 4; i++ {
		r.Push(i)
	}

	var seen []int
	r.Each(func(v int) bool {
		seen = append(seen, v)
		return v < 2
	})
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("Each visited %v, want [1 2]", seen)
	}
}

func TestRingDefaultCapacity(t *testing.T) {
	r := NewRing[int](0)
	if r.Cap() != 64 {
		t.Fatalf("Cap = %d, want default 64", r.Cap())
	}
}
