// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history provides the bounded buffers that keep harness state from
// growing without limit: the failure-correlation window, the coverage sample
// history, and the init-sequence execution log all sit on a Ring.
package history

// Ring is a fixed-capacity circular buffer with FIFO eviction.
//
// # Description
//
// Push is O(1); when the buffer is full the oldest item is overwritten.
// Items are never reordered: Snapshot and Tail always return them in the
// order they were pushed.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owning component synchronizes.
type Ring[T any] struct {
	data  []T
	head  int // next write position
	tail  int // oldest element position
	count int
	full  bool
}

// NewRing creates a ring with the given capacity. Capacities below one fall
// back to 64.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 64
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Push appends an item, evicting the oldest when full.
func (r *Ring[T]) Push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % len(r.data)

	if r.full {
		r.tail = (r.tail + 1) % len(r.data)
	} else {
		r.count++
		if r.count == len(r.data) {
			r.full = true
		}
	}
}

// Snapshot returns a copy of all items, oldest to newest.
func (r *Ring[T]) Snapshot() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	if r.full {
		n := copy(out, r.data[r.tail:])
		copy(out[n:], r.data[:r.head])
	} else {
		copy(out, r.data[r.tail:r.tail+r.count])
	}
	return out
}

// Tail returns up to n of the most recent items, oldest first. This is the
// shape reproduction-step extraction wants: the last few events in the
// order they happened.
func (r *Ring[T]) Tail(n int) []T {
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]T, n)
	start := r.head - n
	if start < 0 {
		start += len(r.data)
	}
	for i := 0; i < n; i++ {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

// Newest returns the most recently pushed item.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	idx := r.head - 1
	if idx < 0 {
		idx = len(r.data) - 1
	}
	return r.data[idx], true
}

// Oldest returns the least recently pushed item still in the buffer.
func (r *Ring[T]) Oldest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.data[r.tail], true
}

// Each calls fn for every item from oldest to newest, stopping early when
// fn returns false.
func (r *Ring[T]) Each(fn func(item T) bool) {
	for i := 0; i < r.count; i++ {
		if !fn(r.data[(r.tail+i)%len(r.data)]) {
			return
		}
	}
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.data) }

// IsEmpty reports whether the buffer holds no items.
func (r *Ring[T]) IsEmpty() bool { return r.count == 0 }

// IsFull reports whether the next Push will evict.
func (r *Ring[T]) IsFull() bool { return r.full }

// Clear drops all items and zeroes the backing slots so evicted values do
// not pin references.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head, r.tail, r.count, r.full = 0, 0, 0, false
}
