// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coverage

import (
	"sort"
	"time"
)

// Node is one activity in the exported graph.
type Node struct {
	ID      string `json:"id"`
	Visits  int    `json:"visits"`
	Actions int    `json:"actions"`
}

// Edge is one directed transition in the exported graph.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// Graph is the exported navigation graph. Nodes are sorted by id and edges
// by (from, to) so exports are deterministic.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Summary is the aggregate view of the model.
type Summary struct {
	TotalActivities  int     `json:"total_activities"`
	TotalTransitions int     `json:"total_transitions"`
	DistinctActions  int     `json:"distinct_actions"`
	SampleCount      int     `json:"sample_count"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
}

// ActivityGraph exports the navigation graph seen so far.
func (m *Model) ActivityGraph() Graph {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := Graph{
		Nodes: make([]Node, 0, len(m.activities)),
		Edges: make([]Edge, 0, len(m.edges)),
	}
	for name, st := range m.activities {
		g.Nodes = append(g.Nodes, Node{ID: name, Visits: st.visits, Actions: len(st.actions)})
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })

	for e, count := range m.edges {
		g.Edges = append(g.Edges, Edge{From: e.from, To: e.to, Count: count})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	return g
}

// Summary returns aggregate counters for the model.
func (m *Model) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		TotalActivities: len(m.activities),
		SampleCount:     m.samples.Len(),
	}
	for _, count := range m.edges {
		s.TotalTransitions += count
	}
	for _, st := range m.activities {
		s.DistinctActions += len(st.actions)
	}
	if !m.firstSeen.IsZero() {
		s.ElapsedSeconds = m.lastSeen.Sub(m.firstSeen).Seconds()
	}
	return s
}

// TimeSpent returns the accumulated foreground time credited to an
// activity, zero when the activity was never observed.
func (m *Model) TimeSpent(activity string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.activities[activity]; ok {
		return st.timeSpent
	}
	return 0
}
