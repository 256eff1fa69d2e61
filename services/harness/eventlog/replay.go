// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package eventlog

import (
	"strconv"
	"time"

	"github.com/Saher-Elsayed/SMATA/services/harness/event"
)

// Replay actions understood by external replay agents.
const (
	ActionTap   = "tap"
	ActionText  = "text"
	ActionKey   = "key"
	ActionSleep = "sleep"
)

// ReplayStep is one abstract action in a synthesized replay script.
type ReplayStep struct {
	Action  string  `json:"action"`
	X       int     `json:"x,omitempty"`
	Y       int     `json:"y,omitempty"`
	Text    string  `json:"text,omitempty"`
	Keycode string  `json:"keycode,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
}

// ReplayScript is a restartable, finite, ordered description of recorded
// input actions, with sleeps reconstructing the original timing.
type ReplayScript struct {
	SessionID string       `json:"session_id"`
	Steps     []ReplayStep `json:"steps"`
}

// SynthesizeReplay builds a replay script from the recorded sequence.
//
// Only touch, text_input, and key events become actions; everything else
// stays in the log but is skipped here. Sleep steps carry the timestamp
// delta between consecutive *included* events, which is enough for an
// external agent to approximately reproduce the original pacing.
func (l *Log) SynthesizeReplay() ReplayScript {
	l.mu.Lock()
	events := event.CloneAll(l.events)
	session := l.session
	l.mu.Unlock()

	return SynthesizeFrom(session, events)
}

// SynthesizeFrom is the pure form of SynthesizeReplay, usable on exported
// event sets.
func SynthesizeFrom(sessionID string, events []event.Event) ReplayScript {
	script := ReplayScript{SessionID: sessionID}

	var prev time.Time
	for _, ev := range events {
		step, ok := replayStep(ev)
		if !ok {
			continue
		}

		if !prev.IsZero() {
			if delta := ev.Timestamp.Sub(prev); delta > 0 {
				script.Steps = append(script.Steps, ReplayStep{
					Action:  ActionSleep,
					Seconds: delta.Seconds(),
				})
			}
		}
		prev = ev.Timestamp

		script.Steps = append(script.Steps, step)
	}

	return script
}

func replayStep(ev event.Event) (ReplayStep, bool) {
	switch ev.Type {
	case event.TypeTouch:
		return ReplayStep{
			Action: ActionTap,
			X:      detailInt(ev, "x"),
			Y:      detailInt(ev, "y"),
		}, true
	case event.TypeTextInput:
		return ReplayStep{
			Action: ActionText,
			Text:   ev.Detail("text", ""),
		}, true
	case event.TypeKey:
		return ReplayStep{
			Action:  ActionKey,
			Keycode: ev.Detail("keycode", ""),
		}, true
	default:
		return ReplayStep{}, false
	}
}

func detailInt(ev event.Event, key string) int {
	n, err := strconv.Atoi(ev.Detail(key, "0"))
	if err != nil {
		return 0
	}
	return n
}
