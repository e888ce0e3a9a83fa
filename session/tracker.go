// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package session

import "time"

// PlugState is the confirmed cable state of a charging station.
type PlugState int

const (
	Unplugged PlugState = iota
	Plugged
)

func (s PlugState) String() string {
	if s == Plugged {
		return "plugged"
	}
	return "unplugged"
}

// Transition is a debounce-confirmed plug-state change.
// ObservedAt is the host clock at the first sample of the confirming
// streak, not at the sample that completed it.
type Transition struct {
	From       PlugState
	To         PlugState
	ObservedAt time.Time
}

// Tracker suppresses plug-state noise by requiring a configurable number
// of consecutive consistent samples before confirming a transition.
// It is not safe for concurrent use; each station gets its own instance.
type Tracker struct {
	debounceSamples int

	seeded        bool
	lastConfirmed PlugState
	candidate     PlugState
	streak        int
	streakStart   time.Time
}

// NewTracker creates a tracker requiring debounceSamples consecutive
// consistent readings to confirm a change. Values below 1 are raised to 1.
func NewTracker(debounceSamples int) *Tracker {
	if debounceSamples < 1 {
		debounceSamples = 1
	}
	return &Tracker{debounceSamples: debounceSamples}
}

// Observe feeds one raw plug-state sample into the tracker and returns
// the confirmed transition, if this sample completed one.
//
// The very first sample seeds the baseline state without emitting a
// transition, so a station that is already plugged in at startup does
// not open a phantom session.
func (t *Tracker) Observe(raw PlugState, at time.Time) *Transition {
	if !t.seeded {
		t.seeded = true
		t.lastConfirmed = raw
		return nil
	}

	if raw == t.lastConfirmed {
		t.streak = 0
		return nil
	}

	if t.streak == 0 || raw != t.candidate {
		t.candidate = raw
		t.streak = 1
		t.streakStart = at
	} else {
		t.streak++
	}

	if t.streak < t.debounceSamples {
		return nil
	}

	tr := &Transition{
		From:       t.lastConfirmed,
		To:         t.candidate,
		ObservedAt: t.streakStart,
	}
	t.lastConfirmed = t.candidate
	t.streak = 0
	return tr
}

// LastConfirmed returns the current confirmed plug state.
func (t *Tracker) LastConfirmed() PlugState {
	return t.lastConfirmed
}
