// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package session

import (
	"time"

	"github.com/Frabely/keba-home-api/pkg/interfaces"
	"github.com/Frabely/keba-home-api/pkg/logger"
	"github.com/Frabely/keba-home-api/pkg/metrics"
)

// StatusCompleted is the status carried by every normally closed session.
const StatusCompleted = "completed"

// Sample is one normalized poll result for a station. Nil counter
// fields mean the station did not report that value this tick.
type Sample struct {
	Plugged    bool
	Faulted    bool
	PresentRaw *float64
	TotalRaw   *float64
	Seconds    *uint64
	RawStatus  string
	RawEnergy  string
	At         time.Time
}

// ActiveContext holds the state of one open charging session. It exists
// only between a confirmed plug-in and the matching confirmed unplug.
type ActiveContext struct {
	StartedAt    time.Time
	StartEnergy  EnergySnapshot
	ErrorCount   int
	lastSeconds  *uint64
	lastTotalRaw *float64
	rebootSeen   bool
	events       []interfaces.LogEvent
}

// Machine owns the session lifecycle for a single station. It is not
// safe for concurrent use; each station's poll loop drives its own
// instance strictly in sample order.
type Machine struct {
	stationID  string
	pollSource string
	tracker    *Tracker
	acct       *Accountant
	active     *ActiveContext
}

// NewMachine creates a session state machine for one station.
func NewMachine(stationID, pollSource string, tracker *Tracker, acct *Accountant) *Machine {
	return &Machine{
		stationID:  stationID,
		pollSource: pollSource,
		tracker:    tracker,
		acct:       acct,
	}
}

// Active reports whether a charging session is currently open.
func (m *Machine) Active() bool {
	return m.active != nil
}

// RecordFailure accounts one failed poll against the open session, if
// any. Failures while idle carry no session context and are dropped.
func (m *Machine) RecordFailure() {
	if m.active == nil {
		return
	}
	m.active.ErrorCount++
	logger.Debug().Str("station_id", m.stationID).
		Int("error_count", m.active.ErrorCount).
		Msg("Poll failure during active session")
}

// Observe feeds one sample through the tracker and the session
// lifecycle. It returns a completed session record when this sample
// confirmed the unplug that closed one, nil otherwise.
func (m *Machine) Observe(sample Sample) *interfaces.SessionRecord {
	if sample.Faulted {
		// A faulted reading is counted against the session but is not
		// a plug-state sample; it must not advance or reset the
		// debounce streak.
		m.RecordFailure()
		return nil
	}

	if m.active != nil {
		m.checkCounters(sample)
	}

	raw := Unplugged
	if sample.Plugged {
		raw = Plugged
	}

	tr := m.tracker.Observe(raw, sample.At)
	if tr == nil {
		return nil
	}

	switch {
	case tr.To == Plugged && m.active == nil:
		m.open(tr, sample)
	case tr.To == Unplugged && m.active != nil:
		return m.close(tr, sample)
	}
	return nil
}

func (m *Machine) open(tr *Transition, sample Sample) {
	m.active = &ActiveContext{
		StartedAt: tr.ObservedAt,
		StartEnergy: EnergySnapshot{
			PresentRaw: sample.PresentRaw,
			TotalRaw:   sample.TotalRaw,
		},
		lastSeconds:  sample.Seconds,
		lastTotalRaw: sample.TotalRaw,
	}
	metrics.SessionActive.WithLabelValues(m.stationID).Set(1)
	logger.Info().Str("station_id", m.stationID).
		Time("started_at", tr.ObservedAt).
		Msg("Charging session started")
}

func (m *Machine) close(tr *Transition, sample Sample) *interfaces.SessionRecord {
	ctx := m.active
	m.active = nil

	endedAt := tr.ObservedAt
	if !endedAt.After(ctx.StartedAt) {
		endedAt = ctx.StartedAt.Add(time.Millisecond)
	}

	end := EnergySnapshot{PresentRaw: sample.PresentRaw, TotalRaw: sample.TotalRaw}
	kwh, source, warnings := m.acct.Resolve(ctx.StartEnergy, end)
	for _, w := range warnings {
		logger.Warn().Str("station_id", m.stationID).
			Str("warning", string(w)).
			Str("energy_source", source).
			Msg("Energy counter anomaly while closing session")
		ctx.events = append(ctx.events, interfaces.LogEvent{
			Level:     "warn",
			StationID: m.stationID,
			Message:   "energy counter anomaly: " + string(w),
			CreatedAt: sample.At,
		})
	}

	record := &interfaces.SessionRecord{
		StationID:    m.stationID,
		StartedAt:    ctx.StartedAt,
		EndedAt:      endedAt,
		DurationMs:   endedAt.Sub(ctx.StartedAt).Milliseconds(),
		EnergyKwh:    kwh,
		EnergySource: source,
		Status:       StatusCompleted,
		ErrorCount:   ctx.ErrorCount,
		PollSource:   m.pollSource,
		RawStatus:    sample.RawStatus,
		RawEnergy:    sample.RawEnergy,
		Events:       ctx.events,
	}

	metrics.SessionActive.WithLabelValues(m.stationID).Set(0)
	metrics.SessionsCompleted.WithLabelValues(m.stationID, source).Inc()
	metrics.SessionEnergyKwh.Observe(kwh)

	logger.Info().Str("station_id", m.stationID).
		Time("started_at", ctx.StartedAt).
		Time("ended_at", endedAt).
		Float64("kwh", kwh).
		Str("energy_source", source).
		Int("error_count", ctx.ErrorCount).
		Msg("Charging session completed")

	return record
}

// checkCounters watches the station's monotonic counters for an
// unexpected decrease, which indicates the station rebooted
// mid-session. The session survives; the anomaly is logged once.
func (m *Machine) checkCounters(sample Sample) {
	ctx := m.active

	decreased := false
	if ctx.lastSeconds != nil && sample.Seconds != nil && *sample.Seconds < *ctx.lastSeconds {
		decreased = true
	}
	if ctx.lastTotalRaw != nil && sample.TotalRaw != nil && *sample.TotalRaw < *ctx.lastTotalRaw {
		decreased = true
	}

	if decreased && !ctx.rebootSeen {
		ctx.rebootSeen = true
		logger.Warn().Str("station_id", m.stationID).
			Msg("Station counters decreased mid-session, station likely rebooted")
		ctx.events = append(ctx.events, interfaces.LogEvent{
			Level:     "warn",
			StationID: m.stationID,
			Message:   "station counters decreased mid-session, station likely rebooted",
			CreatedAt: sample.At,
		})
	}

	if sample.Seconds != nil {
		ctx.lastSeconds = sample.Seconds
	}
	if sample.TotalRaw != nil {
		ctx.lastTotalRaw = sample.TotalRaw
	}
}
