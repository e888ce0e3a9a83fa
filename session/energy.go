// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package session

// EnergyUnit identifies the unit the station reports raw energy
// counters in. The unit is a deployment decision, never guessed from
// the magnitude of observed values.
type EnergyUnit string

const (
	// UnitTenthsWh is the native wallbox unit, 0.1 Wh per count.
	UnitTenthsWh EnergyUnit = "tenths_wh"
	// UnitKwh passes raw values through unchanged.
	UnitKwh EnergyUnit = "kwh"
)

// Energy source tags carried on every persisted session.
const (
	SourcePresentSession = "present-session"
	SourceTotalDiff      = "total-diff"
	SourcePresentEnd     = "present-end"
	SourceNone           = "none"
)

// A present-session start below this many kWh (0.1 Wh) is treated as
// zero when judging whether the counter belongs to the current episode.
const presentStartZeroKwh = 0.0001

// Warning flags a counter anomaly seen while resolving energy. The
// resolved value is still usable; the warning is the audit trail that
// a clamp or fallback happened.
type Warning string

const (
	// WarnPresentReset: the present-session counter went backwards from
	// a non-zero start, so it was reset mid-session and abandoned.
	WarnPresentReset Warning = "present-counter-reset"
	// WarnPresentDecreased: the present-session delta was negative and
	// clamped to zero.
	WarnPresentDecreased Warning = "present-counter-decreased"
	// WarnTotalDecreased: the lifetime-total delta was negative and
	// clamped to zero.
	WarnTotalDecreased Warning = "total-counter-decreased"
)

// EnergySnapshot carries the raw counters captured at one end of a
// session. Nil fields mean the station did not report that counter.
type EnergySnapshot struct {
	PresentRaw *float64
	TotalRaw   *float64
}

// Accountant resolves the energy delivered by a finished session from
// the raw counters captured at its start and end. Resolve is a pure
// function and never fails; when no counter is usable it returns zero
// tagged SourceNone so the fallback is always auditable.
type Accountant struct {
	unit EnergyUnit
}

// NewAccountant creates an accountant normalizing raw counters from the
// given unit. Unknown units fall back to UnitTenthsWh.
func NewAccountant(unit EnergyUnit) *Accountant {
	if unit != UnitKwh {
		unit = UnitTenthsWh
	}
	return &Accountant{unit: unit}
}

func (a *Accountant) toKwh(raw float64) float64 {
	if a.unit == UnitKwh {
		return raw
	}
	return raw / 10000
}

// Resolve picks the best available energy figure, in priority order:
// the present-session delta when the counter covers the current
// episode, the lifetime-total delta, the bare present-session end
// value, and finally zero. The returned tag names which path produced
// the value; the warnings record every clamp or fallback taken so a
// counter anomaly is distinguishable from a genuine 0 kWh session.
func (a *Accountant) Resolve(start, end EnergySnapshot) (float64, string, []Warning) {
	var warnings []Warning

	if start.PresentRaw != nil && end.PresentRaw != nil {
		startKwh := a.toKwh(*start.PresentRaw)
		endKwh := a.toKwh(*end.PresentRaw)
		if endKwh >= startKwh || startKwh < presentStartZeroKwh {
			kwh, clamped := clampNonNegative(endKwh - startKwh)
			if clamped {
				warnings = append(warnings, WarnPresentDecreased)
			}
			return kwh, SourcePresentSession, warnings
		}
		// Present counter went backwards mid-session, so it reset and
		// no longer covers this episode. Fall through to the totals.
		warnings = append(warnings, WarnPresentReset)
	}

	if start.TotalRaw != nil && end.TotalRaw != nil {
		kwh, clamped := clampNonNegative(a.toKwh(*end.TotalRaw - *start.TotalRaw))
		if clamped {
			warnings = append(warnings, WarnTotalDecreased)
		}
		return kwh, SourceTotalDiff, warnings
	}

	if end.PresentRaw != nil {
		kwh, clamped := clampNonNegative(a.toKwh(*end.PresentRaw))
		if clamped {
			warnings = append(warnings, WarnPresentDecreased)
		}
		return kwh, SourcePresentEnd, warnings
	}

	return 0, SourceNone, warnings
}

func clampNonNegative(v float64) (float64, bool) {
	if v < 0 {
		return 0, true
	}
	return v, false
}
