// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package session

import (
	"math"
	"testing"
)

func fp(v float64) *float64 { return &v }

func assertKwh(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("kwh = %v, want %v", got, want)
	}
}

func assertNoWarnings(t *testing.T, warnings []Warning) {
	t.Helper()
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
}

func TestResolvePresentSessionDelta(t *testing.T) {
	a := NewAccountant(UnitTenthsWh)

	kwh, source, warnings := a.Resolve(
		EnergySnapshot{PresentRaw: fp(0)},
		EnergySnapshot{PresentRaw: fp(41210)},
	)
	assertKwh(t, kwh, 4.121)
	if source != SourcePresentSession {
		t.Errorf("source = %q, want %q", source, SourcePresentSession)
	}
	assertNoWarnings(t, warnings)
}

func TestResolveTotalDiffWhenPresentMissing(t *testing.T) {
	a := NewAccountant(UnitTenthsWh)

	kwh, source, warnings := a.Resolve(
		EnergySnapshot{TotalRaw: fp(283400000)},
		EnergySnapshot{TotalRaw: fp(283467494)},
	)
	assertKwh(t, kwh, 6.7494)
	if source != SourceTotalDiff {
		t.Errorf("source = %q, want %q", source, SourceTotalDiff)
	}
	assertNoWarnings(t, warnings)
}

func TestResolvePresentCounterResetFallsBackToTotals(t *testing.T) {
	a := NewAccountant(UnitTenthsWh)

	// Present counter went backwards from a non-zero start, so it was
	// reset mid-session and the lifetime totals are authoritative.
	kwh, source, warnings := a.Resolve(
		EnergySnapshot{PresentRaw: fp(30000), TotalRaw: fp(1000000)},
		EnergySnapshot{PresentRaw: fp(500), TotalRaw: fp(1050000)},
	)
	assertKwh(t, kwh, 5.0)
	if source != SourceTotalDiff {
		t.Errorf("source = %q, want %q", source, SourceTotalDiff)
	}
	if len(warnings) != 1 || warnings[0] != WarnPresentReset {
		t.Errorf("warnings = %v, want [%q]", warnings, WarnPresentReset)
	}
}

func TestResolvePresentEndOnly(t *testing.T) {
	a := NewAccountant(UnitTenthsWh)

	kwh, source, warnings := a.Resolve(
		EnergySnapshot{},
		EnergySnapshot{PresentRaw: fp(12500)},
	)
	assertKwh(t, kwh, 1.25)
	if source != SourcePresentEnd {
		t.Errorf("source = %q, want %q", source, SourcePresentEnd)
	}
	assertNoWarnings(t, warnings)
}

func TestResolveNothingAvailable(t *testing.T) {
	a := NewAccountant(UnitTenthsWh)

	kwh, source, warnings := a.Resolve(EnergySnapshot{}, EnergySnapshot{})
	assertKwh(t, kwh, 0)
	if source != SourceNone {
		t.Errorf("source = %q, want %q", source, SourceNone)
	}
	assertNoWarnings(t, warnings)
}

func TestResolveTotalDecreaseClampsWithWarning(t *testing.T) {
	a := NewAccountant(UnitTenthsWh)

	// A clamped anomaly must be distinguishable from a genuine 0 kWh
	// session, so the clamp carries a warning.
	kwh, source, warnings := a.Resolve(
		EnergySnapshot{TotalRaw: fp(2000000)},
		EnergySnapshot{TotalRaw: fp(1000000)},
	)
	assertKwh(t, kwh, 0)
	if source != SourceTotalDiff {
		t.Errorf("source = %q, want %q", source, SourceTotalDiff)
	}
	if len(warnings) != 1 || warnings[0] != WarnTotalDecreased {
		t.Errorf("warnings = %v, want [%q]", warnings, WarnTotalDecreased)
	}
}

func TestResolveKwhUnitPassthrough(t *testing.T) {
	a := NewAccountant(UnitKwh)

	kwh, source, warnings := a.Resolve(
		EnergySnapshot{PresentRaw: fp(0)},
		EnergySnapshot{PresentRaw: fp(4.121)},
	)
	assertKwh(t, kwh, 4.121)
	if source != SourcePresentSession {
		t.Errorf("source = %q, want %q", source, SourcePresentSession)
	}
	assertNoWarnings(t, warnings)
}

func TestResolveIsDeterministic(t *testing.T) {
	a := NewAccountant(UnitTenthsWh)
	start := EnergySnapshot{PresentRaw: fp(100), TotalRaw: fp(283400000)}
	end := EnergySnapshot{PresentRaw: fp(41210), TotalRaw: fp(283467494)}

	kwh1, source1, warnings1 := a.Resolve(start, end)
	kwh2, source2, warnings2 := a.Resolve(start, end)
	if kwh1 != kwh2 || source1 != source2 || len(warnings1) != len(warnings2) {
		t.Errorf("Resolve not deterministic: (%v,%q,%v) vs (%v,%q,%v)",
			kwh1, source1, warnings1, kwh2, source2, warnings2)
	}
}
