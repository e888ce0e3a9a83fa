// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package device

import (
	"encoding/json"
	"errors"
	"testing"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return payload
}

func TestParseReport2PlugField(t *testing.T) {
	r, err := parseReport2(decode(t, `{"Plug": 7, "State": 3, "Sec": 120}`))
	if err != nil {
		t.Fatal(err)
	}
	if !r.Plugged {
		t.Error("Plug=7 not treated as plugged")
	}
	if r.State == nil || *r.State != 3 {
		t.Errorf("State = %v, want 3", r.State)
	}
	if r.Seconds == nil || *r.Seconds != 120 {
		t.Errorf("Seconds = %v, want 120", r.Seconds)
	}
}

func TestParseReport2StateFallback(t *testing.T) {
	r, err := parseReport2(decode(t, `{"State": 0}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.Plugged {
		t.Error("State=0 treated as plugged")
	}
}

func TestParseReport2NormalizedKeys(t *testing.T) {
	r, err := parseReport2(decode(t, `{"charging_state": 2, "Plugged Seconds": 10}`))
	if err != nil {
		t.Fatal(err)
	}
	if !r.Plugged {
		t.Error("charging_state=2 not treated as plugged")
	}
	if r.Seconds == nil || *r.Seconds != 10 {
		t.Errorf("Seconds = %v, want 10", r.Seconds)
	}
}

func TestParseReport2MissingPlugState(t *testing.T) {
	_, err := parseReport2(decode(t, `{"Sec": 5}`))
	if err == nil {
		t.Fatal("missing Plug and State accepted")
	}
	if !errors.Is(err, apperrors.ErrMalformedResponse) {
		t.Errorf("err = %v, want malformed-response cause", err)
	}
}

func TestParseReport3RawCounters(t *testing.T) {
	r, err := parseReport3(decode(t, `{"E pres": 41210, "Total energy": 283467494}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.PresentRaw == nil || *r.PresentRaw != 41210 {
		t.Errorf("PresentRaw = %v, want 41210", r.PresentRaw)
	}
	if r.TotalRaw == nil || *r.TotalRaw != 283467494 {
		t.Errorf("TotalRaw = %v, want 283467494", r.TotalRaw)
	}
}

func TestParseReport3AliasAndStringValues(t *testing.T) {
	r, err := parseReport3(decode(t, `{"EnergyPresentSession": "3,5 kWh"}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.PresentRaw == nil || *r.PresentRaw != 3.5 {
		t.Errorf("PresentRaw = %v, want 3.5 from comma decimal", r.PresentRaw)
	}
	if r.TotalRaw != nil {
		t.Errorf("TotalRaw = %v, want nil", r.TotalRaw)
	}
}

func TestParseReport3MissingEverything(t *testing.T) {
	_, err := parseReport3(decode(t, `{"Serial": "18712345"}`))
	if err == nil {
		t.Fatal("empty energy report accepted")
	}
}

func TestNormalizeNumericToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"41210", "41210", true},
		{"3,5", "3.5", true},
		{"1.234,5", "1234.5", true},
		{"1,234.5", "1234.5", true},
		{"1,234,567", "1234567", true},
		{"1.2.3", "", false},
	}
	for _, c := range cases {
		got, ok := normalizeNumericToken(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("normalizeNumericToken(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}
