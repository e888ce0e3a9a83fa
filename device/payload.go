// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package device

import (
	"strconv"
	"strings"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
)

// Field aliases across wallbox firmware generations. Lookup first tries
// the exact key, then falls back to matching keys with punctuation and
// case stripped.
var (
	plugKeys    = []string{"Plug", "plug", "plugged"}
	stateKeys   = []string{"State", "state", "Charging state", "charging_state"}
	secondsKeys = []string{"Seconds", "seconds", "Sec", "sec", "plugged seconds"}
	presentKeys = []string{"E pres", "Energy (present session)", "energy_present_session", "EnergyPresentSession"}
	totalKeys   = []string{"Total energy", "Energy (total)", "energy_total", "EnergyTotal"}
)

type report2 struct {
	Plugged bool
	State   *uint32
	Seconds *uint64
}

type report3 struct {
	PresentRaw *float64
	TotalRaw   *float64
}

// parseReport2 extracts plug state from a decoded status report. The
// plug field wins; the charging-state field is the fallback. Either
// being positive means a cable is attached.
func parseReport2(payload map[string]any) (*report2, error) {
	plug := findNumber(payload, plugKeys)
	stateVal := findNumber(payload, stateKeys)

	var plugged bool
	switch {
	case plug != nil:
		plugged = *plug > 0
	case stateVal != nil:
		plugged = *stateVal > 0
	default:
		return nil, apperrors.NewParseError("report 2", "Plug|State")
	}

	r := &report2{Plugged: plugged}
	if stateVal != nil && *stateVal >= 0 {
		state := uint32(*stateVal)
		r.State = &state
	}
	if secs := findNumber(payload, secondsKeys); secs != nil && *secs >= 0 {
		seconds := uint64(*secs)
		r.Seconds = &seconds
	}
	return r, nil
}

// parseReport3 extracts the raw energy counters from a decoded energy
// report. At least one counter must be present; unit normalization is
// left to the session accountant.
func parseReport3(payload map[string]any) (*report3, error) {
	present := findNumber(payload, presentKeys)
	total := findNumber(payload, totalKeys)
	if present == nil && total == nil {
		return nil, apperrors.NewParseError("report 3", "E pres|Total energy")
	}
	return &report3{PresentRaw: present, TotalRaw: total}, nil
}

func findNumber(payload map[string]any, aliases []string) *float64 {
	value, ok := findValue(payload, aliases)
	if !ok {
		return nil
	}
	return parseNumber(value)
}

func findValue(payload map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if value, ok := payload[alias]; ok {
			return value, true
		}
	}

	normalized := make([]string, len(aliases))
	for i, alias := range aliases {
		normalized[i] = normalizeKey(alias)
	}
	for key, value := range payload {
		nk := normalizeKey(key)
		for _, alias := range normalized {
			if nk == alias {
				return value, true
			}
		}
	}
	return nil, false
}

// normalizeKey strips everything but ASCII letters and digits and
// lowercases the rest, so "E pres", "e_pres" and "EPres" all collide.
func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

func parseNumber(value any) *float64 {
	switch v := value.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case string:
		return parseNumberFromText(v)
	default:
		return nil
	}
}

// parseNumberFromText pulls the first parseable numeric token out of a
// free-form value like "41210 (0.1 Wh)" or "3,5 kWh". Some firmware
// localizes decimals with commas.
func parseNumberFromText(text string) *float64 {
	for _, token := range extractNumericTokens(text) {
		normalized, ok := normalizeNumericToken(token)
		if !ok {
			continue
		}
		if f, err := strconv.ParseFloat(normalized, 64); err == nil {
			return &f
		}
	}
	return nil
}

func extractNumericTokens(text string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' || r == ',' || r == '.' || r == '-' {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// normalizeNumericToken rewrites localized numbers to strconv form:
// "1.234,5" becomes "1234.5", "1,234.5" becomes "1234.5", a lone comma
// is a decimal separator, repeated commas are thousands separators.
func normalizeNumericToken(token string) (string, bool) {
	commas := strings.Count(token, ",")
	dots := strings.Count(token, ".")

	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(token, ",") > strings.LastIndex(token, ".") {
			return strings.ReplaceAll(strings.ReplaceAll(token, ".", ""), ",", "."), true
		}
		return strings.ReplaceAll(token, ",", ""), true
	case commas == 1:
		return strings.ReplaceAll(token, ",", "."), true
	case commas > 1:
		return strings.ReplaceAll(token, ",", ""), true
	default:
		if dots > 1 {
			return "", false
		}
		return token, true
	}
}
