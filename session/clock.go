// Copyright (c) 2025 Frabely
// Licensed under the MIT License

// Package session turns a stream of charging station samples into
// completed charging session records.
package session

import "time"

// Clock supplies the current instant. It is replaceable for
// deterministic testing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns a Clock backed by the host wall clock in UTC.
func NewSystemClock() Clock {
	return systemClock{}
}
