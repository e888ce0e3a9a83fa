// Copyright (c) 2025 Frabely
// Licensed under the MIT License

// Package device talks to KEBA charging stations over UDP and Modbus
// TCP and normalizes their replies into poll readings.
package device

import (
	"context"
	"errors"
	"fmt"
	"net"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
)

// Faulted state reported by the wallbox status register.
const stateFault = 4

// Reading is one normalized station sample. Nil fields mean the
// station did not report that value. Energy counters are raw device
// units; normalization happens downstream against the configured unit.
type Reading struct {
	Plugged    bool
	State      *uint32
	Faulted    bool
	Seconds    *uint64
	PresentRaw *float64
	TotalRaw   *float64
	RawStatus  string
	RawEnergy  string
}

// Client fetches one status reading from a charging station.
// Status failures carry a typed cause: timeout, unreachable, or
// malformed response.
type Client interface {
	Status(ctx context.Context) (*Reading, error)
	Close() error
}

// classify wraps a transport or parse error into a DeviceError with
// the matching sentinel cause.
func classify(op, station string, err error) error {
	if err == nil {
		return nil
	}

	var cause error
	var netErr net.Error
	switch {
	case errors.Is(err, apperrors.ErrTimeout),
		errors.Is(err, apperrors.ErrUnreachable),
		errors.Is(err, apperrors.ErrMalformedResponse):
		cause = err
	case errors.Is(err, context.DeadlineExceeded):
		cause = fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		cause = fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	default:
		cause = fmt.Errorf("%w: %v", apperrors.ErrUnreachable, err)
	}

	return apperrors.NewDeviceError(op, station, cause)
}
