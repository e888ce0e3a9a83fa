// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
	"github.com/Frabely/keba-home-api/pkg/logger"
)

const (
	udpBufferSize = 4096

	cmdStatusReport = "report 2"
	cmdEnergyReport = "report 3"
)

// UDPClient polls a wallbox over its UDP report protocol. Each poll is
// one short-lived request/response exchange per report.
type UDPClient struct {
	stationID string
	target    string
	timeout   time.Duration
}

// NewUDPClient creates a client for the station's UDP report interface.
func NewUDPClient(stationID, host string, port int, timeout time.Duration) *UDPClient {
	return &UDPClient{
		stationID: stationID,
		target:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		timeout:   timeout,
	}
}

// Status fetches the status report and, best effort, the energy report.
// A failed status report fails the poll; a failed energy report only
// leaves the energy counters empty, since plug-state tracking must not
// stall on a flaky counter read.
func (c *UDPClient) Status(ctx context.Context) (*Reading, error) {
	rawStatus, statusPayload, err := c.exchange(ctx, cmdStatusReport)
	if err != nil {
		return nil, classify("status", c.stationID, err)
	}

	r2, err := parseReport2(statusPayload)
	if err != nil {
		return nil, classify("status", c.stationID, err)
	}

	reading := &Reading{
		Plugged:   r2.Plugged,
		State:     r2.State,
		Seconds:   r2.Seconds,
		RawStatus: rawStatus,
	}
	if r2.State != nil && *r2.State == stateFault {
		reading.Faulted = true
	}

	rawEnergy, energyPayload, err := c.exchange(ctx, cmdEnergyReport)
	if err != nil {
		logger.Debug().Str("station_id", c.stationID).Err(err).
			Msg("Energy report unavailable this tick")
		return reading, nil
	}
	r3, err := parseReport3(energyPayload)
	if err != nil {
		logger.Debug().Str("station_id", c.stationID).Err(err).
			Msg("Energy report unparseable this tick")
		return reading, nil
	}

	reading.PresentRaw = r3.PresentRaw
	reading.TotalRaw = r3.TotalRaw
	reading.RawEnergy = rawEnergy
	return reading, nil
}

func (c *UDPClient) exchange(ctx context.Context, command string) (string, map[string]any, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", c.target)
	if err != nil {
		return "", nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", nil, err
	}

	if _, err := conn.Write([]byte(command)); err != nil {
		return "", nil, err
	}

	buf := make([]byte, udpBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return "", nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(buf[:n], &payload); err != nil {
		return "", nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}
	return string(buf[:n]), payload, nil
}

// Close is a no-op; the client holds no persistent connection.
func (c *UDPClient) Close() error {
	return nil
}
