// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package device

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
	"github.com/Frabely/keba-home-api/pkg/logger"
)

// Wallbox input register map (Modbus TCP), each value two registers.
const (
	regState         = 1000
	regTotalEnergy   = 1036
	regPresentEnergy = 1502

	fnReadInputRegisters = 0x04
)

// ModbusClient polls a wallbox over Modbus TCP. One TCP connection is
// opened per register read, mirroring the short-lived exchange the
// station firmware expects.
type ModbusClient struct {
	stationID string
	target    string
	unitID    byte
	timeout   time.Duration
	txnID     atomic.Uint32
}

// NewModbusClient creates a client for the station's Modbus interface.
func NewModbusClient(stationID, host string, port int, unitID byte, timeout time.Duration) *ModbusClient {
	return &ModbusClient{
		stationID: stationID,
		target:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		unitID:    unitID,
		timeout:   timeout,
	}
}

// Status reads the state register and, best effort, both energy
// registers. Cable attached is state 2 and up; state 4 is the fault
// state.
func (c *ModbusClient) Status(ctx context.Context) (*Reading, error) {
	state, err := c.readInputU32(ctx, regState)
	if err != nil {
		return nil, classify("status", c.stationID, err)
	}

	reading := &Reading{
		Plugged: state >= 2,
		State:   &state,
		Faulted: state == stateFault,
	}
	if raw, err := json.Marshal(map[string]uint32{"State": state}); err == nil {
		reading.RawStatus = string(raw)
	}

	present, perr := c.readInputU32(ctx, regPresentEnergy)
	total, terr := c.readInputU32(ctx, regTotalEnergy)
	if perr != nil && terr != nil {
		logger.Debug().Str("station_id", c.stationID).Err(perr).
			Msg("Energy registers unavailable this tick")
		return reading, nil
	}
	energy := make(map[string]float64, 2)
	if perr == nil {
		v := float64(present)
		reading.PresentRaw = &v
		energy["E pres"] = v
	}
	if terr == nil {
		v := float64(total)
		reading.TotalRaw = &v
		energy["Total energy"] = v
	}
	if raw, err := json.Marshal(energy); err == nil {
		reading.RawEnergy = string(raw)
	}
	return reading, nil
}

func (c *ModbusClient) readInputU32(ctx context.Context, address uint16) (uint32, error) {
	txn := uint16(c.txnID.Add(1))

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.target)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, err
	}

	// MBAP(7) + PDU(5): read input registers, quantity 2.
	request := []byte{
		byte(txn >> 8), byte(txn),
		0x00, 0x00,
		0x00, 0x06,
		c.unitID,
		fnReadInputRegisters,
		byte(address >> 8), byte(address),
		0x00, 0x02,
	}
	if _, err := conn.Write(request); err != nil {
		return 0, err
	}

	header := make([]byte, 7)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, err
	}
	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 3 {
		return 0, fmt.Errorf("%w: modbus response too short", apperrors.ErrMalformedResponse)
	}

	pdu := make([]byte, length-1)
	if _, err := io.ReadFull(conn, pdu); err != nil {
		return 0, err
	}

	if pdu[0] != fnReadInputRegisters {
		return 0, fmt.Errorf("%w: unexpected modbus function code %#x", apperrors.ErrMalformedResponse, pdu[0])
	}
	if len(pdu) < 6 || pdu[1] != 4 {
		return 0, fmt.Errorf("%w: modbus payload has unexpected byte count", apperrors.ErrMalformedResponse)
	}

	return binary.BigEndian.Uint32(pdu[2:6]), nil
}

// Close is a no-op; the client holds no persistent connection.
func (c *ModbusClient) Close() error {
	return nil
}
