// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package device

import (
	"context"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
)

// ReplayStep is one scripted poll outcome.
type ReplayStep struct {
	Reading *Reading
	Err     error
}

// ReplayClient serves a scripted sequence of poll outcomes. It backs
// tests and dry runs without station hardware. Once the script is
// exhausted it keeps repeating the final step.
type ReplayClient struct {
	stationID string
	steps     []ReplayStep
	pos       int
}

// NewReplayClient creates a client replaying the given steps in order.
func NewReplayClient(stationID string, steps []ReplayStep) *ReplayClient {
	return &ReplayClient{stationID: stationID, steps: steps}
}

func (c *ReplayClient) Status(ctx context.Context) (*Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("status", c.stationID, err)
	}
	if len(c.steps) == 0 {
		return nil, apperrors.NewDeviceError("status", c.stationID, apperrors.ErrUnreachable)
	}

	step := c.steps[c.pos]
	if c.pos < len(c.steps)-1 {
		c.pos++
	}

	if step.Err != nil {
		return nil, classify("status", c.stationID, step.Err)
	}
	r := *step.Reading
	return &r, nil
}

func (c *ReplayClient) Close() error {
	return nil
}
