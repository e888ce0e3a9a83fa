// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
	"github.com/Frabely/keba-home-api/pkg/logger"
)

const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// BreakerClient wraps a station client with a circuit breaker so a
// station that stops answering is backed off instead of hammered every
// tick. While the breaker is open, polls fail fast as unreachable.
type BreakerClient struct {
	inner   Client
	station string
	cb      *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner with a per-station circuit breaker.
func NewBreakerClient(stationID string, inner Client) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("station-%s", stationID),
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Station circuit breaker state changed")
		},
	}

	return &BreakerClient{
		inner:   inner,
		station: stationID,
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *BreakerClient) Status(ctx context.Context) (*Reading, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.inner.Status(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.NewDeviceError("status", c.station,
				fmt.Errorf("%w: circuit breaker open", apperrors.ErrUnreachable))
		}
		return nil, err
	}
	return result.(*Reading), nil
}

func (c *BreakerClient) Close() error {
	return c.inner.Close()
}
