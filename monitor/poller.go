// Copyright (c) 2025 Frabely
// Licensed under the MIT License

// Package monitor drives the per-station poll loops that feed charging
// station samples through the session pipeline.
package monitor

import (
	"context"
	"time"

	"github.com/Frabely/keba-home-api/device"
	"github.com/Frabely/keba-home-api/pkg/interfaces"
	"github.com/Frabely/keba-home-api/pkg/logger"
	"github.com/Frabely/keba-home-api/pkg/metrics"
	"github.com/Frabely/keba-home-api/session"
)

// Station describes one charging station to poll.
type Station struct {
	ID              string
	Client          device.Client
	PollSource      string // udp or modbus
	EnergyUnit      session.EnergyUnit
	DebounceSamples int
}

// stationPoller owns the full pipeline for one station: the client,
// the debounce tracker and the session machine. Ticks are processed
// strictly in order on a single goroutine; the pipeline state is never
// shared.
type stationPoller struct {
	station  Station
	machine  *session.Machine
	clock    session.Clock
	interval time.Duration
	timeout  time.Duration
	sessions chan<- *interfaces.SessionRecord
}

func newStationPoller(st Station, clock session.Clock, interval, timeout time.Duration,
	sessions chan<- *interfaces.SessionRecord) *stationPoller {
	return &stationPoller{
		station: st,
		machine: session.NewMachine(st.ID, st.PollSource,
			session.NewTracker(st.DebounceSamples),
			session.NewAccountant(st.EnergyUnit)),
		clock:    clock,
		interval: interval,
		timeout:  timeout,
		sessions: sessions,
	}
}

func (p *stationPoller) run(ctx context.Context) {
	logger.Info().Str("station_id", p.station.ID).
		Str("poll_source", p.station.PollSource).
		Dur("interval", p.interval).
		Msg("Starting station polling")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First poll immediately so the plug-state baseline is seeded
	// before the first interval elapses.
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("station_id", p.station.ID).Msg("Stopping station polling")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *stationPoller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	reading, err := p.station.Client.Status(pollCtx)
	metrics.PollsTotal.WithLabelValues(p.station.ID).Inc()
	metrics.PollDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PollErrors.WithLabelValues(p.station.ID).Inc()
		logger.Debug().Str("station_id", p.station.ID).Err(err).Msg("Station poll failed")
		p.machine.RecordFailure()
		return
	}

	record := p.machine.Observe(session.Sample{
		Plugged:    reading.Plugged,
		Faulted:    reading.Faulted,
		PresentRaw: reading.PresentRaw,
		TotalRaw:   reading.TotalRaw,
		Seconds:    reading.Seconds,
		RawStatus:  reading.RawStatus,
		RawEnergy:  reading.RawEnergy,
		At:         p.clock.Now(),
	})
	if record == nil {
		return
	}

	select {
	case p.sessions <- record:
	case <-ctx.Done():
	}
}
