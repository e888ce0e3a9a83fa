// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/Frabely/keba-home-api/pkg/interfaces"
	"github.com/Frabely/keba-home-api/pkg/logger"
	"github.com/Frabely/keba-home-api/pkg/metrics"
	"github.com/Frabely/keba-home-api/session"
)

const sessionsChannelSize = 16

// Monitor supervises one poll loop per configured station and fans
// completed sessions into a single channel for the persistence writer.
type Monitor struct {
	stations     []Station
	clock        session.Clock
	pollInterval time.Duration
	pollTimeout  time.Duration

	sessions     chan *interfaces.SessionRecord
	cancelFuncs  map[string]context.CancelFunc
	stationMutex sync.RWMutex
	wg           sync.WaitGroup
	stopped      bool
}

var _ interfaces.StationMonitor = (*Monitor)(nil)

// New creates a monitor for the given stations.
func New(stations []Station, clock session.Clock, pollInterval, pollTimeout time.Duration) *Monitor {
	return &Monitor{
		stations:     stations,
		clock:        clock,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		sessions:     make(chan *interfaces.SessionRecord, sessionsChannelSize),
		cancelFuncs:  make(map[string]context.CancelFunc),
	}
}

// Start begins polling all configured stations.
func (m *Monitor) Start(ctx context.Context) {
	logger.Info().Msgf("Starting monitoring for %d stations", len(m.stations))

	m.stationMutex.Lock()
	defer m.stationMutex.Unlock()

	for _, st := range m.stations {
		if _, exists := m.cancelFuncs[st.ID]; exists {
			logger.Debug().Str("station_id", st.ID).Msg("Station already monitored, skipping")
			continue
		}

		stationCtx, cancel := context.WithCancel(ctx)
		m.cancelFuncs[st.ID] = cancel
		poller := newStationPoller(st, m.clock, m.pollInterval, m.pollTimeout, m.sessions)

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			poller.run(stationCtx)
		}()
	}

	metrics.StationsMonitored.Set(float64(len(m.cancelFuncs)))
}

// IsMonitoring checks if a station is currently being polled.
func (m *Monitor) IsMonitoring(stationID string) bool {
	m.stationMutex.RLock()
	defer m.stationMutex.RUnlock()
	_, exists := m.cancelFuncs[stationID]
	return exists
}

// MonitoredStationCount returns the number of stations being polled.
func (m *Monitor) MonitoredStationCount() int {
	m.stationMutex.RLock()
	defer m.stationMutex.RUnlock()
	return len(m.cancelFuncs)
}

// Sessions returns the channel carrying completed sessions.
func (m *Monitor) Sessions() <-chan *interfaces.SessionRecord {
	return m.sessions
}

// Stop cancels all poll loops, waits for them to finish and closes the
// sessions channel. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stationMutex.Lock()
	if m.stopped {
		m.stationMutex.Unlock()
		return
	}
	m.stopped = true

	for id, cancel := range m.cancelFuncs {
		cancel()
		delete(m.cancelFuncs, id)
	}
	m.stationMutex.Unlock()

	m.wg.Wait()
	close(m.sessions)
	metrics.StationsMonitored.Set(0)
	logger.Info().Msg("Station monitoring stopped")
}
