// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package interfaces

import (
	"context"
)

// StationMonitor defines the interface for charging station monitoring.
// Implementations should manage concurrent polling of multiple stations.
type StationMonitor interface {
	// Start begins polling all configured stations
	Start(ctx context.Context)

	// IsMonitoring checks if a station is currently being polled
	IsMonitoring(stationID string) bool

	// MonitoredStationCount returns the number of stations being polled
	MonitoredStationCount() int

	// Sessions returns the channel for receiving completed sessions
	Sessions() <-chan *SessionRecord

	// Stop stops all station polling and closes the sessions channel
	Stop()
}
