// Copyright (c) 2025 Frabely
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system components.
// This package promotes loose coupling and testability by allowing
// dependency injection and easy mocking in tests.
package interfaces

import (
	"context"
	"time"
)

// SessionRecord represents a completed charging session as persisted.
// This is declared here to avoid circular dependencies.
type SessionRecord struct {
	ID           string
	StationID    string
	StartedAt    time.Time
	EndedAt      time.Time
	DurationMs   int64
	EnergyKwh    float64
	EnergySource string // present-session, total-diff, present-end, or none
	Status       string
	ErrorCount   int
	PollSource   string // udp or modbus
	RawStatus    string
	RawEnergy    string
	CreatedAt    time.Time

	// Events are anomalies observed during this session (counter
	// resets, energy clamps). They are persisted as linked log events
	// in the same transaction as the session row.
	Events []LogEvent
}

// LogEvent represents a notable runtime event recorded alongside sessions.
type LogEvent struct {
	ID        int64
	Level     string
	StationID string
	Message   string
	SessionID string // empty when the event is not tied to a session
	CreatedAt time.Time
}

// DBDiagnostics summarizes the state of the session store.
type DBDiagnostics struct {
	Path          string
	SchemaVersion int
	JournalMode   string
	SessionCount  int64
	LogEventCount int64
	SizeBytes     int64
}

// SessionWriter defines the interface for session persistence.
// Implementations must tolerate concurrent writers on the same database.
type SessionWriter interface {
	// SaveSession persists a completed session and its linked log events
	// in one transaction, retrying on store contention
	SaveSession(ctx context.Context, record *SessionRecord) error

	// SaveLogEvent persists a runtime event, optionally linked to a session
	SaveLogEvent(ctx context.Context, event *LogEvent) error

	// Health checks if the store is reachable and writable
	Health(ctx context.Context) error

	// Diagnostics reports schema version and row counts
	Diagnostics(ctx context.Context) (*DBDiagnostics, error)

	// Close gracefully shuts down the store connection
	Close() error
}

// SessionReader defines the read-only query surface over persisted sessions.
type SessionReader interface {
	// Latest returns the most recently recorded session, or nil if none exist
	Latest(ctx context.Context) (*SessionRecord, error)

	// LatestSince returns the most recent session that ended at or after
	// cutoff, or nil if none qualify
	LatestSince(ctx context.Context, cutoff time.Time) (*SessionRecord, error)

	// List returns up to limit sessions, newest first, skipping offset rows
	List(ctx context.Context, limit, offset int) ([]*SessionRecord, error)

	// ListLogEvents returns up to limit log events, newest first
	ListLogEvents(ctx context.Context, limit int) ([]*LogEvent, error)

	// Diagnostics reports schema version and row counts
	Diagnostics(ctx context.Context) (*DBDiagnostics, error)

	// Close gracefully shuts down the store connection
	Close() error
}
