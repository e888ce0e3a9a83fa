// Copyright (c) 2025 Frabely
// Licensed under the MIT License

// Package store persists charging sessions in SQLite. One writer-role
// handle serializes inserts with retry on contention; any number of
// read-only handles query the same file concurrently.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
	"github.com/Frabely/keba-home-api/pkg/interfaces"
)

// LatestSchemaVersion is the newest schema this build understands. A
// database stamped with a higher version belongs to a newer build and
// is refused rather than guessed at.
const LatestSchemaVersion = 3

// Timestamps are stored as UTC text with millisecond precision so that
// lexicographic order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z"

type migration struct {
	version    int
	statements []string
}

// Migrations are forward-only and append-only. Each step is guarded
// with IF NOT EXISTS so re-running on an already-migrated file is safe.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS charging_sessions (
				id TEXT PRIMARY KEY,
				station_id TEXT NOT NULL,
				started_at TEXT NOT NULL,
				ended_at TEXT NOT NULL,
				duration_ms INTEGER NOT NULL,
				energy_kwh REAL NOT NULL,
				energy_source TEXT NOT NULL,
				status TEXT NOT NULL,
				error_count INTEGER NOT NULL,
				poll_source TEXT NOT NULL,
				raw_status TEXT,
				raw_energy TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_charging_sessions_created_at_desc
				ON charging_sessions (created_at DESC)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS log_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TEXT NOT NULL,
				level TEXT NOT NULL,
				station_id TEXT,
				message TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_log_events_created_at_desc
				ON log_events (created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS charging_session_log_events (
				session_id TEXT NOT NULL,
				log_event_id INTEGER NOT NULL,
				PRIMARY KEY (session_id, log_event_id),
				FOREIGN KEY (session_id) REFERENCES charging_sessions(id) ON DELETE CASCADE,
				FOREIGN KEY (log_event_id) REFERENCES log_events(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_charging_session_log_events_log_event
				ON charging_session_log_events (log_event_id)`,
		},
	},
	{
		version: 3,
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_charging_sessions_station_created_at_desc
				ON charging_sessions (station_id, created_at DESC)`,
		},
	},
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err == nil {
		return t, nil
	}
	// Tolerate plain RFC3339 written by older builds.
	t, rfcErr := time.Parse(time.RFC3339, s)
	if rfcErr != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", s, err)
	}
	return t, nil
}

func writerDSN(path string) string {
	return "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)"
}

func readerDSN(path string) string {
	return "file:" + path +
		"?mode=ro" +
		"&_pragma=query_only(ON)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)"
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func migrate(db *sql.DB) error {
	current, err := schemaVersion(db)
	if err != nil {
		return apperrors.NewStorageError("migrate", false, err)
	}
	if current > LatestSchemaVersion {
		return apperrors.NewStorageError("migrate", false,
			fmt.Errorf("%w: on-disk version %d, supported %d",
				apperrors.ErrSchemaTooNew, current, LatestSchemaVersion))
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return apperrors.NewStorageError("migrate", false, err)
		}
		for _, stmt := range m.statements {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return apperrors.NewStorageError("migrate", false, err)
			}
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return apperrors.NewStorageError("migrate", false, err)
		}
		if err := tx.Commit(); err != nil {
			return apperrors.NewStorageError("migrate", false, err)
		}
	}
	return nil
}

// isContention reports whether the driver error is SQLite lock
// contention, the only class of write failure worth retrying.
func isContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}

// isReadOnly reports whether the driver refused a write because the
// database file or its handle is read-only. Never worth retrying.
func isReadOnly(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "readonly database") ||
		strings.Contains(msg, "read-only")
}

func diagnostics(db *sql.DB, path string) (*interfaces.DBDiagnostics, error) {
	diag := &interfaces.DBDiagnostics{Path: path}

	version, err := schemaVersion(db)
	if err != nil {
		return nil, err
	}
	diag.SchemaVersion = version

	if err := db.QueryRow("PRAGMA journal_mode").Scan(&diag.JournalMode); err != nil {
		return nil, err
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM charging_sessions").Scan(&diag.SessionCount); err != nil {
		return nil, err
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM log_events").Scan(&diag.LogEventCount); err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err == nil {
		diag.SizeBytes = info.Size()
	}
	return diag, nil
}

const sessionColumns = `id, station_id, started_at, ended_at, duration_ms, energy_kwh,
	energy_source, status, error_count, poll_source, raw_status, raw_energy, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*interfaces.SessionRecord, error) {
	var rec interfaces.SessionRecord
	var startedAt, endedAt, createdAt string
	var rawStatus, rawEnergy sql.NullString

	err := row.Scan(&rec.ID, &rec.StationID, &startedAt, &endedAt, &rec.DurationMs,
		&rec.EnergyKwh, &rec.EnergySource, &rec.Status, &rec.ErrorCount,
		&rec.PollSource, &rawStatus, &rawEnergy, &createdAt)
	if err != nil {
		return nil, err
	}

	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if rec.EndedAt, err = parseTime(endedAt); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	rec.RawStatus = rawStatus.String
	rec.RawEnergy = rawEnergy.String
	return &rec, nil
}

func scanLogEvent(row rowScanner) (*interfaces.LogEvent, error) {
	var ev interfaces.LogEvent
	var createdAt string
	var stationID, sessionID sql.NullString

	err := row.Scan(&ev.ID, &createdAt, &ev.Level, &stationID, &ev.Message, &sessionID)
	if err != nil {
		return nil, err
	}

	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	ev.StationID = stationID.String
	ev.SessionID = sessionID.String
	return &ev, nil
}
