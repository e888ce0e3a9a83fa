// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
	"github.com/Frabely/keba-home-api/pkg/interfaces"
	"github.com/Frabely/keba-home-api/pkg/logger"
	"github.com/Frabely/keba-home-api/pkg/metrics"
)

const (
	persistMaxAttempts  = 5
	persistBackoffBase  = 50 * time.Millisecond
	persistBackoffScale = 2
)

// Writer is the writer-role handle on the session store. It owns
// migrations, serializes its own inserts over a single connection, and
// retries on lock contention from other writer processes sharing the
// file.
type Writer struct {
	db    *sql.DB
	path  string
	clock func() time.Time
}

var _ interfaces.SessionWriter = (*Writer)(nil)

// NewWriter opens the database read-write, applies pending migrations
// and returns the writer handle.
func NewWriter(path string) (*Writer, error) {
	db, err := sql.Open("sqlite", writerDSN(path))
	if err != nil {
		return nil, apperrors.NewStorageError("open", false, err)
	}
	// A single connection keeps this process's writes strictly ordered;
	// cross-process ordering is the database's job.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Int("schema_version", LatestSchemaVersion).
		Msg("Session store opened for writing")

	return &Writer{db: db, path: path, clock: func() time.Time { return time.Now().UTC() }}, nil
}

// SaveSession durably inserts one completed session together with its
// linked log events in a single transaction. The record's ID and
// CreatedAt are assigned here. Transient lock contention is retried
// with exponential backoff; the failure is always logged with full
// context.
func (w *Writer) SaveSession(ctx context.Context, record *interfaces.SessionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = w.clock()
	}

	metrics.PersistTotal.Inc()

	err := w.withRetry(ctx, "save_session", func() error {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO charging_sessions (`+sessionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.StationID,
			formatTime(record.StartedAt), formatTime(record.EndedAt),
			record.DurationMs, record.EnergyKwh, record.EnergySource,
			record.Status, record.ErrorCount, record.PollSource,
			nullIfEmpty(record.RawStatus), nullIfEmpty(record.RawEnergy),
			formatTime(record.CreatedAt))
		if err != nil {
			return err
		}

		for i := range record.Events {
			ev := &record.Events[i]
			if ev.SessionID == "" {
				ev.SessionID = record.ID
			}
			if ev.CreatedAt.IsZero() {
				ev.CreatedAt = record.CreatedAt
			}
			if err := insertLogEvent(ctx, tx, ev); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		metrics.PersistErrors.Inc()
		logger.Error().Err(err).
			Str("session_id", record.ID).
			Str("station_id", record.StationID).
			Float64("kwh", record.EnergyKwh).
			Msg("Failed to persist charging session")
		return err
	}

	metrics.StoredSessions.Inc()
	logger.Debug().Str("session_id", record.ID).Msg("Charging session persisted")
	return nil
}

// SaveLogEvent inserts a runtime event and, when the event names a
// session, links it to that session in the same transaction.
func (w *Writer) SaveLogEvent(ctx context.Context, event *interfaces.LogEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = w.clock()
	}

	return w.withRetry(ctx, "save_log_event", func() error {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := insertLogEvent(ctx, tx, event); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// insertLogEvent inserts one event inside tx and, when the event names
// a session, links it to that session.
func insertLogEvent(ctx context.Context, tx *sql.Tx, event *interfaces.LogEvent) error {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO log_events (created_at, level, station_id, message)
		 VALUES (?, ?, ?, ?)`,
		formatTime(event.CreatedAt), event.Level,
		nullIfEmpty(event.StationID), event.Message)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = id

	if event.SessionID != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO charging_session_log_events (session_id, log_event_id)
			 VALUES (?, ?)`,
			event.SessionID, id)
	}
	return err
}

// Health checks that the store accepts statements.
func (w *Writer) Health(ctx context.Context) error {
	var one int
	if err := w.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return apperrors.NewStorageError("health", false, err)
	}
	return nil
}

// Diagnostics reports schema version, row counts and file size.
func (w *Writer) Diagnostics(ctx context.Context) (*interfaces.DBDiagnostics, error) {
	diag, err := diagnostics(w.db, w.path)
	if err != nil {
		return nil, apperrors.NewStorageError("diagnostics", false, err)
	}
	return diag, nil
}

// Close shuts down the writer handle.
func (w *Writer) Close() error {
	return w.db.Close()
}

func (w *Writer) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := persistBackoffBase
	var err error

	for attempt := 1; attempt <= persistMaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isContention(err) {
			if isReadOnly(err) {
				err = fmt.Errorf("%w: %v", apperrors.ErrReadOnly, err)
			}
			return apperrors.NewStorageError(op, false, err)
		}
		if attempt == persistMaxAttempts {
			break
		}

		metrics.PersistRetries.Inc()
		logger.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Session store contention, retrying")

		select {
		case <-ctx.Done():
			return apperrors.NewStorageError(op, false, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= persistBackoffScale
	}

	return apperrors.NewStorageError(op, true,
		fmt.Errorf("%w: %v", apperrors.ErrStoreBusy, err))
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
