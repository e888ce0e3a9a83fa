// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
	"github.com/Frabely/keba-home-api/pkg/interfaces"
	"github.com/Frabely/keba-home-api/pkg/logger"
)

// ListLimitMax bounds one list query; requests beyond it are clamped.
const ListLimitMax = 500

// Reader is a read-only handle on the session store. It never writes,
// never migrates and never retries: queries either see a consistent
// snapshot or fail fast.
type Reader struct {
	db   *sql.DB
	path string
}

var _ interfaces.SessionReader = (*Reader)(nil)

// NewReader opens the database read-only. The file and its schema must
// already exist; readers do not create either.
func NewReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", readerDSN(path))
	if err != nil {
		return nil, apperrors.NewStorageError("open", false, err)
	}

	version, err := schemaVersion(db)
	if err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("open", false, err)
	}
	if version > LatestSchemaVersion {
		db.Close()
		return nil, apperrors.NewStorageError("open", false, apperrors.ErrSchemaTooNew)
	}

	logger.Debug().Str("path", path).Msg("Session store opened read-only")
	return &Reader{db: db, path: path}, nil
}

// Latest returns the most recently recorded session, or nil when the
// store is empty.
func (r *Reader) Latest(ctx context.Context) (*interfaces.SessionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM charging_sessions
		 ORDER BY created_at DESC, id DESC LIMIT 1`)

	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("latest", false, err)
	}
	return rec, nil
}

// LatestSince returns the most recent session that ended at or after
// cutoff, or nil when none qualify.
func (r *Reader) LatestSince(ctx context.Context, cutoff time.Time) (*interfaces.SessionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM charging_sessions
		 WHERE ended_at >= ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		formatTime(cutoff))

	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("latest_since", false, err)
	}
	return rec, nil
}

// List returns up to limit sessions, newest first, skipping offset
// rows. The limit is clamped to [1, ListLimitMax], the offset to >= 0.
func (r *Reader) List(ctx context.Context, limit, offset int) ([]*interfaces.SessionRecord, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM charging_sessions
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, apperrors.NewStorageError("list", false, err)
	}
	defer rows.Close()

	sessions := make([]*interfaces.SessionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("list", false, err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("list", false, err)
	}
	return sessions, nil
}

// ListLogEvents returns up to limit log events, newest first, with the
// linked session id when one exists.
func (r *Reader) ListLogEvents(ctx context.Context, limit int) ([]*interfaces.LogEvent, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.created_at, e.level, e.station_id, e.message, l.session_id
		 FROM log_events e
		 LEFT JOIN charging_session_log_events l ON l.log_event_id = e.id
		 ORDER BY e.created_at DESC, e.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("list_log_events", false, err)
	}
	defer rows.Close()

	events := make([]*interfaces.LogEvent, 0, limit)
	for rows.Next() {
		ev, err := scanLogEvent(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("list_log_events", false, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("list_log_events", false, err)
	}
	return events, nil
}

// Diagnostics reports schema version, row counts and file size.
func (r *Reader) Diagnostics(ctx context.Context) (*interfaces.DBDiagnostics, error) {
	diag, err := diagnostics(r.db, r.path)
	if err != nil {
		return nil, apperrors.NewStorageError("diagnostics", false, err)
	}
	return diag, nil
}

// Close shuts down the reader handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > ListLimitMax {
		return ListLimitMax
	}
	return limit
}
