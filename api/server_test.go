// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frabely/keba-home-api/pkg/interfaces"
)

// fakeReader is a scriptable SessionReader recording the query bounds
// it was called with.
type fakeReader struct {
	latest     *interfaces.SessionRecord
	recent     *interfaces.SessionRecord
	sessions   []*interfaces.SessionRecord
	events     []*interfaces.LogEvent
	diag       *interfaces.DBDiagnostics
	err        error
	gotLimit   int
	gotOffset  int
	gotCutoff  time.Time
	eventLimit int
}

func (f *fakeReader) Latest(ctx context.Context) (*interfaces.SessionRecord, error) {
	return f.latest, f.err
}

func (f *fakeReader) LatestSince(ctx context.Context, cutoff time.Time) (*interfaces.SessionRecord, error) {
	f.gotCutoff = cutoff
	return f.recent, f.err
}

func (f *fakeReader) List(ctx context.Context, limit, offset int) ([]*interfaces.SessionRecord, error) {
	f.gotLimit = limit
	f.gotOffset = offset
	return f.sessions, f.err
}

func (f *fakeReader) ListLogEvents(ctx context.Context, limit int) ([]*interfaces.LogEvent, error) {
	f.eventLimit = limit
	return f.events, f.err
}

func (f *fakeReader) Diagnostics(ctx context.Context) (*interfaces.DBDiagnostics, error) {
	if f.diag == nil {
		return nil, f.err
	}
	return f.diag, nil
}

func (f *fakeReader) Close() error { return nil }

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func sampleRecord() *interfaces.SessionRecord {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &interfaces.SessionRecord{
		ID:           "b3b7c9a2-0000-4000-8000-000000000001",
		StationID:    "garage",
		StartedAt:    started,
		EndedAt:      started.Add(30 * time.Minute),
		DurationMs:   30 * 60 * 1000,
		EnergyKwh:    4.121,
		EnergySource: "present-session",
		Status:       "completed",
		ErrorCount:   2,
		PollSource:   "udp",
		CreatedAt:    started.Add(30 * time.Minute),
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := New(&fakeReader{}, "127.0.0.1:0")
	rr := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	ready := New(&fakeReader{diag: &interfaces.DBDiagnostics{}}, "127.0.0.1:0")
	assert.Equal(t, http.StatusOK, get(t, ready, "/ready").Code)

	broken := New(&fakeReader{err: errors.New("disk gone")}, "127.0.0.1:0")
	assert.Equal(t, http.StatusServiceUnavailable, get(t, broken, "/ready").Code)
}

func TestLatestReturns404WhenEmpty(t *testing.T) {
	s := New(&fakeReader{}, "127.0.0.1:0")
	rr := get(t, s, "/sessions/latest")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLatestReturnsSession(t *testing.T) {
	s := New(&fakeReader{latest: sampleRecord()}, "127.0.0.1:0")
	rr := get(t, s, "/sessions/latest")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "garage", body["stationId"])
	assert.Equal(t, "2025-06-01T12:00:00.000Z", body["startedAt"])
	assert.Equal(t, "2025-06-01T12:30:00.000Z", body["finishedAt"])
	assert.InDelta(t, 4.121, body["kwh"], 1e-9)
	assert.Equal(t, "present-session", body["energySource"])
	assert.EqualValues(t, 2, body["errorCountDuringSession"])
	assert.EqualValues(t, 1800000, body["durationMs"])
}

func TestRecentReturns204WhenNone(t *testing.T) {
	s := New(&fakeReader{}, "127.0.0.1:0")
	rr := get(t, s, "/sessions/recent")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestRecentUsesFiveMinuteWindow(t *testing.T) {
	reader := &fakeReader{recent: sampleRecord()}
	s := New(reader, "127.0.0.1:0")
	fixed := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	rr := get(t, s, "/sessions/recent")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, reader.gotCutoff.Equal(fixed.Add(-5*time.Minute)),
		"cutoff = %v", reader.gotCutoff)
}

func TestListClampsLimitAndOffset(t *testing.T) {
	reader := &fakeReader{}
	s := New(reader, "127.0.0.1:0")

	// limit=0 clamps to 1, deterministically.
	rr := get(t, s, "/sessions?limit=0&offset=0")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, reader.gotLimit)

	get(t, s, "/sessions?limit=9999")
	assert.Equal(t, listLimitMax, reader.gotLimit)

	get(t, s, "/sessions?offset=-4")
	assert.Equal(t, 0, reader.gotOffset)

	get(t, s, "/sessions")
	assert.Equal(t, listLimitDefault, reader.gotLimit)
}

func TestListReturnsArray(t *testing.T) {
	reader := &fakeReader{sessions: []*interfaces.SessionRecord{sampleRecord()}}
	s := New(reader, "127.0.0.1:0")

	rr := get(t, s, "/sessions")
	require.Equal(t, http.StatusOK, rr.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "garage", body[0]["stationId"])
}

func TestListEmptyStoreReturnsEmptyArray(t *testing.T) {
	s := New(&fakeReader{}, "127.0.0.1:0")
	rr := get(t, s, "/sessions")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestDBDiagnostics(t *testing.T) {
	reader := &fakeReader{
		latest: sampleRecord(),
		diag: &interfaces.DBDiagnostics{
			SchemaVersion: 3,
			JournalMode:   "wal",
			SessionCount:  7,
			LogEventCount: 2,
			SizeBytes:     4096,
		},
	}
	s := New(reader, "127.0.0.1:0")

	rr := get(t, s, "/diagnostics/db")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body["schemaVersion"])
	assert.EqualValues(t, 7, body["sessionsCount"])
	assert.Equal(t, "wal", body["journalMode"])
	require.NotNil(t, body["latestSession"])
}

func TestLogEventsEndpoint(t *testing.T) {
	reader := &fakeReader{events: []*interfaces.LogEvent{{
		ID:        1,
		Level:     "warn",
		StationID: "garage",
		Message:   "station counters decreased mid-session",
		CreatedAt: time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC),
	}}}
	s := New(reader, "127.0.0.1:0")

	rr := get(t, s, "/diagnostics/log-events?limit=700")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, listLimitMax, reader.eventLimit)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "warn", body[0]["level"])
}

func TestStoreFailureIsGenericInternalError(t *testing.T) {
	s := New(&fakeReader{err: errors.New("database is locked")}, "127.0.0.1:0")
	rr := get(t, s, "/sessions/latest")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal storage error"}`, rr.Body.String())
}
