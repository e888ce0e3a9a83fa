// Copyright (c) 2025 Frabely
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the KEBA home API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StationsMonitored tracks the number of stations currently being polled
	StationsMonitored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keba_stations_monitored",
		Help: "Number of charging stations currently being polled",
	})

	// PollsTotal tracks the total number of status polls issued
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keba_polls_total",
		Help: "Total number of station status polls",
	}, []string{"station"})

	// PollErrors tracks the number of failed status polls
	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keba_poll_errors_total",
		Help: "Total number of failed station status polls",
	}, []string{"station"})

	// PollDuration tracks how long one status round-trip takes
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keba_poll_duration_seconds",
		Help:    "Duration of one station status round-trip in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SessionsCompleted tracks the number of charging sessions closed
	SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keba_sessions_completed_total",
		Help: "Total number of completed charging sessions",
	}, []string{"station", "energy_source"})

	// SessionEnergyKwh tracks the energy delivered per completed session
	SessionEnergyKwh = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keba_session_energy_kwh",
		Help:    "Energy delivered per completed charging session in kWh",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	// SessionActive indicates whether a charging session is currently open
	SessionActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "keba_session_active",
		Help: "Whether a charging session is currently open (1) or not (0)",
	}, []string{"station"})

	// PersistTotal tracks the total number of session persist calls
	PersistTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keba_session_persist_total",
		Help: "Total number of session persist calls",
	})

	// PersistRetries tracks persist attempts retried due to store contention
	PersistRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keba_session_persist_retries_total",
		Help: "Total number of persist attempts retried due to store contention",
	})

	// PersistErrors tracks persist calls that failed after retry exhaustion
	PersistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keba_session_persist_errors_total",
		Help: "Total number of persist calls that failed permanently",
	})

	// StoredSessions tracks the number of sessions in the store
	StoredSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keba_stored_sessions",
		Help: "Number of charging sessions in the store",
	})
)
