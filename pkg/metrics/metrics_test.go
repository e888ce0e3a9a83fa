// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStationsMonitoredGauge(t *testing.T) {
	StationsMonitored.Set(0)
	StationsMonitored.Set(2)

	value := testutil.ToFloat64(StationsMonitored)
	if value != 2 {
		t.Errorf("StationsMonitored = %v, want 2", value)
	}
}

func TestPollsTotalCounter(t *testing.T) {
	counter := PollsTotal.WithLabelValues("garage")
	initial := testutil.ToFloat64(counter)
	counter.Inc()
	final := testutil.ToFloat64(counter)

	if final <= initial {
		t.Errorf("PollsTotal should have increased, got %v -> %v", initial, final)
	}
}

func TestPollErrorsCounter(t *testing.T) {
	counter := PollErrors.WithLabelValues("garage")
	initial := testutil.ToFloat64(counter)
	counter.Inc()
	final := testutil.ToFloat64(counter)

	if final <= initial {
		t.Errorf("PollErrors should have increased, got %v -> %v", initial, final)
	}
}

func TestSessionsCompletedCounterLabels(t *testing.T) {
	counter := SessionsCompleted.WithLabelValues("garage", "present-session")
	initial := testutil.ToFloat64(counter)
	counter.Inc()
	final := testutil.ToFloat64(counter)

	if final <= initial {
		t.Errorf("SessionsCompleted should have increased, got %v -> %v", initial, final)
	}

	// A different energy source is a separate series and must not move.
	other := SessionsCompleted.WithLabelValues("carport", "total-diff")
	if testutil.ToFloat64(other) != 0 {
		t.Errorf("untouched label series = %v, want 0", testutil.ToFloat64(other))
	}
}

func TestSessionActiveGauge(t *testing.T) {
	SessionActive.WithLabelValues("garage").Set(1)

	metric, err := SessionActive.GetMetricWithLabelValues("garage")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if testutil.ToFloat64(metric) != 1 {
		t.Errorf("SessionActive = %v, want 1", testutil.ToFloat64(metric))
	}

	SessionActive.WithLabelValues("garage").Set(0)
	if testutil.ToFloat64(metric) != 0 {
		t.Errorf("SessionActive = %v, want 0", testutil.ToFloat64(metric))
	}
}

func TestPersistCounters(t *testing.T) {
	counters := []struct {
		name    string
		counter prometheus.Counter
	}{
		{"PersistTotal", PersistTotal},
		{"PersistRetries", PersistRetries},
		{"PersistErrors", PersistErrors},
	}

	for _, tc := range counters {
		initial := testutil.ToFloat64(tc.counter)
		tc.counter.Inc()
		final := testutil.ToFloat64(tc.counter)
		if final <= initial {
			t.Errorf("%s should have increased, got %v -> %v", tc.name, initial, final)
		}
	}
}

func TestHistogramsAcceptObservations(t *testing.T) {
	PollDuration.Observe(0.05)
	SessionEnergyKwh.Observe(4.121)

	if testutil.CollectAndCount(PollDuration) == 0 {
		t.Error("PollDuration histogram should have observations")
	}
	if testutil.CollectAndCount(SessionEnergyKwh) == 0 {
		t.Error("SessionEnergyKwh histogram should have observations")
	}
}

func TestMetricsAreRegistered(t *testing.T) {
	metrics := []prometheus.Collector{
		StationsMonitored,
		PollsTotal,
		PollErrors,
		PollDuration,
		SessionsCompleted,
		SessionEnergyKwh,
		SessionActive,
		PersistTotal,
		PersistRetries,
		PersistErrors,
		StoredSessions,
	}

	for i, metric := range metrics {
		count := testutil.CollectAndCount(metric)
		if count < 0 {
			t.Errorf("Metric %d is not properly registered", i)
		}
	}
}
