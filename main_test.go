// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Frabely/keba-home-api/config"
	"github.com/Frabely/keba-home-api/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Stations: []config.StationConfig{
			{Name: "garage", Host: "192.168.1.50", Port: 7090, Source: "udp", EnergyUnit: "tenths_wh"},
			{Name: "carport", Host: "192.168.1.51", Port: 502, Source: "modbus", ModbusUnitID: 255, EnergyUnit: "kwh"},
		},
		Poll: config.PollConfig{
			Interval:        time.Second,
			Timeout:         2 * time.Second,
			DebounceSamples: 2,
		},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "sessions.db")},
		HTTP:     config.HTTPConfig{Bind: "127.0.0.1:0"},
		Logging:  config.LoggingConfig{Level: "error"},
	}
}

func TestBuildStations(t *testing.T) {
	cfg := testConfig(t)
	stations := buildStations(cfg)

	if len(stations) != 2 {
		t.Fatalf("stations = %d, want 2", len(stations))
	}
	if stations[0].ID != "garage" || stations[0].PollSource != "udp" {
		t.Errorf("stations[0] = %+v", stations[0])
	}
	if stations[1].PollSource != "modbus" {
		t.Errorf("stations[1].PollSource = %q, want modbus", stations[1].PollSource)
	}
	if stations[0].EnergyUnit != session.UnitTenthsWh {
		t.Errorf("stations[0].EnergyUnit = %q", stations[0].EnergyUnit)
	}
	if stations[1].EnergyUnit != session.UnitKwh {
		t.Errorf("stations[1].EnergyUnit = %q", stations[1].EnergyUnit)
	}
	if stations[0].DebounceSamples != 2 {
		t.Errorf("stations[0].DebounceSamples = %d", stations[0].DebounceSamples)
	}
}

func TestNewRejectsUnknownRole(t *testing.T) {
	cfg := testConfig(t)
	if _, err := New(cfg, "backup", nil); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestNewReaderRoleNeedsExistingStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing", "sessions.db")

	if _, err := New(cfg, roleReader, nil); err == nil {
		t.Error("reader role opened a store that does not exist")
	}
}

func TestNewMonitorRoleCreatesStore(t *testing.T) {
	cfg := testConfig(t)

	app, err := New(cfg, roleMonitor, config.NewWatcher("config.yaml", make(chan *config.Config)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		app.writer.Close()
		app.reader.Close()
	}()

	if app.monitor == nil || app.writer == nil || app.reader == nil || app.apiServer == nil {
		t.Error("monitor role did not wire all components")
	}
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		t.Errorf("store file not created: %v", err)
	}
}

func TestPerformConfigValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `stations:
  - name: "garage"
    host: "192.168.1.50"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := performConfigValidation(path); code != 0 {
		t.Errorf("valid config rejected, exit code %d", code)
	}
	if code := performConfigValidation("/nonexistent.yaml"); code == 0 {
		t.Error("missing config accepted")
	}
}
