// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/Frabely/keba-home-api/api"
	"github.com/Frabely/keba-home-api/config"
	"github.com/Frabely/keba-home-api/device"
	"github.com/Frabely/keba-home-api/monitor"
	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
	"github.com/Frabely/keba-home-api/pkg/interfaces"
	"github.com/Frabely/keba-home-api/pkg/logger"
	"github.com/Frabely/keba-home-api/pkg/metrics"
	"github.com/Frabely/keba-home-api/session"
	"github.com/Frabely/keba-home-api/store"
)

const (
	signalChannelSize  = 1
	healthCheckTimeout = 2 * time.Second
	persistTimeout     = 10 * time.Second
)

const (
	roleMonitor = "monitor"
	roleReader  = "reader"
)

// App represents the main application
type App struct {
	cfg           *config.Config
	role          string
	writer        interfaces.SessionWriter
	reader        interfaces.SessionReader
	monitor       interfaces.StationMonitor
	apiServer     *api.Server
	configWatcher *config.Watcher
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	role := flag.String("role", roleMonitor, "Process role: monitor (poll stations and serve API) or reader (serve API only)")
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(*configPath))
	}

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.Logging.Level)

	logger.Info().Str("role", *role).Msg("Starting KEBA home API")
	logger.Info().Int("stations", len(cfg.Stations)).
		Dur("poll_interval", cfg.Poll.Interval).
		Int("debounce_samples", cfg.Poll.DebounceSamples).
		Msg("Configuration loaded")

	configChan := make(chan *config.Config)
	configWatcher := config.NewWatcher(*configPath, configChan)

	application, err := New(cfg, *role, configWatcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}

	setupDebugSignalHandlers(application)
	application.Run(configChan)
}

// New creates a new application instance
func New(cfg *config.Config, role string, configWatcher *config.Watcher) (*App, error) {
	if role != roleMonitor && role != roleReader {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	app := &App{
		cfg:           cfg,
		role:          role,
		configWatcher: configWatcher,
	}

	if role == roleMonitor {
		writer, err := store.NewWriter(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store for writing: %w", err)
		}
		app.writer = writer
		app.monitor = monitor.New(buildStations(cfg), session.NewSystemClock(),
			cfg.Poll.Interval, cfg.Poll.Timeout)
	}

	reader, err := store.NewReader(cfg.Database.Path)
	if err != nil {
		if app.writer != nil {
			app.writer.Close()
		}
		return nil, fmt.Errorf("failed to open session store for reading: %w", err)
	}
	app.reader = reader
	app.apiServer = api.New(reader, cfg.HTTP.Bind)

	return app, nil
}

// buildStations maps station configs onto device clients. Every client
// is wrapped with a circuit breaker so a dead station backs off instead
// of burning a timeout every tick.
func buildStations(cfg *config.Config) []monitor.Station {
	stations := make([]monitor.Station, 0, len(cfg.Stations))
	for _, st := range cfg.Stations {
		var client device.Client
		switch st.Source {
		case "modbus":
			client = device.NewModbusClient(st.Name, st.Host, st.Port,
				byte(st.ModbusUnitID), cfg.Poll.Timeout)
		default:
			client = device.NewUDPClient(st.Name, st.Host, st.Port, cfg.Poll.Timeout)
		}

		stations = append(stations, monitor.Station{
			ID:              st.Name,
			Client:          device.NewBreakerClient(st.Name, client),
			PollSource:      st.Source,
			EnergyUnit:      session.EnergyUnit(st.EnergyUnit),
			DebounceSamples: cfg.Poll.DebounceSamples,
		})
	}
	return stations
}

// Run starts the application and blocks until shutdown
func (a *App) Run(configChan <-chan *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	a.configWatcher.Start(ctx)
	defer a.configWatcher.Stop()

	a.startConfigWatcher(configChan)
	a.startAPIServer()

	if a.role == roleMonitor {
		a.startSessionWriter()
		a.monitor.Start(ctx)
	}

	a.waitForShutdownSignal()
	a.performGracefulShutdown()
}

// startAPIServer runs the HTTP read API until the app context ends.
func (a *App) startAPIServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(a.ctx); err != nil {
			logger.Error().Err(err).Msg("API server failed")
			a.cancel()
		}
	}()
}

// startSessionWriter drains completed sessions from the monitor into
// the store. It keeps draining after shutdown begins so a session that
// completed during the last tick is not dropped.
func (a *App) startSessionWriter() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for record := range a.monitor.Sessions() {
			persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			err := a.writer.SaveSession(persistCtx, record)
			cancel()
			if err != nil {
				a.recordPersistFailure(record, err)
			}
		}
	}()
}

// recordPersistFailure logs a lost session and leaves an unlinked log
// event in the store so the loss is visible in the diagnostics surface.
// The event insert is best-effort; if the store is still down the log
// line is all that remains.
func (a *App) recordPersistFailure(record *interfaces.SessionRecord, err error) {
	message := "completed session lost to storage failure"
	if apperrors.IsRetryableStorageError(err) {
		message = "completed session lost, store contention did not clear"
	}

	logger.Error().Err(err).
		Str("station_id", record.StationID).
		Float64("kwh", record.EnergyKwh).
		Msg("Completed session lost to storage failure")

	eventCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	event := &interfaces.LogEvent{
		Level:     "error",
		StationID: record.StationID,
		Message:   message,
	}
	if saveErr := a.writer.SaveLogEvent(eventCtx, event); saveErr != nil {
		logger.Error().Err(saveErr).Msg("Failed to record session loss in store")
	}
}

func (a *App) startConfigWatcher(configChan <-chan *config.Config) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				return
			case newCfg, ok := <-configChan:
				if !ok {
					return
				}
				a.UpdateConfig(newCfg)
			}
		}
	}()
}

// UpdateConfig applies a hot-reloaded configuration. Only the log
// level takes effect without a restart; station and store changes need
// a process restart and are logged as such.
func (a *App) UpdateConfig(newCfg *config.Config) {
	if newCfg.Logging.Level != a.cfg.Logging.Level {
		logger.Initialize(newCfg.Logging.Level)
		logger.Info().Str("level", newCfg.Logging.Level).Msg("Log level updated")
	}
	if len(newCfg.Stations) != len(a.cfg.Stations) ||
		newCfg.Database.Path != a.cfg.Database.Path ||
		newCfg.HTTP.Bind != a.cfg.HTTP.Bind {
		logger.Warn().Msg("Station, database or listener changes require a restart")
	}
	a.cfg = newCfg
}

func (a *App) waitForShutdownSignal() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-a.ctx.Done():
	}
}

func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Shutting down")

	if a.monitor != nil {
		// Stopping the monitor closes the sessions channel, which lets
		// the session writer drain and exit.
		a.monitor.Stop()
	}

	a.cancel()
	a.wg.Wait()

	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close session store writer")
		}
	}
	if err := a.reader.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close session store reader")
	}

	logger.Info().Msg("Shutdown complete")
}

// DumpApplicationState logs a snapshot of runtime state, triggered by
// SIGUSR1.
func (a *App) DumpApplicationState() {
	monitored := 0
	if a.monitor != nil {
		monitored = a.monitor.MonitoredStationCount()
	}

	logger.Info().
		Str("role", a.role).
		Int("configured_stations", len(a.cfg.Stations)).
		Int("monitored_stations", monitored).
		Int("goroutines", runtime.NumGoroutine()).
		Msg("Application state dump")

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	if diag, err := a.reader.Diagnostics(ctx); err == nil {
		logger.Info().
			Int("schema_version", diag.SchemaVersion).
			Int64("sessions", diag.SessionCount).
			Int64("log_events", diag.LogEventCount).
			Int64("size_bytes", diag.SizeBytes).
			Msg("Session store state dump")
	}

	metrics.StationsMonitored.Set(float64(monitored))
}

// DumpGoroutineStackTraces writes all goroutine stacks to the log,
// triggered by SIGUSR2.
func DumpGoroutineStackTraces() {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	logger.Info().Msgf("Goroutine stack traces:\n%s", buf[:n])
}

// performHealthCheck queries the running instance's health endpoint.
func performHealthCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return 1
	}

	_, port, err := net.SplitHostPort(cfg.HTTP.Bind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: invalid http.bind: %v\n", err)
		return 1
	}

	client := &http.Client{Timeout: healthCheckTimeout}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%s/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("ok")
	return 0
}

// performConfigValidation validates the configuration file against the
// schema and the typed loader, then exits.
func performConfigValidation(configPath string) int {
	if err := config.ValidateWithSchema(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		return 1
	}
	if _, err := config.Load(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		return 1
	}

	fmt.Println("config ok")
	return 0
}
