// Copyright (c) 2025 Frabely
// Licensed under the MIT License

package config

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Frabely/keba-home-api/pkg/logger"
)

// Watcher handles hot reloading of the configuration file.
type Watcher struct {
	path       string
	configChan chan<- *Config
	reloadChan chan os.Signal
	cancelFunc context.CancelFunc
}

// NewWatcher creates a new configuration watcher.
func NewWatcher(path string, configChan chan<- *Config) *Watcher {
	return &Watcher{
		path:       path,
		configChan: configChan,
		reloadChan: make(chan os.Signal, 1),
	}
}

// Start begins watching for SIGHUP signals to trigger a configuration reload.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancelFunc = context.WithCancel(ctx)
	signal.Notify(w.reloadChan, syscall.SIGHUP)

	go w.watch(ctx)
}

// Stop stops the configuration watcher.
func (w *Watcher) Stop() {
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	signal.Stop(w.reloadChan)
}

// watch listens for reload signals and reloads the configuration. A
// reload that fails validation keeps the running configuration; the
// process never degrades because of a bad edit.
func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.reloadChan:
			logger.Info().Str("path", w.path).Msg("SIGHUP received, reloading configuration")
			cfg, err := w.reload()
			if err != nil {
				logger.Error().Err(err).Str("path", w.path).
					Msg("Configuration reload rejected, keeping current configuration")
				continue
			}
			select {
			case w.configChan <- cfg:
				logger.Info().Str("path", w.path).Msg("Configuration reloaded")
			case <-ctx.Done():
				return
			}
		}
	}
}

// reload runs the same schema-then-typed validation pipeline the
// -validate-config flag uses before handing the new config over.
func (w *Watcher) reload() (*Config, error) {
	if err := ValidateWithSchema(w.path); err != nil {
		return nil, err
	}
	return Load(w.path)
}
