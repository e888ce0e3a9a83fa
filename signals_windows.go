// Copyright (c) 2025 Frabely
// Licensed under the MIT License

//go:build windows

package main

import (
	"github.com/Frabely/keba-home-api/pkg/logger"
)

// setupDebugSignalHandlers is a no-op on Windows as SIGUSR1/SIGUSR2 don't exist
// On Windows, debug information can be accessed via:
// - The /diagnostics/db HTTP endpoint
// - Log file analysis
func setupDebugSignalHandlers(application *App) {
	// No-op on Windows - SIGUSR1 and SIGUSR2 don't exist
	logger.Debug().Msg("Debug signal handlers not available on Windows")
}
