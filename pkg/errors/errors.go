// Copyright (c) 2025 Frabely
// Licensed under the MIT License

// Package errors provides structured error types for the KEBA home API.
//
// This package defines custom error types that provide better error handling,
// inspection, and debugging capabilities compared to plain string errors.
//
// # Benefits of Structured Errors
//
//   - Type-safe error inspection with errors.As() and errors.Is()
//   - Context-rich error messages with operation and underlying error details
//   - Consistent error formatting across the application
//   - Better error wrapping and unwrapping support
//   - Enhanced logging with structured error fields
//
// # Example Usage
//
//	err := errors.NewDeviceError("report 2", "carport", errors.ErrTimeout)
//	if errors.IsDeviceError(err) {
//	    log.Printf("Poll failed: %v", err)
//	}
//
//	var devErr *errors.DeviceError
//	if errors.As(err, &devErr) {
//	    log.Printf("Failed operation: %s", devErr.Op)
//	}
package errors

import (
	"errors"
	"fmt"
)

// DeviceError represents an error while querying a charging station.
type DeviceError struct {
	Op      string // Operation being performed (e.g., "report 2", "read register")
	Station string // Station name involved in the operation (if applicable)
	Err     error  // Underlying error
}

func (e *DeviceError) Error() string {
	if e.Station != "" {
		return fmt.Sprintf("device %s (station=%s): %v", e.Op, e.Station, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("device %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("device %s failed", e.Op)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// NewDeviceError creates a new device error.
func NewDeviceError(op string, station string, err error) *DeviceError {
	return &DeviceError{Op: op, Station: station, Err: err}
}

// IsDeviceError checks if an error is a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// StorageError represents an error during session store operations.
type StorageError struct {
	Op        string // Operation being performed (e.g., "persist", "list", "migrate")
	Retryable bool   // Whether the operation may succeed when retried (busy/locked)
	Err       error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error.
func NewStorageError(op string, retryable bool, err error) *StorageError {
	return &StorageError{Op: op, Retryable: retryable, Err: err}
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsRetryableStorageError reports whether err is a storage error caused by
// transient store contention.
func IsRetryableStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ParseError represents a malformed device report payload.
type ParseError struct {
	Report string // Which report failed to parse (e.g., "report 2")
	Field  string // Missing or invalid field
	Err    error  // Underlying error (optional)
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parse %s: missing or invalid field %q", e.Report, e.Field)
	}
	return fmt.Sprintf("parse %s: %v", e.Report, e.Err)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedResponse
}

// Is lets ParseError match the ErrMalformedResponse sentinel so that any
// parse failure is classified as a poll failure.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// NewParseError creates a new parse error for a missing or invalid field.
func NewParseError(report string, field string) *ParseError {
	return &ParseError{Report: report, Field: field}
}

// IsParseError checks if an error is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Sentinel errors for common conditions
var (
	// ErrTimeout indicates a device request timed out
	ErrTimeout = errors.New("request timeout")

	// ErrUnreachable indicates the device could not be reached
	ErrUnreachable = errors.New("device unreachable")

	// ErrMalformedResponse indicates the device reply could not be parsed
	ErrMalformedResponse = errors.New("malformed device response")

	// ErrStoreBusy indicates the session store reported transient contention
	ErrStoreBusy = errors.New("session store busy")

	// ErrReadOnly indicates a write was attempted on a read-only store handle
	ErrReadOnly = errors.New("store handle is read-only")

	// ErrSchemaTooNew indicates the on-disk schema is newer than this binary supports
	ErrSchemaTooNew = errors.New("store schema version is newer than supported")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
