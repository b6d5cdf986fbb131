package fidxerr

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// Error types for the file-index engine
type ErrorType string

const (
	// Scan errors
	ErrorTypeScan       ErrorType = "scan"
	ErrorTypePermission ErrorType = "permission"

	// Watcher errors
	ErrorTypeWatcher ErrorType = "watcher"

	// Rebuild errors
	ErrorTypeRebuildTimeout ErrorType = "rebuild_timeout"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// ScanError represents a per-entry failure during a tree scan.
// These are always recoverable: the entry is skipped and counted, the
// scan continues.
type ScanError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewScanError creates a new scan error with context
func NewScanError(op, path string, err error) *ScanError {
	errorType := ErrorTypeScan
	if errors.Is(err, fs.ErrPermission) {
		errorType = ErrorTypePermission
	}

	return &ScanError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ScanError) Error() string {
	return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *ScanError) Unwrap() error {
	return e.Underlying
}

// WatcherError represents a failure in the filesystem notification subsystem
type WatcherError struct {
	Type       ErrorType
	Root       string
	Attempt    int
	Underlying error
	Timestamp  time.Time
}

// NewWatcherError creates a new watcher error
func NewWatcherError(root string, err error) *WatcherError {
	return &WatcherError{
		Type:       ErrorTypeWatcher,
		Root:       root,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithAttempt records which restart attempt produced the error
func (e *WatcherError) WithAttempt(attempt int) *WatcherError {
	e.Attempt = attempt
	return e
}

// Error implements the error interface
func (e *WatcherError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("watcher failed for root %s (restart attempt %d): %v", e.Root, e.Attempt, e.Underlying)
	}
	return fmt.Sprintf("watcher failed for root %s: %v", e.Root, e.Underlying)
}

// Unwrap returns the underlying error
func (e *WatcherError) Unwrap() error {
	return e.Underlying
}

// RebuildTimeoutError indicates a caller stopped waiting for a rebuild.
// The caller receives the best currently-published snapshot marked stale;
// this error is informational, never fatal.
type RebuildTimeoutError struct {
	Type       ErrorType
	Root       string
	Generation uint64
	Timeout    time.Duration
	Timestamp  time.Time
}

// NewRebuildTimeoutError creates a new rebuild timeout error
func NewRebuildTimeoutError(root string, generation uint64, timeout time.Duration) *RebuildTimeoutError {
	return &RebuildTimeoutError{
		Type:       ErrorTypeRebuildTimeout,
		Root:       root,
		Generation: generation,
		Timeout:    timeout,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *RebuildTimeoutError) Error() string {
	return fmt.Sprintf("rebuild for root %s did not reach generation %d within %v", e.Root, e.Generation, e.Timeout)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}
