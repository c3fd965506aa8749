// Package errors provides the error definitions shared by serialwatch packages.
// It defines sentinel errors for the ways a run can end badly, typed errors
// that carry serial and configuration context, and classification helpers.
//
// # Error Types
//
//   - SerialError: failures talking to the serial device (open, write, read)
//   - ConfigError: invalid settings or patterns, detected before any I/O
//
// # Usage
//
//	err := errors.NewSerialError("open failed", cause).WithPort("/dev/ttyUSB0")
//
//	if errors.Is(err, errors.ErrPortOpen) { ... }
//
//	var serialErr *errors.SerialError
//	if errors.As(err, &serialErr) { ... }
//
// Decode problems in device output are never reported as errors: malformed
// bytes are dropped by the stream reader.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityWarning is for errors that end a run without a fault in the tool,
	// such as an operator interrupt.
	SeverityWarning Severity = iota
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that make the run impossible to start.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Serial link sentinel errors
var (
	// ErrPortOpen indicates the serial device could not be opened.
	ErrPortOpen = New("serial port open failed")
	// ErrInjectFailed indicates the startup parameter could not be written.
	ErrInjectFailed = New("parameter injection failed")
	// ErrLinkLost indicates a read on an open port failed.
	ErrLinkLost = New("serial link lost")
)

// Configuration sentinel errors
var (
	// ErrInvalidPattern indicates a regular expression failed to compile
	// or has the wrong shape.
	ErrInvalidPattern = New("invalid pattern")
	// ErrInvalidConfig indicates a setting is out of range.
	ErrInvalidConfig = New("invalid configuration")
)

// Run outcome sentinel errors
var (
	// ErrTimeout indicates the overall deadline passed before completion.
	ErrTimeout = New("run timed out")
	// ErrInterrupted indicates the operator stopped the run.
	ErrInterrupted = New("run interrupted")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Message returns the message without context or cause.
func (e *baseError) Message() string {
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SerialError represents failures on the serial link.
//
// Example:
//
//	err := errors.NewSerialError("open failed", errors.ErrPortOpen).WithPort("/dev/ttyUSB0")
//	fmt.Println(err) // "serial error [port=/dev/ttyUSB0]: open failed: serial port open failed"
type SerialError struct {
	baseError
	Port string
	Baud int
}

// NewSerialError creates a new SerialError.
func NewSerialError(message string, cause error) *SerialError {
	return &SerialError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithPort adds the device path to the error context.
func (e *SerialError) WithPort(port string) *SerialError {
	e.Port = port
	return e
}

// WithBaud adds the baud rate to the error context.
func (e *SerialError) WithBaud(baud int) *SerialError {
	e.Baud = baud
	return e
}

// WithSeverity sets the error severity.
func (e *SerialError) WithSeverity(s Severity) *SerialError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SerialError) Error() string {
	var parts []string
	if e.Port != "" {
		parts = append(parts, fmt.Sprintf("port=%s", e.Port))
	}
	if e.Baud > 0 {
		parts = append(parts, fmt.Sprintf("baud=%d", e.Baud))
	}

	prefix := "serial error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("serial error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SerialError) Is(target error) bool {
	if _, ok := target.(*SerialError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConfigError represents an invalid setting detected before a run starts.
//
// Example:
//
//	err := errors.NewConfigError("does not compile", errors.ErrInvalidPattern).WithField("completion_pattern")
type ConfigError struct {
	baseError
	Field string
	Value any
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
		},
	}
}

// WithField names the offending setting.
func (e *ConfigError) WithField(field string) *ConfigError {
	e.Field = field
	return e
}

// WithValue records the offending value.
func (e *ConfigError) WithValue(v any) *ConfigError {
	e.Value = v
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	prefix := "config error"
	if e.Field != "" {
		prefix = fmt.Sprintf("config error [field=%s]", e.Field)
	}
	msg := e.message
	if e.Value != nil {
		msg = fmt.Sprintf("%s (got: %v)", msg, e.Value)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

type severityError interface {
	error
	Severity() Severity
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't carry one.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityWarning
	}
	var se severityError
	if As(err, &se) {
		return se.Severity()
	}
	if Is(err, ErrInterrupted) {
		return SeverityWarning
	}
	return SeverityError
}

// IsConfigError reports whether err stems from invalid configuration.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return As(err, &cfgErr)
}

// IsSerialError reports whether err stems from the serial link.
func IsSerialError(err error) bool {
	var serialErr *SerialError
	return As(err, &serialErr)
}
