package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/serialwatch/internal/console/detect"
	apperrors "github.com/Iron-Ham/serialwatch/internal/errors"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "monitor.poll_interval_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Is lets callers classify any validation failure as ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == apperrors.ErrInvalidConfig
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateLink()...)
	errs = append(errs, c.validatePatterns()...)
	errs = append(errs, c.validateMonitor()...)
	errs = append(errs, c.validateSerial()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateLink() []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, ValidationError{Field: "port", Value: c.Port, Message: "must not be empty"})
	}
	if c.Baud <= 0 {
		errs = append(errs, ValidationError{Field: "baud", Value: c.Baud, Message: "must be positive"})
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "timeout_seconds", Value: c.TimeoutSeconds, Message: "must be positive"})
	}
	if strings.ContainsAny(c.Inject, "\r\n") {
		errs = append(errs, ValidationError{Field: "inject", Value: c.Inject, Message: "must be a single line"})
	}
	return errs
}

func (c *Config) validatePatterns() []ValidationError {
	var errs []ValidationError
	if _, err := detect.NewCompletionMatcher(c.CompletionPattern); err != nil {
		errs = append(errs, ValidationError{Field: "completion_pattern", Value: c.CompletionPattern, Message: patternMessage(err)})
	}
	if _, err := detect.NewProgressExtractor(c.ProgressPattern); err != nil {
		errs = append(errs, ValidationError{Field: "progress_pattern", Value: c.ProgressPattern, Message: patternMessage(err)})
	}
	return errs
}

// patternMessage drops the ConfigError prefix; the field is reported by
// the ValidationError itself.
func patternMessage(err error) string {
	var cfgErr *apperrors.ConfigError
	if apperrors.As(err, &cfgErr) {
		return cfgErr.Message()
	}
	return err.Error()
}

func (c *Config) validateMonitor() []ValidationError {
	var errs []ValidationError
	m := c.Monitor
	if m.GracePeriodSeconds < 0 {
		errs = append(errs, ValidationError{Field: "monitor.grace_period_seconds", Value: m.GracePeriodSeconds, Message: "must not be negative"})
	}
	if m.StatusIntervalSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "monitor.status_interval_seconds", Value: m.StatusIntervalSeconds, Message: "must be positive"})
	}
	if m.IdleStatusIntervalSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "monitor.idle_status_interval_seconds", Value: m.IdleStatusIntervalSeconds, Message: "must be positive"})
	}
	if m.PollIntervalMs <= 0 {
		errs = append(errs, ValidationError{Field: "monitor.poll_interval_ms", Value: m.PollIntervalMs, Message: "must be positive"})
	}
	if m.SuccessFlushSeconds < 0 {
		errs = append(errs, ValidationError{Field: "monitor.success_flush_seconds", Value: m.SuccessFlushSeconds, Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateSerial() []ValidationError {
	var errs []ValidationError
	if c.Serial.ReadTimeoutMs <= 0 {
		errs = append(errs, ValidationError{Field: "serial.read_timeout_ms", Value: c.Serial.ReadTimeoutMs, Message: "must be positive"})
	}
	if c.Serial.SettleDelaySeconds < 0 {
		errs = append(errs, ValidationError{Field: "serial.settle_delay_seconds", Value: c.Serial.SettleDelaySeconds, Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Value: c.Logging.MaxSizeMB, Message: "must not be negative"})
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Value: c.Logging.MaxBackups, Message: "must not be negative"})
	}
	return errs
}
