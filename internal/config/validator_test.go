package config

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Iron-Ham/serialwatch/internal/errors"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "baud", Value: -1, Message: "must be positive"}
	if got, want := err.Error(), "baud: must be positive (got: -1)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if got := ValidationErrors(nil).Error(); got != "" {
			t.Errorf("Error() = %q, want empty", got)
		}
	})

	t.Run("single", func(t *testing.T) {
		errs := ValidationErrors{{Field: "port", Value: "", Message: "must not be empty"}}
		if got, want := errs.Error(), "port: must not be empty (got: )"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("multiple", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "port", Value: "", Message: "must not be empty"},
			{Field: "baud", Value: 0, Message: "must be positive"},
		}
		got := errs.Error()
		if !strings.HasPrefix(got, "2 validation errors:\n") {
			t.Errorf("Error() = %q, want count header", got)
		}
		if !strings.Contains(got, "  1. port") || !strings.Contains(got, "  2. baud") {
			t.Errorf("Error() = %q, want numbered entries", got)
		}
	})

	t.Run("classified as invalid config", func(t *testing.T) {
		var err error = ValidationErrors{{Field: "baud"}}
		if !errors.Is(err, apperrors.ErrInvalidConfig) {
			t.Error("errors.Is(ValidationErrors, ErrInvalidConfig) = false")
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("Default().Validate() = %v, want no errors", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty port", func(c *Config) { c.Port = "  " }, "port"},
		{"zero baud", func(c *Config) { c.Baud = 0 }, "baud"},
		{"negative timeout", func(c *Config) { c.TimeoutSeconds = -5 }, "timeout_seconds"},
		{"multi-line inject", func(c *Config) { c.Inject = "a\nb" }, "inject"},
		{"bad completion regex", func(c *Config) { c.CompletionPattern = "(oops" }, "completion_pattern"},
		{"progress without groups", func(c *Config) { c.ProgressPattern = `Case \d+` }, "progress_pattern"},
		{"negative grace", func(c *Config) { c.Monitor.GracePeriodSeconds = -1 }, "monitor.grace_period_seconds"},
		{"zero status interval", func(c *Config) { c.Monitor.StatusIntervalSeconds = 0 }, "monitor.status_interval_seconds"},
		{"zero idle interval", func(c *Config) { c.Monitor.IdleStatusIntervalSeconds = 0 }, "monitor.idle_status_interval_seconds"},
		{"zero poll", func(c *Config) { c.Monitor.PollIntervalMs = 0 }, "monitor.poll_interval_ms"},
		{"negative flush", func(c *Config) { c.Monitor.SuccessFlushSeconds = -1 }, "monitor.success_flush_seconds"},
		{"zero read timeout", func(c *Config) { c.Serial.ReadTimeoutMs = 0 }, "serial.read_timeout_ms"},
		{"negative settle", func(c *Config) { c.Serial.SettleDelaySeconds = -1 }, "serial.settle_delay_seconds"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"negative log size", func(c *Config) { c.Logging.MaxSizeMB = -1 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v, want exactly one error", errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_PatternMessage(t *testing.T) {
	cfg := Default()
	cfg.ProgressPattern = `Case (\d+)`
	errs := cfg.Validate()
	if len(errs) != 1 {
		t.Fatalf("Validate() = %v", errs)
	}
	if errs[0].Message != "must have 2 capture groups, has 1" {
		t.Errorf("Message = %q", errs[0].Message)
	}
}

func TestConfig_Validate_Aggregates(t *testing.T) {
	cfg := Default()
	cfg.Port = ""
	cfg.Baud = -1
	cfg.Logging.Level = "loud"

	if errs := cfg.Validate(); len(errs) != 3 {
		t.Errorf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
}

func TestConfig_Validate_LogLevelCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "DEBUG"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want none", errs)
	}
}
