// Package config defines serialwatch's settings, their defaults, and how
// they are loaded from flags, environment variables, and the config file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything a run needs. It is immutable once loaded.
type Config struct {
	// Port is the serial device path (e.g. /dev/ttyUSB0, COM3).
	Port string `mapstructure:"port" yaml:"port"`
	// Baud is the line speed.
	Baud int `mapstructure:"baud" yaml:"baud"`
	// TimeoutSeconds is the overall deadline for the completion marker.
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// CompletionPattern is the regular expression that ends a run successfully.
	CompletionPattern string `mapstructure:"completion_pattern" yaml:"completion_pattern"`
	// ProgressPattern extracts (current, total) test case numbers.
	ProgressPattern string `mapstructure:"progress_pattern" yaml:"progress_pattern"`
	// Inject, if set, is written to the device (with a trailing newline)
	// after the settle delay.
	Inject string `mapstructure:"inject" yaml:"inject"`
	// DeviceName is how guidance text refers to the device.
	DeviceName string `mapstructure:"device_name" yaml:"device_name"`

	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
	Serial  SerialConfig  `mapstructure:"serial" yaml:"serial"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// MonitorConfig controls the observation loop's timing.
type MonitorConfig struct {
	GracePeriodSeconds        int `mapstructure:"grace_period_seconds" yaml:"grace_period_seconds"`
	StatusIntervalSeconds     int `mapstructure:"status_interval_seconds" yaml:"status_interval_seconds"`
	IdleStatusIntervalSeconds int `mapstructure:"idle_status_interval_seconds" yaml:"idle_status_interval_seconds"`
	PollIntervalMs            int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	SuccessFlushSeconds       int `mapstructure:"success_flush_seconds" yaml:"success_flush_seconds"`
}

// SerialConfig controls the serial handle.
type SerialConfig struct {
	ReadTimeoutMs      int `mapstructure:"read_timeout_ms" yaml:"read_timeout_ms"`
	SettleDelaySeconds int `mapstructure:"settle_delay_seconds" yaml:"settle_delay_seconds"`
}

// LoggingConfig controls the JSON debug log. Nothing is logged unless
// File is set.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with the standard values.
func Default() *Config {
	return &Config{
		Port:              "/dev/ttyUSB0",
		Baud:              115200,
		TimeoutSeconds:    2400,
		CompletionPattern: `All tests completed\.`,
		ProgressPattern:   `Case (\d+)/(\d+)`,
		DeviceName:        "device",
		Monitor: MonitorConfig{
			GracePeriodSeconds:        10,
			StatusIntervalSeconds:     10,
			IdleStatusIntervalSeconds: 30,
			PollIntervalMs:            100,
			SuccessFlushSeconds:       5,
		},
		Serial: SerialConfig{
			ReadTimeoutMs:      100,
			SettleDelaySeconds: 5,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Timeout returns the overall deadline as a Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GracePeriod returns the initial silence window as a Duration.
func (c *MonitorConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// StatusInterval returns the status cadence inside the grace period.
func (c *MonitorConfig) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalSeconds) * time.Second
}

// IdleStatusInterval returns the status cadence after the grace period.
func (c *MonitorConfig) IdleStatusInterval() time.Duration {
	return time.Duration(c.IdleStatusIntervalSeconds) * time.Second
}

// PollInterval returns the loop sleep as a Duration.
func (c *MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SuccessFlush returns how long trailing output is echoed after success.
func (c *MonitorConfig) SuccessFlush() time.Duration {
	return time.Duration(c.SuccessFlushSeconds) * time.Second
}

// ReadTimeout returns the per-read bound as a Duration.
func (c *SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// SettleDelay returns the wait before injection as a Duration.
func (c *SerialConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelaySeconds) * time.Second
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers the defaults on a specific viper instance.
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("port", defaults.Port)
	v.SetDefault("baud", defaults.Baud)
	v.SetDefault("timeout_seconds", defaults.TimeoutSeconds)
	v.SetDefault("completion_pattern", defaults.CompletionPattern)
	v.SetDefault("progress_pattern", defaults.ProgressPattern)
	v.SetDefault("inject", defaults.Inject)
	v.SetDefault("device_name", defaults.DeviceName)

	// Monitor defaults
	v.SetDefault("monitor.grace_period_seconds", defaults.Monitor.GracePeriodSeconds)
	v.SetDefault("monitor.status_interval_seconds", defaults.Monitor.StatusIntervalSeconds)
	v.SetDefault("monitor.idle_status_interval_seconds", defaults.Monitor.IdleStatusIntervalSeconds)
	v.SetDefault("monitor.poll_interval_ms", defaults.Monitor.PollIntervalMs)
	v.SetDefault("monitor.success_flush_seconds", defaults.Monitor.SuccessFlushSeconds)

	// Serial defaults
	v.SetDefault("serial.read_timeout_ms", defaults.Serial.ReadTimeoutMs)
	v.SetDefault("serial.settle_delay_seconds", defaults.Serial.SettleDelaySeconds)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load against a specific viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "serialwatch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".serialwatch"
	}
	return filepath.Join(home, ".config", "serialwatch")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
