package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Port != "/dev/ttyUSB0" {
		t.Errorf("Port = %q, want %q", cfg.Port, "/dev/ttyUSB0")
	}
	if cfg.Baud != 115200 {
		t.Errorf("Baud = %d, want 115200", cfg.Baud)
	}
	if cfg.Timeout() != 2400*time.Second {
		t.Errorf("Timeout() = %v, want 2400s", cfg.Timeout())
	}
	if cfg.CompletionPattern != `All tests completed\.` {
		t.Errorf("CompletionPattern = %q", cfg.CompletionPattern)
	}
	if cfg.Inject != "" {
		t.Errorf("Inject = %q, want empty", cfg.Inject)
	}
	if cfg.Logging.File != "" {
		t.Errorf("Logging.File = %q, want empty", cfg.Logging.File)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"grace period", cfg.Monitor.GracePeriod(), 10 * time.Second},
		{"status interval", cfg.Monitor.StatusInterval(), 10 * time.Second},
		{"idle status interval", cfg.Monitor.IdleStatusInterval(), 30 * time.Second},
		{"poll interval", cfg.Monitor.PollInterval(), 100 * time.Millisecond},
		{"success flush", cfg.Monitor.SuccessFlush(), 5 * time.Second},
		{"read timeout", cfg.Serial.ReadTimeout(), 100 * time.Millisecond},
		{"settle delay", cfg.Serial.SettleDelay(), 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got, want := ConfigDir(), "/custom/config/serialwatch"; got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		if got, want := ConfigDir(), filepath.Join(home, ".config", "serialwatch"); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := ConfigFile(), "/custom/config/serialwatch/config.yaml"; got != want {
		t.Errorf("ConfigFile() = %q, want %q", got, want)
	}
}

func TestLoadFrom(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		SetDefaults()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Baud != 115200 || cfg.Monitor.PollIntervalMs != 100 {
			t.Errorf("Load() = %+v, want defaults", cfg)
		}
	})

	t.Run("yaml file overrides", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		SetDefaults()

		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := strings.Join([]string{
			"port: /dev/ttyACM1",
			"baud: 921600",
			"timeout_seconds: 60",
			"inject: ws://192.168.1.10:9001",
			"monitor:",
			"  poll_interval_ms: 50",
			"logging:",
			"  level: debug",
		}, "\n")
		if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			t.Fatalf("ReadInConfig() error = %v", err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Port != "/dev/ttyACM1" || cfg.Baud != 921600 || cfg.Timeout() != time.Minute {
			t.Errorf("link settings not loaded: %+v", cfg)
		}
		if cfg.Inject != "ws://192.168.1.10:9001" {
			t.Errorf("Inject = %q", cfg.Inject)
		}
		if cfg.Monitor.PollInterval() != 50*time.Millisecond {
			t.Errorf("PollInterval() = %v, want 50ms", cfg.Monitor.PollInterval())
		}
		// Untouched nested keys keep their defaults.
		if cfg.Monitor.IdleStatusIntervalSeconds != 30 {
			t.Errorf("IdleStatusIntervalSeconds = %d, want 30", cfg.Monitor.IdleStatusIntervalSeconds)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
		}
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		v.Set("port", "/dev/ttyUSB0")
		v.Set("baud", 0)
		v.Set("timeout_seconds", 10)
		v.Set("monitor.status_interval_seconds", 10)
		v.Set("monitor.idle_status_interval_seconds", 30)
		v.Set("monitor.poll_interval_ms", 100)
		v.Set("serial.read_timeout_ms", 100)

		_, err := LoadFrom(v)
		if err == nil {
			t.Fatal("expected validation error")
		}
		verrs, ok := err.(ValidationErrors)
		if !ok {
			t.Fatalf("error type = %T, want ValidationErrors", err)
		}
		if len(verrs) != 1 || verrs[0].Field != "baud" {
			t.Errorf("errors = %v, want one for baud", verrs)
		}
	})
}
