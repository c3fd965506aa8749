package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewFileLogger(t *testing.T) {
	t.Run("creates log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "run.log")

		logger, err := NewFileLogger(path, LevelDebug, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", path)
		}
	})

	t.Run("rejects empty path", func(t *testing.T) {
		if _, err := NewFileLogger("", LevelInfo, DefaultRotationConfig()); err == nil {
			t.Error("expected error for empty path")
		}
	})

	t.Run("writes JSON entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.log")
		logger, err := NewFileLogger(path, LevelInfo, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Info("port opened", "baud", 115200)
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		entries := decodeLines(t, data)
		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
		if entries[0]["msg"] != "port opened" {
			t.Errorf("msg = %v, want %q", entries[0]["msg"], "port opened")
		}
		if entries[0]["baud"] != float64(115200) {
			t.Errorf("baud = %v, want 115200", entries[0]["baud"])
		}
	})
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{LevelDebug, []string{"d", "i", "w", "e"}},
		{LevelInfo, []string{"i", "w", "e"}},
		{LevelWarn, []string{"w", "e"}},
		{LevelError, []string{"e"}},
		{"bogus", []string{"i", "w", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, tt.level)
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			entries := decodeLines(t, buf.Bytes())
			if len(entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.want))
			}
			for i, msg := range tt.want {
				if entries[i]["msg"] != msg {
					t.Errorf("entry %d msg = %v, want %q", i, entries[i]["msg"], msg)
				}
			}
		})
	}
}

func TestChildLoggers(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, LevelDebug)

	child := root.WithPort("/dev/ttyUSB0").WithPhase("observe").With("run", 7, 42, "skipped")
	child.Info("fragment received", "bytes", 12)
	root.Info("plain")

	entries := decodeLines(t, buf.Bytes())
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	first := entries[0]
	if first["port"] != "/dev/ttyUSB0" {
		t.Errorf("port = %v, want /dev/ttyUSB0", first["port"])
	}
	if first["phase"] != "observe" {
		t.Errorf("phase = %v, want observe", first["phase"])
	}
	if first["run"] != float64(7) {
		t.Errorf("run = %v, want 7", first["run"])
	}
	if first["bytes"] != float64(12) {
		t.Errorf("bytes = %v, want 12", first["bytes"])
	}

	if _, ok := entries[1]["port"]; ok {
		t.Error("parent logger picked up child attributes")
	}
}

func TestWithNoArgsReturnsSameLogger(t *testing.T) {
	logger := NopLogger()
	if logger.With() != logger {
		t.Error("With() should return the receiver when given no pairs")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("discarded", "k", "v")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := NewFileLogger(path, LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		" warn ":  LevelWarn,
		"warning": LevelWarn,
		"Error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidLevels(t *testing.T) {
	levels := ValidLevels()
	if len(levels) != 4 {
		t.Fatalf("ValidLevels() returned %d levels, want 4", len(levels))
	}
	for _, l := range levels {
		if ParseLevel(l) != l {
			t.Errorf("ParseLevel(%q) did not round-trip", l)
		}
	}
}
