package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "run.log")

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", path)
		}
		if rw.Path() != path {
			t.Errorf("Path() = %q, want %q", rw.Path(), path)
		}
	})

	t.Run("appends to existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.log")
		if err := os.WriteFile(path, []byte("initial\n"), 0644); err != nil {
			t.Fatalf("failed to seed log file: %v", err)
		}

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		if rw.Size() != int64(len("initial\n")) {
			t.Errorf("Size() = %d, want %d", rw.Size(), len("initial\n"))
		}
		if _, err := rw.Write([]byte("appended\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		_ = rw.Close()

		content, _ := os.ReadFile(path)
		if string(content) != "initial\nappended\n" {
			t.Errorf("content = %q", content)
		}
	})
}

func newTinyWriter(t *testing.T, cfg RotationConfig) (*RotatingWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.log")
	rw, err := NewRotatingWriter(path, cfg)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	// Shrink the limit so tests do not need megabytes of data.
	rw.limit = 16
	t.Cleanup(func() { _ = rw.Close() })
	return rw, path
}

func TestRotatingWriter_Rotates(t *testing.T) {
	rw, path := newTinyWriter(t, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})

	for _, line := range []string{"aaaaaaaaaa\n", "bbbbbbbbbb\n", "cccccccccc\n", "dddddddddd\n"} {
		if _, err := rw.Write([]byte(line)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	current, _ := os.ReadFile(path)
	if string(current) != "dddddddddd\n" {
		t.Errorf("current = %q, want newest line only", current)
	}
	b1, _ := os.ReadFile(path + ".1")
	if string(b1) != "cccccccccc\n" {
		t.Errorf("backup .1 = %q", b1)
	}
	b2, _ := os.ReadFile(path + ".2")
	if string(b2) != "bbbbbbbbbb\n" {
		t.Errorf("backup .2 = %q", b2)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("expected only MaxBackups backups to be kept")
	}
}

func TestRotatingWriter_NoBackups(t *testing.T) {
	rw, path := newTinyWriter(t, RotationConfig{MaxSizeMB: 1})

	_, _ = rw.Write([]byte("aaaaaaaaaa\n"))
	_, _ = rw.Write([]byte("bbbbbbbbbb\n"))

	current, _ := os.ReadFile(path)
	if string(current) != "bbbbbbbbbb\n" {
		t.Errorf("current = %q", current)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("no backup expected when MaxBackups is 0")
	}
}

func TestRotatingWriter_Compress(t *testing.T) {
	rw, path := newTinyWriter(t, RotationConfig{MaxSizeMB: 1, MaxBackups: 1, Compress: true})

	_, _ = rw.Write([]byte("aaaaaaaaaa\n"))
	_, _ = rw.Write([]byte("bbbbbbbbbb\n"))

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup should be removed after compression")
	}
	f, err := os.Open(path + ".1.gz")
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader failed: %v", err)
	}
	data, _ := io.ReadAll(zr)
	if string(data) != "aaaaaaaaaa\n" {
		t.Errorf("decompressed = %q", data)
	}
}

func TestRotatingWriter_DisabledRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	rw, err := NewRotatingWriter(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = rw.Close() }()

	payload := strings.Repeat("x", 4096)
	for i := 0; i < 8; i++ {
		_, _ = rw.Write([]byte(payload))
	}
	if rw.Size() != int64(8*len(payload)) {
		t.Errorf("Size() = %d, want %d", rw.Size(), 8*len(payload))
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("expected error writing to closed writer")
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync after Close = %v, want nil", err)
	}
}
