package serialport

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"

	apperrors "github.com/Iron-Ham/serialwatch/internal/errors"
	"github.com/Iron-Ham/serialwatch/internal/testutil"
)

func TestHandle_CloseOnce(t *testing.T) {
	port := testutil.NewScriptedPort(testutil.NewFakeClock(testutil.Epoch))
	h := NewHandle(port, "/dev/fake", nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Close()
		}()
	}
	wg.Wait()
	_ = h.Close()

	if port.Closes() != 1 {
		t.Errorf("port closed %d times, want 1", port.Closes())
	}
	if !h.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestHandle_WriteDrains(t *testing.T) {
	port := testutil.NewScriptedPort(testutil.NewFakeClock(testutil.Epoch))
	h := NewHandle(port, "/dev/fake", nil)

	n, err := h.Write([]byte("ws://host:9001\n"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len("ws://host:9001\n") {
		t.Errorf("Write() n = %d", n)
	}
	if port.Written() != "ws://host:9001\n" {
		t.Errorf("written = %q", port.Written())
	}
	if port.Drains() != 1 {
		t.Errorf("Drains() = %d, want 1", port.Drains())
	}
}

func TestHandle_WriteError(t *testing.T) {
	port := testutil.NewScriptedPort(testutil.NewFakeClock(testutil.Epoch))
	port.WriteErr = errors.New("EIO")
	h := NewHandle(port, "/dev/fake", nil)

	_, err := h.Write([]byte("x"))
	if !errors.Is(err, apperrors.ErrInjectFailed) {
		t.Errorf("Write() error = %v, want ErrInjectFailed", err)
	}
	var serialErr *apperrors.SerialError
	if !errors.As(err, &serialErr) || serialErr.Port != "/dev/fake" {
		t.Errorf("Write() error = %v, want SerialError for /dev/fake", err)
	}
}

func TestOpen_MissingDevice(t *testing.T) {
	_, err := Open(Config{Name: "/dev/serialwatch-does-not-exist", Baud: 115200})
	if err == nil {
		t.Fatal("expected error opening a missing device")
	}
	if !errors.Is(err, apperrors.ErrPortOpen) {
		t.Errorf("Open() error = %v, want ErrPortOpen", err)
	}
	if apperrors.GetSeverity(err) != apperrors.SeverityCritical {
		t.Errorf("severity = %v, want critical", apperrors.GetSeverity(err))
	}
}

// TestOpen_PseudoTerminal drives a real serial handle through a pty pair.
func TestOpen_PseudoTerminal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no pty support")
	}
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	port, err := Open(Config{Name: tty.Name(), Baud: 115200, ReadTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Skipf("serial open on pty unsupported here: %v", err)
	}
	h := NewHandle(port, tty.Name(), nil)
	defer h.Close()

	buf := make([]byte, 64)
	start := time.Now()
	n, err := h.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("silent Read() = %d, %v; want 0, nil", n, err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("silent Read blocked for %v", time.Since(start))
	}

	if _, err := ptmx.Write([]byte("Case 1/2\n")); err != nil {
		t.Fatalf("pty write failed: %v", err)
	}
	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(got) < len("Case 1/2") {
		n, err := h.Read(buf)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if len(got) < len("Case 1/2") || string(got[:len("Case 1/2")]) != "Case 1/2" {
		t.Errorf("read %q, want prefix %q", got, "Case 1/2")
	}
}
