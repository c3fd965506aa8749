// Package internal holds cross-package tests: an end-to-end session over a
// pseudo-terminal and source hygiene checks.
package internal

import (
	"bufio"
	"bytes"
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"

	"github.com/Iron-Ham/serialwatch/internal/config"
	"github.com/Iron-Ham/serialwatch/internal/console/observe"
	"github.com/Iron-Ham/serialwatch/internal/console/report"
	"github.com/Iron-Ham/serialwatch/internal/serialport"
	"github.com/Iron-Ham/serialwatch/internal/session"
)

// TestSessionOverPseudoTerminal plays the device on the pty master: it
// waits for the injected parameter and then prints a short test run.
func TestSessionOverPseudoTerminal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no pty support")
	}
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	if probe, err := serialport.Open(serialport.Config{Name: tty.Name(), Baud: 115200}); err != nil {
		t.Skipf("serial open on pty unsupported here: %v", err)
	} else {
		probe.Close()
	}

	cfg := config.Default()
	cfg.Port = tty.Name()
	cfg.TimeoutSeconds = 10
	cfg.Inject = "ws://10.0.0.2:9001"
	cfg.Serial.SettleDelaySeconds = 0
	cfg.Serial.ReadTimeoutMs = 20
	cfg.Monitor.PollIntervalMs = 10
	cfg.Monitor.SuccessFlushSeconds = 0

	injected := make(chan string, 1)
	go func() {
		line, err := bufio.NewReader(ptmx).ReadString('\n')
		if err != nil {
			return
		}
		injected <- line
		ptmx.Write([]byte("booting\r\nCase 1/2\r\nCase 2/2\r\nAll tests completed.\r\n"))
	}()

	var echo, stderr bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	out, err := session.Run(ctx, cfg, session.Deps{
		Echo:    &echo,
		Printer: report.New(&stderr, report.WithColor(false)),
	})
	if err != nil {
		t.Fatalf("Run() error = %v\nstderr:\n%s", err, stderr.String())
	}
	if out.State != observe.StateSuccess {
		t.Fatalf("State = %v, want success\nstderr:\n%s", out.State, stderr.String())
	}

	select {
	case line := <-injected:
		if line != "ws://10.0.0.2:9001\n" {
			t.Errorf("device received %q", line)
		}
	default:
		t.Error("device never received the parameter")
	}
	if !strings.Contains(echo.String(), "All tests completed.") {
		t.Errorf("echo = %q", echo.String())
	}
	if !strings.Contains(stderr.String(), "[Progress: Test case 2/2 (100%)]") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
