// Package serialport opens serial devices and wraps them in a handle that
// is released exactly once.
package serialport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	apperrors "github.com/Iron-Ham/serialwatch/internal/errors"
	"github.com/Iron-Ham/serialwatch/internal/logging"
)

// DefaultReadTimeout bounds each Read so the observation loop never blocks
// for long on a silent device.
const DefaultReadTimeout = 100 * time.Millisecond

// Port is the subset of a serial handle serialwatch needs. Read must return
// (0, nil) when its timeout expires with no data.
type Port interface {
	io.ReadWriter
	// Drain blocks until everything written has been transmitted.
	Drain() error
	Close() error
}

// Config selects a device and line settings.
type Config struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
}

// Opener opens a Port. Open is the production implementation; tests
// substitute their own.
type Opener func(cfg Config) (Port, error)

// Open opens the named device at the configured baud rate, 8N1, with a
// bounded read timeout.
func Open(cfg Config) (Port, error) {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, openError(cfg, describe(err))
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, openError(cfg, fmt.Errorf("set read timeout: %w", err))
	}
	return p, nil
}

func openError(cfg Config, cause error) error {
	return apperrors.NewSerialError("open failed", apperrors.Join(apperrors.ErrPortOpen, cause)).
		WithPort(cfg.Name).
		WithBaud(cfg.Baud).
		WithSeverity(apperrors.SeverityCritical)
}

// describe turns the library's port error codes into operator-readable text.
func describe(err error) error {
	var perr *serial.PortError
	if !apperrors.As(err, &perr) {
		return err
	}
	switch perr.Code() {
	case serial.PortNotFound:
		return fmt.Errorf("port not found: %w", err)
	case serial.PortBusy:
		return fmt.Errorf("port busy (is another monitor attached?): %w", err)
	case serial.PermissionDenied:
		return fmt.Errorf("permission denied (check dialout/uucp group membership): %w", err)
	case serial.InvalidSpeed:
		return fmt.Errorf("baud rate not supported: %w", err)
	default:
		return err
	}
}

// Handle owns an open Port for the length of a run. Close releases the
// port once no matter how many times, or from how many goroutines, it is
// called.
type Handle struct {
	port   Port
	name   string
	logger *logging.Logger

	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex
	closed    bool
}

// NewHandle wraps an open port.
func NewHandle(port Port, name string, logger *logging.Logger) *Handle {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Handle{port: port, name: name, logger: logger}
}

// Read implements io.Reader.
func (h *Handle) Read(p []byte) (int, error) {
	return h.port.Read(p)
}

// Write sends p, then drains the output so the bytes are on the wire
// before Write returns.
func (h *Handle) Write(p []byte) (int, error) {
	n, err := h.port.Write(p)
	if err != nil {
		return n, apperrors.NewSerialError("write failed", apperrors.Join(apperrors.ErrInjectFailed, err)).WithPort(h.name)
	}
	if err := h.port.Drain(); err != nil {
		return n, apperrors.NewSerialError("drain failed", apperrors.Join(apperrors.ErrInjectFailed, err)).WithPort(h.name)
	}
	return n, nil
}

// Close releases the port. It is safe to call Close multiple times.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		h.closeErr = h.port.Close()
		if h.closeErr != nil {
			h.logger.Warn("port close failed", "error", h.closeErr.Error())
		} else {
			h.logger.Info("port closed")
		}
	})
	return h.closeErr
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
