// Package session runs one observation session end to end: open the port,
// optionally inject the startup parameter, observe until a verdict, and
// release the port exactly once on every path.
package session

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/serialwatch/internal/config"
	"github.com/Iron-Ham/serialwatch/internal/console/deadline"
	"github.com/Iron-Ham/serialwatch/internal/console/detect"
	"github.com/Iron-Ham/serialwatch/internal/console/observe"
	"github.com/Iron-Ham/serialwatch/internal/console/report"
	"github.com/Iron-Ham/serialwatch/internal/console/stream"
	apperrors "github.com/Iron-Ham/serialwatch/internal/errors"
	"github.com/Iron-Ham/serialwatch/internal/logging"
	"github.com/Iron-Ham/serialwatch/internal/serialport"
)

// Deps are the collaborators a session needs. Zero fields get production
// defaults.
type Deps struct {
	Open    serialport.Opener
	Clock   observe.Clock
	Echo    io.Writer
	Printer *report.Printer
	Logger  *logging.Logger

	// LockDir holds per-port lock files. Empty disables locking. A lock
	// that cannot be written is logged and the run goes ahead unlocked.
	LockDir string
}

func (d Deps) withDefaults(cfg *config.Config) Deps {
	if d.Open == nil {
		d.Open = serialport.Open
	}
	if d.Clock == nil {
		d.Clock = observe.SystemClock{}
	}
	if d.Echo == nil {
		d.Echo = os.Stdout
	}
	if d.Printer == nil {
		d.Printer = report.New(os.Stderr, report.WithDeviceName(cfg.DeviceName))
	}
	if d.Logger == nil {
		d.Logger = logging.NopLogger()
	}
	return d
}

// LoopConfig converts settings into observation loop configuration,
// compiling both patterns.
func LoopConfig(cfg *config.Config) (observe.Config, error) {
	completion, err := detect.NewCompletionMatcher(cfg.CompletionPattern)
	if err != nil {
		return observe.Config{}, err
	}
	progress, err := detect.NewProgressExtractor(cfg.ProgressPattern)
	if err != nil {
		return observe.Config{}, err
	}
	return observe.Config{
		Timeout: cfg.Timeout(),
		Cadence: deadline.Cadence{
			GracePeriod:   cfg.Monitor.GracePeriod(),
			ShortInterval: cfg.Monitor.StatusInterval(),
			LongInterval:  cfg.Monitor.IdleStatusInterval(),
		},
		PollInterval: cfg.Monitor.PollInterval(),
		SuccessFlush: cfg.Monitor.SuccessFlush(),
		Completion:   completion,
		Progress:     progress,
	}, nil
}

// Run executes one session. A non-nil error means the loop never ran
// (bad configuration, open failure, or injection failure); otherwise the
// Outcome carries the verdict. Everything but configuration errors has
// already been reported through the Printer. The port is closed before
// Run returns.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (observe.Outcome, error) {
	deps = deps.withDefaults(cfg)
	logger := deps.Logger.WithPort(cfg.Port).WithPhase("bootstrap")

	loopCfg, err := LoopConfig(cfg)
	if err != nil {
		logger.Error("invalid configuration", "error", err.Error())
		return observe.Outcome{}, err
	}

	deps.Printer.Opening(cfg.Port, cfg.Baud)
	if deps.LockDir != "" {
		lock, err := AcquireLock(deps.LockDir, cfg.Port, logger)
		switch {
		case apperrors.Is(err, ErrPortLocked):
			deps.Printer.OpenFailed(err)
			logger.Error("port busy", "error", err.Error())
			return observe.Outcome{}, err
		case err != nil:
			// Only a live holder stops the run; a broken lock directory does not.
			logger.Warn("running without port lock", "dir", deps.LockDir, "error", err.Error())
		default:
			defer lock.Release()
		}
	}

	port, err := deps.Open(serialport.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.Serial.ReadTimeout(),
	})
	if err != nil {
		deps.Printer.OpenFailed(err)
		logger.Error("open failed", "error", err.Error())
		return observe.Outcome{}, err
	}
	handle := serialport.NewHandle(port, cfg.Port, logger)
	defer handle.Close()

	deps.Printer.Opened()
	logger.Info("port opened", "baud", cfg.Baud)

	if cfg.Inject != "" {
		out, err := inject(ctx, cfg, deps, handle, logger)
		if err != nil || out.State.Terminal() {
			return out, err
		}
	}

	deps.Printer.Waiting()

	loop, err := observe.New(loopCfg, stream.NewReader(handle), deps.Echo, deps.Printer,
		observe.WithClock(deps.Clock),
		observe.WithLogger(deps.Logger.WithPort(cfg.Port)),
	)
	if err != nil {
		return observe.Outcome{}, err
	}
	out := loop.Run(ctx)
	deps.Printer.Outcome(out, loopCfg.Timeout)
	return out, nil
}

// inject waits for the device to boot, then writes the parameter. An
// interrupt during the wait ends the session with an interrupted outcome.
func inject(ctx context.Context, cfg *config.Config, deps Deps, w io.Writer, logger *logging.Logger) (observe.Outcome, error) {
	deps.Printer.Injecting(cfg.Inject)
	logger.Info("waiting before injection", "settle", cfg.Serial.SettleDelay().String())

	if err := deps.Clock.Sleep(ctx, cfg.Serial.SettleDelay()); err != nil {
		out := observe.Outcome{
			State: observe.StateInterrupted,
			Err:   fmt.Errorf("%w: %w", apperrors.ErrInterrupted, err),
		}
		logger.Warn("interrupted before injection")
		deps.Printer.Outcome(out, cfg.Timeout())
		return out, nil
	}

	if _, err := w.Write([]byte(cfg.Inject + "\n")); err != nil {
		logger.Error("injection failed", "error", err.Error())
		deps.Printer.InjectFailed(err)
		return observe.Outcome{}, err
	}
	logger.Info("parameter injected", "bytes", len(cfg.Inject)+1)
	deps.Printer.Injected()
	return observe.Outcome{State: observe.StateRunning}, nil
}

// ExitCode maps Run's results to a process exit code.
func ExitCode(out observe.Outcome, err error) int {
	if err != nil {
		return 1
	}
	return out.ExitCode()
}
