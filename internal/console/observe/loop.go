// Package observe runs the observation state machine: it polls the device
// stream, echoes output, reports progress and status, and decides when a
// run has succeeded, timed out, or been interrupted.
package observe

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Iron-Ham/serialwatch/internal/console/deadline"
	"github.com/Iron-Ham/serialwatch/internal/console/detect"
	"github.com/Iron-Ham/serialwatch/internal/console/stream"
	apperrors "github.com/Iron-Ham/serialwatch/internal/errors"
	"github.com/Iron-Ham/serialwatch/internal/logging"
)

// Default loop timing.
const (
	DefaultTimeout      = 2400 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultSuccessFlush = 5 * time.Second
)

// Source yields fragments of device output. stream.Reader implements it.
type Source interface {
	Poll() (stream.Fragment, error)
}

// Reporter receives operator-facing events raised inside the loop.
type Reporter interface {
	Progress(p detect.Progress)
	Status(s deadline.Status)
	Hint()
}

// Config holds the loop's thresholds and matchers.
type Config struct {
	// Timeout is the overall deadline. The run times out once elapsed time
	// strictly exceeds it.
	Timeout time.Duration
	// Cadence drives status lines and the one-time hint.
	Cadence deadline.Cadence
	// PollInterval is the sleep between ticks.
	PollInterval time.Duration
	// SuccessFlush is how long trailing output is still echoed after the
	// completion marker.
	SuccessFlush time.Duration

	Completion *detect.CompletionMatcher
	Progress   *detect.ProgressExtractor
}

// DefaultConfig returns a Config with the standard timing and the default
// patterns.
func DefaultConfig() Config {
	completion, _ := detect.NewCompletionMatcher("")
	progress, _ := detect.NewProgressExtractor("")
	return Config{
		Timeout:      DefaultTimeout,
		Cadence:      deadline.DefaultCadence(),
		PollInterval: DefaultPollInterval,
		SuccessFlush: DefaultSuccessFlush,
		Completion:   completion,
		Progress:     progress,
	}
}

// RunState is the mutable state of one run. The buffer only grows, and the
// state, once terminal, never changes.
type RunState struct {
	tracker     *deadline.Tracker
	buffer      strings.Builder
	bytes       int
	progress    detect.Progress
	hasProgress bool
	state       State
	err         error
	finishedAt  time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithLogger attaches a debug logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// Loop drives one observation run. It is single-threaded: Tick and Run must
// not be called concurrently.
type Loop struct {
	cfg      Config
	src      Source
	echo     io.Writer
	reporter Reporter
	clock    Clock
	logger   *logging.Logger
	run      *RunState
}

// New builds a Loop. echo receives raw device bytes; reporter receives
// progress, status, and hint events.
func New(cfg Config, src Source, echo io.Writer, reporter Reporter, opts ...Option) (*Loop, error) {
	if src == nil {
		return nil, fmt.Errorf("observe: nil source")
	}
	if reporter == nil {
		return nil, fmt.Errorf("observe: nil reporter")
	}
	if cfg.Timeout <= 0 {
		return nil, apperrors.NewConfigError("must be positive", apperrors.ErrInvalidConfig).
			WithField("timeout").WithValue(cfg.Timeout)
	}
	if cfg.Completion == nil || cfg.Progress == nil {
		defaults := DefaultConfig()
		if cfg.Completion == nil {
			cfg.Completion = defaults.Completion
		}
		if cfg.Progress == nil {
			cfg.Progress = defaults.Progress
		}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if echo == nil {
		echo = io.Discard
	}
	l := &Loop{
		cfg:      cfg,
		src:      src,
		echo:     echo,
		reporter: reporter,
		clock:    SystemClock{},
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithPhase("observe")
	return l, nil
}

// Reset discards any previous run state. The next Tick starts a new run at
// the clock's current time.
func (l *Loop) Reset() {
	l.run = nil
}

func (l *Loop) begin() *RunState {
	if l.run == nil {
		l.run = &RunState{
			tracker: deadline.NewTracker(l.clock.Now(), l.cfg.Cadence),
			state:   StateRunning,
		}
	}
	return l.run
}

// finish moves the run to a terminal state. A run that is already terminal
// keeps its first state.
func (l *Loop) finish(state State, err error) State {
	run := l.run
	if run.state.Terminal() {
		return run.state
	}
	run.state = state
	run.err = err
	run.finishedAt = l.clock.Now()
	return state
}

// Tick performs one step of the state machine and returns the state after
// it. The deadline is checked before polling, so a run past its deadline
// times out even if data is waiting.
func (l *Loop) Tick(ctx context.Context) State {
	run := l.begin()
	if run.state.Terminal() {
		return run.state
	}
	if err := ctx.Err(); err != nil {
		return l.finish(StateInterrupted, fmt.Errorf("%w: %w", apperrors.ErrInterrupted, err))
	}

	now := l.clock.Now()
	if elapsed := run.tracker.Elapsed(now); elapsed > l.cfg.Timeout {
		// A run that never saw output still owes the operator the hint,
		// even when the timeout is shorter than the grace period.
		if !run.tracker.SawActivity() && !run.tracker.HintShown() {
			l.reporter.Hint()
			run.tracker.MarkHint()
		}
		l.logger.Warn("deadline passed", "elapsed", elapsed.String(), "bytes", run.bytes)
		return l.finish(StateTimeout, apperrors.ErrTimeout)
	}

	frag, err := l.src.Poll()
	if err != nil {
		l.logger.Error("read failed", "error", err.Error())
		return l.finish(StateLinkLost,
			apperrors.NewSerialError("read failed", apperrors.Join(apperrors.ErrLinkLost, err)))
	}

	now = l.clock.Now()
	if frag.Empty() {
		l.idle(run, now)
		return StateRunning
	}

	l.write(frag.Raw)
	run.buffer.WriteString(frag.Text)
	run.bytes += len(frag.Raw)
	run.tracker.MarkActivity(now)
	l.logger.Debug("fragment received", "bytes", len(frag.Raw), "total", run.bytes)

	if p, ok := l.cfg.Progress.Latest(frag.Text); ok && (!run.hasProgress || p != run.progress) {
		run.progress = p
		run.hasProgress = true
		l.reporter.Progress(p)
		l.logger.Info("progress", "current", p.Current, "total", p.Total)
	}

	if l.cfg.Completion.Found(run.buffer.String()) {
		l.logger.Info("completion marker found", "bytes", run.bytes)
		return l.finish(StateSuccess, nil)
	}
	return StateRunning
}

// idle handles a silent poll: the status cadence and the one-time hint.
func (l *Loop) idle(run *RunState, now time.Time) {
	if st, due := run.tracker.StatusDue(now); due {
		l.reporter.Status(st)
		run.tracker.MarkStatus(now)
		l.logger.Debug("status shown", "elapsed", st.Elapsed.String(), "idle", st.Idle.String())
	}
	if run.tracker.HintDue(now) {
		l.reporter.Hint()
		run.tracker.MarkHint()
		l.logger.Warn("no output after grace period")
	}
}

func (l *Loop) write(p []byte) {
	if _, err := l.echo.Write(p); err != nil {
		l.logger.Warn("echo write failed", "error", err.Error())
	}
}

// Run ticks until the run reaches a terminal state, sleeping PollInterval
// between ticks. After success it keeps echoing trailing output for
// SuccessFlush. Cancelling ctx ends the run as interrupted.
func (l *Loop) Run(ctx context.Context) Outcome {
	l.Reset()
	run := l.begin()
	l.logger.Info("observation started",
		"timeout", l.cfg.Timeout.String(),
		"completion_pattern", l.cfg.Completion.Pattern())

	for {
		if l.Tick(ctx).Terminal() {
			break
		}
		if err := l.clock.Sleep(ctx, l.cfg.PollInterval); err != nil {
			l.finish(StateInterrupted, fmt.Errorf("%w: %w", apperrors.ErrInterrupted, err))
			break
		}
	}

	if run.state == StateSuccess {
		l.flush(ctx)
	}

	out := l.Outcome()
	l.logger.Info("observation finished",
		"state", out.State.String(),
		"elapsed", out.Elapsed.String(),
		"bytes", out.Bytes)
	return out
}

// flush echoes trailing output after success without matching it.
func (l *Loop) flush(ctx context.Context) {
	if l.cfg.SuccessFlush <= 0 {
		return
	}
	until := l.clock.Now().Add(l.cfg.SuccessFlush)
	for l.clock.Now().Before(until) {
		frag, err := l.src.Poll()
		if err != nil {
			l.logger.Debug("read failed during flush", "error", err.Error())
			return
		}
		if !frag.Empty() {
			l.write(frag.Raw)
			l.run.bytes += len(frag.Raw)
		}
		if err := l.clock.Sleep(ctx, l.cfg.PollInterval); err != nil {
			return
		}
	}
}

// Outcome returns the summary of the current run. Before any Tick it
// reports a running state with zero elapsed time.
func (l *Loop) Outcome() Outcome {
	run := l.run
	if run == nil {
		return Outcome{State: StateRunning}
	}
	end := run.finishedAt
	if !run.state.Terminal() {
		end = l.clock.Now()
	}
	return Outcome{
		State:       run.state,
		Elapsed:     run.tracker.Elapsed(end),
		Err:         run.err,
		Bytes:       run.bytes,
		Progress:    run.progress,
		HasProgress: run.hasProgress,
	}
}

// Buffer returns everything decoded so far in the current run.
func (l *Loop) Buffer() string {
	if l.run == nil {
		return ""
	}
	return l.run.buffer.String()
}
