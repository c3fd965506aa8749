// Package testutil provides test doubles for serialwatch tests: a
// controllable clock and a scripted serial port.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// Epoch is a fixed start instant for fake clocks.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a manually advanced clock. Sleep advances the clock by the
// requested duration instead of blocking. It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	start   time.Time
	now     time.Time
	slept   time.Duration
	sleeps  int
	onSleep func(now time.Time)
}

// NewFakeClock returns a clock reading start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{start: start, now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the fake time elapsed since the clock was created.
func (c *FakeClock) Since() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.start)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// OnSleep registers fn to run after every Sleep has advanced the clock.
// Tests use it to cancel a context at a chosen instant.
func (c *FakeClock) OnSleep(fn func(now time.Time)) {
	c.mu.Lock()
	c.onSleep = fn
	c.mu.Unlock()
}

// Sleep advances the clock by d and then reports ctx's error, so a
// cancellation raised by the OnSleep hook interrupts the sleeper.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
	now, fn := c.now, c.onSleep
	c.mu.Unlock()

	if fn != nil {
		fn(now)
	}
	return ctx.Err()
}

// Slept returns the total duration passed to Sleep and the number of calls.
func (c *FakeClock) Slept() (time.Duration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept, c.sleeps
}

// Chunk is one scripted delivery from a ScriptedPort. At is the offset
// from the clock's start at which the chunk becomes readable. Err, when
// set, is returned by the Read that reaches the chunk.
type Chunk struct {
	At   time.Duration
	Data []byte
	Err  error
}

// Text builds a Chunk carrying s.
func Text(at time.Duration, s string) Chunk {
	return Chunk{At: at, Data: []byte(s)}
}

// ErrPortClosed is returned by reads and writes on a closed ScriptedPort.
var ErrPortClosed = errors.New("scripted port closed")

// ScriptedPort is an in-memory serial handle that replays chunks as the
// fake clock reaches them. Reads with nothing due return (0, nil), like a
// serial port whose read timeout expired.
type ScriptedPort struct {
	mu      sync.Mutex
	clock   *FakeClock
	chunks  []Chunk
	written bytes.Buffer
	drains  int
	closes  int
	closed  bool

	// WriteErr, when set, fails every Write.
	WriteErr error
}

// NewScriptedPort returns a port that delivers chunks according to clock.
func NewScriptedPort(clock *FakeClock, chunks ...Chunk) *ScriptedPort {
	return &ScriptedPort{clock: clock, chunks: chunks}
}

// Read implements io.Reader.
func (p *ScriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if len(p.chunks) == 0 || p.clock.Since() < p.chunks[0].At {
		return 0, nil
	}
	next := &p.chunks[0]
	if next.Err != nil && len(next.Data) == 0 {
		err := next.Err
		p.chunks = p.chunks[1:]
		return 0, err
	}
	n := copy(b, next.Data)
	next.Data = next.Data[n:]
	if len(next.Data) == 0 {
		if next.Err != nil {
			err := next.Err
			p.chunks = p.chunks[1:]
			return n, err
		}
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

// Write records b.
func (p *ScriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.WriteErr != nil {
		return 0, p.WriteErr
	}
	return p.written.Write(b)
}

// Drain counts output flushes.
func (p *ScriptedPort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPortClosed
	}
	p.drains++
	return nil
}

// Close marks the port closed and counts the call.
func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	p.closed = true
	return nil
}

// Written returns everything written so far.
func (p *ScriptedPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// Drains returns how many times Drain was called.
func (p *ScriptedPort) Drains() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drains
}

// Closes returns how many times Close was called.
func (p *ScriptedPort) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// Remaining returns how many chunks have not been fully read.
func (p *ScriptedPort) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)
}
