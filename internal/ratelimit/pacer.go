package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pacer spaces outbound calls for one provider so that consecutive calls
// start at least Interval apart. The gap is measured from the completion of
// the previous call, and calls are serialized while the pacer is held.
type Pacer struct {
	mu       sync.Mutex
	name     string
	interval time.Duration
	clock    Clock
	logger   *slog.Logger
	last     time.Time
	calls    int64
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) PacerOption {
	return func(p *Pacer) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithPacerLogger sets the logger used for wait diagnostics.
func WithPacerLogger(l *slog.Logger) PacerOption {
	return func(p *Pacer) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPacer builds a pacer allowing callsPerMinute calls. A non-positive
// rate disables pacing.
func NewPacer(name string, callsPerMinute int, opts ...PacerOption) *Pacer {
	p := &Pacer{
		name:     name,
		interval: IntervalFor(callsPerMinute),
		clock:    SystemClock,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IntervalFor returns 60s/callsPerMinute rounded up to the next nanosecond.
func IntervalFor(callsPerMinute int) time.Duration {
	if callsPerMinute <= 0 {
		return 0
	}
	n := time.Duration(callsPerMinute)
	return (time.Minute + n - 1) / n
}

// Interval is the minimum spacing between calls.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Calls returns how many calls went through the pacer.
func (p *Pacer) Calls() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Do waits for the pacing interval, then runs fn while holding the pacer.
// A cancelled ctx aborts the wait without running fn.
func (p *Pacer) Do(ctx context.Context, fn func(context.Context) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() && p.interval > 0 {
		elapsed := p.clock.Now().Sub(p.last)
		if wait := p.interval - elapsed; wait > 0 {
			p.logger.Debug("rate limit wait", "provider", p.name, "wait", wait)
			if err := p.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.calls++
	err := fn(ctx)
	p.last = p.clock.Now()
	return err
}
