package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Gate is the single choke point for outbound calls of one provider:
// every attempt is paced, time-boxed and retried on transient failure.
// A nil *Gate runs calls directly.
type Gate struct {
	pacer     *Pacer
	retry     RetryPolicy
	timeout   time.Duration
	retryable func(error) bool
	logger    *slog.Logger
}

// NewGate combines a pacer with a retry policy. timeout bounds each attempt;
// zero means no per-attempt deadline beyond ctx.
func NewGate(p *Pacer, retry RetryPolicy, timeout time.Duration, retryable func(error) bool, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{pacer: p, retry: retry, timeout: timeout, retryable: retryable, logger: logger}
}

// Pacer exposes the underlying pacer.
func (g *Gate) Pacer() *Pacer {
	if g == nil {
		return nil
	}
	return g.pacer
}

// Call runs fn through pacing and retry. op names the call in logs.
func (g *Gate) Call(ctx context.Context, op string, fn func(context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}
	attempt := func() error {
		run := func(ctx context.Context) error {
			if g.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}
			return fn(ctx)
		}
		if g.pacer == nil {
			return run(ctx)
		}
		return g.pacer.Do(ctx, run)
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("retrying call", "op", op, "err", err, "backoff", wait)
	}
	return g.retry.Do(ctx, attempt, g.retryable, notify)
}
