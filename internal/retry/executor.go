// Package retry wraps a single-shot portal submit attempt with the
// outcome taxonomy, exponential backoff with jitter, and Retry-After
// honoring described for the engine's submission stage.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config tunes backoff. Base/Cap come from config.Config's
// retry_base_ms/retry_cap_ms; MaxAttempts from retry_max_attempts.
type Config struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// DefaultConfig matches spec defaults: 3 attempts, 1s base, 30s cap.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Base: time.Second, Cap: 30 * time.Second}
}

// ErrCancelled is returned when kill_requested was observed between
// attempts; the engine maps this to status=failed, error="cancelled".
var ErrCancelled = errors.New("cancelled")

// Submit is the Portal Adapter's single-shot call, reused across retry
// attempts with the same idempotency token baked into request by the
// caller.
type Submit func(ctx context.Context) (Outcome, error)

// OnAttempt is invoked before each attempt with the 1-based attempt
// number, so the engine can emit a stage_update{attempt=k} Event.
type OnAttempt func(attempt int)

// KillRequested is polled between attempts and during backoff sleeps on
// a <=2s cadence; returning true aborts the retry loop.
type KillRequested func() bool

// Execute runs submit up to cfg.MaxAttempts times, retrying on
// TransientNetwork, Transient5xx, and RateLimited outcomes with
// exponential backoff (base * 2^(attempt-1) + jitter, capped), honoring
// a Retry-After override on RateLimited. Timeout is retried exactly once
// then treated as permanent. Returns the first terminal Outcome (or the
// last retryable one if attempts are exhausted) and the error for
// cancellation/transport failures.
func Execute(ctx context.Context, cfg Config, submit Submit, onAttempt OnAttempt, killed KillRequested) (Outcome, error) {
	var last Outcome
	timeoutUsed := false

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if killed() {
			last.Attempts = attempt - 1
			return last, ErrCancelled
		}
		if onAttempt != nil {
			onAttempt(attempt)
		}

		outcome, err := submit(ctx)
		outcome.Attempts = attempt
		if err != nil {
			return outcome, err
		}
		last = outcome

		switch outcome.Kind {
		case Submitted, DuplicateAtPortal, PermanentClient:
			return outcome, nil
		case Timeout:
			if timeoutUsed {
				return outcome, nil
			}
			timeoutUsed = true
		case TransientNetwork, Transient5xx, RateLimited:
			// fall through to backoff below
		}

		if attempt == cfg.MaxAttempts {
			return outcome, nil
		}

		wait := backoff(cfg, attempt)
		if outcome.Kind == RateLimited && outcome.RetryAfterSecs > 0 {
			if fromHeader := time.Duration(outcome.RetryAfterSecs) * time.Second; fromHeader > wait {
				wait = fromHeader
			}
		}
		if err := sleepCancellable(ctx, wait, killed); err != nil {
			last.Attempts = attempt
			return last, err
		}
	}
	return last, nil
}

func backoff(cfg Config, attempt int) time.Duration {
	base := cfg.Base
	if base <= 0 {
		base = time.Second
	}
	capDur := cfg.Cap
	if capDur <= 0 {
		capDur = 30 * time.Second
	}
	d := base << (attempt - 1)
	if d > capDur {
		d = capDur
	}
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	d += jitter
	if d > capDur {
		d = capDur
	}
	return d
}

// sleepCancellable sleeps for d, checking killed() at least every 2s and
// honoring ctx cancellation, so Stop's kill switch bounds the wait.
func sleepCancellable(ctx context.Context, d time.Duration, killed KillRequested) error {
	const pollInterval = 2 * time.Second
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		step := remaining
		if step > pollInterval {
			step = pollInterval
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if killed() {
			return ErrCancelled
		}
	}
}
