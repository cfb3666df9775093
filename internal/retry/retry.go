package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- share of each delay picked at random
}

// DefaultConfig returns defaults for short store transactions:
// 3 retries starting at 100ms, capped at 5s, doubling, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1))
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Backoff yields successive delays for an unbounded retry loop.
type Backoff struct {
	cfg   *Config
	delay time.Duration
}

// NewBackoff starts a delay sequence at cfg.InitialDelay
func NewBackoff(cfg *Config) *Backoff {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// Next returns the jittered current delay and advances the sequence
func (b *Backoff) Next() time.Duration {
	d := applyJitter(b.delay, b.cfg.JitterFactor)
	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return d
}

// Sleep waits for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoIfRetryable retries only errors IsRetryable accepts
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	return DoIf(ctx, cfg, IsRetryable, fn)
}

// DoIf executes fn, retrying while shouldRetry accepts the error and
// attempts remain. Returns the last error once retries are exhausted.
// Respects context cancellation during wait periods.
func DoIf(ctx context.Context, cfg *Config, shouldRetry func(error) bool, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	backoff := NewBackoff(cfg)
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == cfg.MaxRetries {
			return err
		}
		if err := Sleep(ctx, backoff.Next()); err != nil {
			return err
		}
	}
	return lastErr
}

// IsRetryable determines if an error is transient and worth retrying.
//
// Errors that implement IsRetryable() bool decide for themselves; anything
// else is pattern-matched against known connection and lock failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return matches(err, connectionPatterns) || matches(err, lockPatterns)
}

// IsLockConflict reports whether err is a lock wait, deadlock or
// serialization failure, meaning a concurrent transaction won.
func IsLockConflict(err error) bool {
	if err == nil {
		return false
	}
	return matches(err, lockPatterns)
}

func matches(err error, patterns []string) bool {
	errStr := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

var connectionPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"bad connection",
}

var lockPatterns = []string{
	"database is locked",
	"database table is locked",
	"deadlock",
	"lock wait timeout",
	"could not serialize",
	"serialization failure",
	"sqlstate 40001",
	"sqlstate 40p01",
}
