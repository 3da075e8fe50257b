// Package ratelimit implements the resolver fetch governor:
// a token-bucket rate limiter (default 600 permits / 60s window, 3
// concurrent requests) plus a retry-with-backoff policy (3 attempts,
// base 1s, cap 30s) around CDN fetches.
package ratelimit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/metrics"
)

// Config tunes the limiter; zero values are replaced with the package
// defaults by New.
type Config struct {
	PermitsPerWindow int
	Window           time.Duration
	Concurrent       int
	RetryAttempts    int
	RetryBase        time.Duration
	RetryCap         time.Duration
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		PermitsPerWindow: 600,
		Window:           60 * time.Second,
		Concurrent:       3,
		RetryAttempts:    3,
		RetryBase:        1 * time.Second,
		RetryCap:         30 * time.Second,
	}
}

// Limiter gates and retries resolver CDN fetches.
type Limiter struct {
	tokens *rate.Limiter
	slots  chan struct{}
	cfg    Config
}

// New builds a Limiter from cfg, filling any zero fields with
// DefaultConfig's values.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.PermitsPerWindow == 0 {
		cfg.PermitsPerWindow = def.PermitsPerWindow
	}
	if cfg.Window == 0 {
		cfg.Window = def.Window
	}
	if cfg.Concurrent == 0 {
		cfg.Concurrent = def.Concurrent
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.RetryCap == 0 {
		cfg.RetryCap = def.RetryCap
	}

	ratePerSec := rate.Limit(float64(cfg.PermitsPerWindow) / cfg.Window.Seconds())
	return &Limiter{
		tokens: rate.NewLimiter(ratePerSec, cfg.PermitsPerWindow),
		slots:  make(chan struct{}, cfg.Concurrent),
		cfg:    cfg,
	}
}

// Do runs fn under the rate limit, concurrency cap, and retry-with-backoff
// policy: it waits for a token and a concurrency slot, then calls fn at
// most cfg.RetryAttempts times in all, with exponential backoff between
// cfg.RetryBase and cfg.RetryCap separating failed attempts. Returns the last error if every attempt
// fails, wrapped so callers can tell a permanently-failed fetch (category
// 3 escalating to 1 or 4) from a cancellation.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	waitStart := time.Now()
	if err := l.tokens.Wait(ctx); err != nil {
		return errs.WrapFmt(err, "ratelimit: waiting for token")
	}
	metrics.RateLimiterWaitSeconds.Observe(time.Since(waitStart).Seconds())

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slots }()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.cfg.RetryBase
	bo.MaxInterval = l.cfg.RetryCap
	bo.MaxElapsedTime = 0 // bounded by attempt count below, not elapsed wall time

	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= l.cfg.RetryAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return errs.WrapFmt(err, "ratelimit: all %d attempts failed", l.cfg.RetryAttempts)
	}
	return nil
}
