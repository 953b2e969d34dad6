// Package backoff wraps every provider call: it classifies failures and
// retries the transient ones with a capped exponential delay.
package backoff

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
)

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

type Policy struct {
	logger *slog.Logger
	cfg    Config
}

func New(logger *slog.Logger, cfg Config) *Policy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	return &Policy{
		logger: logger,
		cfg:    cfg,
	}
}

func (p *Policy) Config() Config {
	return p.cfg
}

// Delay is the wait after the given failed attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.Multiplier, float64(attempt-1))
	if delay >= float64(p.cfg.MaxDelay) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		return p.cfg.MaxDelay
	}

	return time.Duration(delay)
}

func (p *Policy) backoff() retry.Backoff {
	var mu sync.Mutex
	attempt := 0

	next := retry.BackoffFunc(func() (time.Duration, bool) {
		mu.Lock()
		defer mu.Unlock()

		attempt++
		return p.Delay(attempt), false
	})

	//nolint:gosec //MaxAttempts is at least 1
	return retry.WithMaxRetries(uint64(p.cfg.MaxAttempts-1), next)
}

// Do runs fn until it succeeds, fails with a non-retryable error or runs out
// of attempts.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func DoValue[T any](
	ctx context.Context,
	p *Policy,
	op string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	attempts := 0

	value, err := retry.DoValue(ctx, p.backoff(), func(ctx context.Context) (T, error) {
		attempts++

		v, errIn := fn(ctx)
		if errIn == nil {
			return v, nil
		}

		if Classify(errIn) != KindTransient {
			return v, errIn
		}

		if attempts < p.cfg.MaxAttempts {
			p.logger.Debug(
				"retrying provider call",
				"op", op,
				"attempt", attempts,
				"delay", p.Delay(attempts),
				logging.ErrAttr(errIn),
			)
		}

		return v, retry.RetryableError(errIn)
	})
	if err == nil {
		return value, nil
	}

	kind := Classify(err)
	if kind == KindTransient && attempts >= p.cfg.MaxAttempts {
		return value, &ProviderError{
			Kind: KindTransient,
			Op:   op,
			Err:  fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err),
		}
	}

	return value, &ProviderError{Kind: kind, Op: op, Err: err}
}
