package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

// RetryConfig holds configuration for retry mechanisms
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"gte=1"`
	BaseDelay         time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxDelay          time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown" validate:"gt=0"`
	CallTimeout       time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	Jitter            bool          `mapstructure:"jitter"`
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		RateLimitCooldown: 2 * time.Second,
		CallTimeout:       10 * time.Second,
		Jitter:            true,
	}
}

// RetryObserver is told about every failed attempt that will be retried
type RetryObserver func(op string, category boterrors.ErrorCategory)

// Retrier gates calls through the category buckets, applies a per-call
// timeout and retries by error category: transient failures back off
// exponentially, exchange rate limits wait a fixed cooldown, anything else
// is returned at once.
type Retrier struct {
	cfg      RetryConfig
	buckets  *Buckets
	log      *logger.Logger
	observer RetryObserver
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier sharing the given buckets
func NewRetrier(cfg RetryConfig, buckets *Buckets, log *logger.Logger) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Retrier{cfg: cfg, buckets: buckets, log: log.Named("retry"), sleep: sleepCtx}
}

// OnRetry installs an observer, typically a metrics counter
func (r *Retrier) OnRetry(obs RetryObserver) {
	r.observer = obs
}

// Do runs fn until it succeeds, fails permanently or attempts run out
func (r *Retrier) Do(ctx context.Context, cat Category, op string, fn func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    r.cfg.BaseDelay,
		Max:    r.cfg.MaxDelay,
		Factor: 2,
		Jitter: r.cfg.Jitter,
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := r.buckets.Wait(ctx, cat); err != nil {
			return err
		}

		err := r.call(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		category := boterrors.CategoryOf(err)
		var delay time.Duration
		switch category {
		case boterrors.ErrorCategoryTransient, boterrors.ErrorCategoryTimeout:
			delay = b.Duration()
		case boterrors.ErrorCategoryRateLimit:
			delay = r.cfg.RateLimitCooldown
		default:
			return err
		}

		if attempt == r.cfg.MaxAttempts {
			break
		}
		if r.observer != nil {
			r.observer(op, category)
		}
		r.log.Warn("retrying exchange call",
			zap.String("op", op),
			zap.String("category", string(category)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &boterrors.BotError{
		Category:   boterrors.ErrorCategoryTransient,
		Component:  "exchange",
		Operation:  op,
		Message:    fmt.Sprintf("gave up after %d attempts", r.cfg.MaxAttempts),
		Underlying: lastErr,
	}
}

func (r *Retrier) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
