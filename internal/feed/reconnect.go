package feed

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

// ReconnectConfig controls the reconnect schedule
type ReconnectConfig struct {
	BaseDelay time.Duration `mapstructure:"reconnect_base" validate:"gt=0"`
	MaxDelay  time.Duration `mapstructure:"reconnect_max" validate:"gtefield=BaseDelay"`
	// WarnAfter consecutive failures the reconnector starts reporting escalations
	WarnAfter int `mapstructure:"warn_after" validate:"gte=1"`
}

// DefaultReconnectConfig returns 1s doubling up to 60s, warning after 5 failures
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{BaseDelay: time.Second, MaxDelay: time.Minute, WarnAfter: 5}
}

// Attempt describes one failed reconnect
type Attempt struct {
	Failures  int
	Err       error
	Delay     time.Duration
	Escalated bool
}

// Reconnector re-establishes a feed with exponential backoff
type Reconnector struct {
	cfg   ReconnectConfig
	log   *logger.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewReconnector creates a reconnector
func NewReconnector(cfg ReconnectConfig, log *logger.Logger) *Reconnector {
	if cfg.WarnAfter < 1 {
		cfg.WarnAfter = 1
	}
	return &Reconnector{cfg: cfg, log: log.Named("reconnect"), sleep: sleepCtx}
}

// Reconnect calls f.Connect until it succeeds or ctx ends. onFailure, when
// set, sees every failed attempt. It returns the number of failures before success.
func (r *Reconnector) Reconnect(ctx context.Context, f PriceFeed, onFailure func(Attempt)) (int, error) {
	b := &backoff.Backoff{Min: r.cfg.BaseDelay, Max: r.cfg.MaxDelay, Factor: 2}

	failures := 0
	for {
		err := f.Connect(ctx)
		if err == nil {
			if failures > 0 {
				r.log.Info("feed reconnected", zap.Int("failures", failures))
			}
			return failures, nil
		}
		if ctx.Err() != nil {
			return failures, ctx.Err()
		}

		failures++
		a := Attempt{Failures: failures, Err: err, Delay: b.Duration(), Escalated: failures >= r.cfg.WarnAfter}
		if a.Escalated {
			r.log.Warn("feed still down", zap.Int("failures", failures), logger.ErrorField(err))
		} else {
			r.log.Info("reconnect failed", zap.Int("failures", failures), zap.Duration("retry_in", a.Delay), logger.ErrorField(err))
		}
		if onFailure != nil {
			onFailure(a)
		}

		if err := r.sleep(ctx, a.Delay); err != nil {
			return failures, err
		}
	}
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
