package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

func newTestRetrier(t *testing.T) (*Retrier, *[]time.Duration) {
	t.Helper()
	cfg := RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		RateLimitCooldown: 5 * time.Second,
		CallTimeout:       50 * time.Millisecond,
	}
	unlimited := Limit{Requests: 1000, Interval: time.Millisecond}
	r := NewRetrier(cfg, NewBuckets(Limits{Order: unlimited, Account: unlimited, Market: unlimited}), logger.NewNop())

	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

// TestRetryTransientBacksOff tests exponential delays between transient failures
func TestRetryTransientBacksOff(t *testing.T) {
	r, slept := newTestRetrier(t)

	calls := 0
	err := r.Do(context.Background(), CategoryOrder, "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
}

func TestRetryExhausted(t *testing.T) {
	r, _ := newTestRetrier(t)

	var observed []boterrors.ErrorCategory
	r.OnRetry(func(op string, c boterrors.ErrorCategory) { observed = append(observed, c) })

	calls := 0
	err := r.Do(context.Background(), CategoryAccount, "GetBalance", func(ctx context.Context) error {
		calls++
		return errors.New("dial tcp: i/o failure")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, observed, 2)

	var be *boterrors.BotError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, boterrors.ErrorCategoryTransient, be.Category)
	assert.Equal(t, "GetBalance", be.Operation)
}

func TestRetryRateLimitUsesCooldown(t *testing.T) {
	r, slept := newTestRetrier(t)

	calls := 0
	err := r.Do(context.Background(), CategoryOrder, "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return boterrors.NewBotError(boterrors.ErrorCategoryRateLimit, "bybit", "op", "too many visits")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, *slept)
}

func TestRetryBusinessNeverRetried(t *testing.T) {
	r, slept := newTestRetrier(t)

	calls := 0
	err := r.Do(context.Background(), CategoryOrder, "op", func(ctx context.Context) error {
		calls++
		return boterrors.NewBusinessError(boterrors.ErrInsufficientBalance, "bybit", "op", 170131, "Insufficient balance")
	})

	assert.ErrorIs(t, err, boterrors.ErrInsufficientBalance)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

// TestRetryCallTimeout tests that a hung call is cut off and retried
func TestRetryCallTimeout(t *testing.T) {
	r, _ := newTestRetrier(t)

	calls := 0
	err := r.Do(context.Background(), CategoryMarket, "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryParentCancelled(t *testing.T) {
	r, _ := newTestRetrier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, CategoryOrder, "op", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
