package exchange

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Category groups REST calls that share a request ceiling
type Category string

const (
	CategoryOrder   Category = "order"
	CategoryAccount Category = "account"
	CategoryMarket  Category = "market"
)

// Limit is a requests-per-interval ceiling
type Limit struct {
	Requests int           `mapstructure:"requests" validate:"gt=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

// Limits holds one ceiling per category
type Limits struct {
	Order   Limit `mapstructure:"order"`
	Account Limit `mapstructure:"account"`
	Market  Limit `mapstructure:"market"`
}

// DefaultLimits returns order 8/s, account 30/s and market 600/min
func DefaultLimits() Limits {
	return Limits{
		Order:   Limit{Requests: 8, Interval: time.Second},
		Account: Limit{Requests: 30, Interval: time.Second},
		Market:  Limit{Requests: 600, Interval: time.Minute},
	}
}

// Buckets is the process wide set of token buckets. Create one and share it
// with every client; rate.Limiter is safe for concurrent use.
type Buckets struct {
	limiters map[Category]*rate.Limiter
}

// NewBuckets builds the category buckets. Each bucket starts full and holds
// up to one interval worth of requests.
func NewBuckets(l Limits) *Buckets {
	mk := func(lim Limit) *rate.Limiter {
		if lim.Requests <= 0 || lim.Interval <= 0 {
			return rate.NewLimiter(rate.Inf, 1)
		}
		every := rate.Every(lim.Interval / time.Duration(lim.Requests))
		return rate.NewLimiter(every, lim.Requests)
	}
	return &Buckets{limiters: map[Category]*rate.Limiter{
		CategoryOrder:   mk(l.Order),
		CategoryAccount: mk(l.Account),
		CategoryMarket:  mk(l.Market),
	}}
}

// Wait blocks until a token for cat is available or ctx ends
func (b *Buckets) Wait(ctx context.Context, cat Category) error {
	lim, ok := b.limiters[cat]
	if !ok {
		return fmt.Errorf("unknown rate limit category %q", cat)
	}
	return lim.Wait(ctx)
}

// Tokens reports the tokens currently available in cat
func (b *Buckets) Tokens(cat Category) float64 {
	lim, ok := b.limiters[cat]
	if !ok {
		return 0
	}
	return lim.Tokens()
}
