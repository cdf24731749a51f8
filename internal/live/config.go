package live

import (
	"time"

	"golang.org/x/time/rate"
)

// Config holds per-runner settings
type Config struct {
	Symbol        string `mapstructure:"symbol"`
	QuoteCurrency string `mapstructure:"quote_currency"`
	// CandleInterval feeds the entry strategy, e.g. "5m"
	CandleInterval string `mapstructure:"candle_interval" validate:"required"`
	// HistoryLength is how many closed candles are kept for the strategy
	HistoryLength int `mapstructure:"history_length" validate:"gte=1"`
	// DecisionRate caps tick driven decisions per second; 0 disables the cap
	DecisionRate float64 `mapstructure:"decision_rate" validate:"gte=0"`
	// ObserverRate caps status publications per second; 0 disables the cap
	ObserverRate float64 `mapstructure:"observer_rate" validate:"gte=0"`
	// OrderTimeout bounds how long a placed order is polled before it is
	// left for reconciliation
	OrderTimeout time.Duration `mapstructure:"order_timeout" validate:"gt=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout" validate:"gt=0"`
	ExitOnSignal bool          `mapstructure:"exit_on_signal"`
	// CheckBalance verifies quote balance before every buy
	CheckBalance bool `mapstructure:"check_balance"`
}

// DefaultConfig returns the settings used when the config file is silent
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:         symbol,
		QuoteCurrency:  "USDT",
		CandleInterval: "5m",
		HistoryLength:  200,
		DecisionRate:   2,
		ObserverRate:   10,
		OrderTimeout:   30 * time.Second,
		PollInterval:   time.Second,
		StopTimeout:    15 * time.Second,
		CheckBalance:   true,
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
