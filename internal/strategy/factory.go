package strategy

import (
	"fmt"
	"strings"
)

// Config selects and parameterizes an entry strategy
type Config struct {
	Name       string  `json:"name" mapstructure:"name"`
	RSIPeriod  int     `json:"rsi_period" mapstructure:"rsi_period" validate:"gte=0"`
	Oversold   float64 `json:"oversold" mapstructure:"oversold" validate:"gte=0,lte=100"`
	Overbought float64 `json:"overbought" mapstructure:"overbought" validate:"gte=0,lte=100"`
	FastPeriod int     `json:"fast_period" mapstructure:"fast_period" validate:"gte=0"`
	SlowPeriod int     `json:"slow_period" mapstructure:"slow_period" validate:"gte=0"`
}

// New creates the strategy named in cfg
func New(cfg Config) (SignalStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "rsi":
		return NewRSIStrategy(cfg.RSIPeriod, cfg.Oversold, cfg.Overbought), nil

	case "sma_cross", "sma-cross", "sma":
		fast, slow := cfg.FastPeriod, cfg.SlowPeriod
		if fast == 0 && slow == 0 {
			fast, slow = 9, 21
		}
		return NewSMACrossStrategy(fast, slow)

	case "always", "":
		return AlwaysStrategy{}, nil

	default:
		return nil, fmt.Errorf("unknown strategy: %s (supported: %s)", cfg.Name, strings.Join(Available(), ", "))
	}
}

// Available returns the strategy names New accepts
func Available() []string {
	return []string{"always", "rsi", "sma_cross"}
}
