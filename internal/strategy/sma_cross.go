package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// SMACrossStrategy signals on the candle where the fast SMA crosses the slow one
type SMACrossStrategy struct {
	fast int
	slow int
}

// NewSMACrossStrategy creates a moving average cross strategy
func NewSMACrossStrategy(fast, slow int) (*SMACrossStrategy, error) {
	if fast <= 0 || slow <= 0 || fast >= slow {
		return nil, fmt.Errorf("sma cross needs 0 < fast < slow, got %d/%d", fast, slow)
	}
	return &SMACrossStrategy{fast: fast, slow: slow}, nil
}

func (s *SMACrossStrategy) Name() string {
	return fmt.Sprintf("sma-cross(%d/%d)", s.fast, s.slow)
}

func (s *SMACrossStrategy) Lookback() int { return s.slow + 1 }

func (s *SMACrossStrategy) GenerateSignal(candles []types.OHLCV) Signal {
	if len(candles) < s.Lookback() {
		return SignalNone
	}
	c := closes(candles)
	fast := talib.Sma(c, s.fast)
	slow := talib.Sma(c, s.slow)

	n := len(c) - 1
	prevAbove := fast[n-1] > slow[n-1]
	nowAbove := fast[n] > slow[n]
	switch {
	case nowAbove && !prevAbove:
		return SignalEnter
	case !nowAbove && prevAbove:
		return SignalExit
	}
	return SignalNone
}
