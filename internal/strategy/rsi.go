package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// RSIStrategy enters when RSI is oversold and signals exit when overbought
type RSIStrategy struct {
	period     int
	oversold   float64
	overbought float64
}

// NewRSIStrategy creates an RSI strategy; zero values fall back to 14 / 30 / 70
func NewRSIStrategy(period int, oversold, overbought float64) *RSIStrategy {
	if period <= 0 {
		period = 14
	}
	if oversold <= 0 {
		oversold = 30
	}
	if overbought <= 0 {
		overbought = 70
	}
	return &RSIStrategy{period: period, oversold: oversold, overbought: overbought}
}

func (s *RSIStrategy) Name() string {
	return fmt.Sprintf("rsi(%d,%.0f/%.0f)", s.period, s.oversold, s.overbought)
}

func (s *RSIStrategy) Lookback() int { return s.period + 1 }

func (s *RSIStrategy) GenerateSignal(candles []types.OHLCV) Signal {
	if len(candles) < s.Lookback() {
		return SignalNone
	}
	series := talib.Rsi(closes(candles), s.period)
	if len(series) == 0 {
		return SignalNone
	}

	rsi := series[len(series)-1]
	switch {
	case rsi <= s.oversold:
		return SignalEnter
	case rsi >= s.overbought:
		return SignalExit
	}
	return SignalNone
}
