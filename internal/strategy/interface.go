package strategy

import (
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Signal is a strategy's verdict on the latest closed candle
type Signal int

const (
	SignalNone Signal = iota
	SignalEnter
	SignalExit
)

func (s Signal) String() string {
	switch s {
	case SignalNone:
		return "NONE"
	case SignalEnter:
		return "ENTER"
	case SignalExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// SignalStrategy decides when a flat position should be entered.
// Candles are oldest first and the last one is the newest closed candle.
type SignalStrategy interface {
	GenerateSignal(candles []types.OHLCV) Signal

	// Name returns the name of the strategy
	Name() string

	// Lookback is how many candles the strategy needs to produce a signal
	Lookback() int
}

func closes(candles []types.OHLCV) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
