package strategy

import "github.com/jang1230/upbit-auto-trader-sub000/pkg/types"

// AlwaysStrategy enters on every closed candle. The ladder then does all the work.
type AlwaysStrategy struct{}

func (AlwaysStrategy) Name() string  { return "always" }
func (AlwaysStrategy) Lookback() int { return 1 }

func (AlwaysStrategy) GenerateSignal(candles []types.OHLCV) Signal {
	if len(candles) == 0 {
		return SignalNone
	}
	return SignalEnter
}
