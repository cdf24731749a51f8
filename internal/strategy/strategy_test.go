package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

func series(prices ...float64) []types.OHLCV {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.OHLCV, len(prices))
	for i, p := range prices {
		out[i] = types.OHLCV{Symbol: "BTCUSDT", Open: p, High: p, Low: p, Close: p, Timestamp: t0.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func flatThen(n int, flat float64, last ...float64) []float64 {
	out := make([]float64, 0, n+len(last))
	for i := 0; i < n; i++ {
		out = append(out, flat)
	}
	return append(out, last...)
}

func TestRSIStrategy(t *testing.T) {
	s := NewRSIStrategy(14, 30, 70)
	assert.Equal(t, 15, s.Lookback())

	assert.Equal(t, SignalNone, s.GenerateSignal(series(ramp(100, -1, 10)...)), "not enough history")
	assert.Equal(t, SignalEnter, s.GenerateSignal(series(ramp(100, -1, 30)...)))
	assert.Equal(t, SignalExit, s.GenerateSignal(series(ramp(100, 1, 30)...)))
}

func TestSMACrossStrategy(t *testing.T) {
	s, err := NewSMACrossStrategy(3, 10)
	require.NoError(t, err)

	assert.Equal(t, SignalEnter, s.GenerateSignal(series(flatThen(20, 100, 130)...)))
	assert.Equal(t, SignalExit, s.GenerateSignal(series(flatThen(20, 100, 70)...)))
	assert.Equal(t, SignalNone, s.GenerateSignal(series(flatThen(20, 100, 100)...)))
	assert.Equal(t, SignalNone, s.GenerateSignal(series(100, 130)))

	_, err = NewSMACrossStrategy(10, 3)
	assert.Error(t, err)
}

func TestAlwaysStrategy(t *testing.T) {
	assert.Equal(t, SignalNone, AlwaysStrategy{}.GenerateSignal(nil))
	assert.Equal(t, SignalEnter, AlwaysStrategy{}.GenerateSignal(series(1)))
}

func TestFactory(t *testing.T) {
	tests := []struct {
		cfg  Config
		name string
	}{
		{Config{}, "always"},
		{Config{Name: "RSI"}, "rsi(14,30/70)"},
		{Config{Name: "sma_cross"}, "sma-cross(9/21)"},
		{Config{Name: "sma", FastPeriod: 5, SlowPeriod: 20}, "sma-cross(5/20)"},
	}
	for _, tt := range tests {
		s, err := New(tt.cfg)
		require.NoError(t, err)
		assert.Equal(t, tt.name, s.Name())
	}

	_, err := New(Config{Name: "martingale"})
	assert.Error(t, err)
}

func TestSignalString(t *testing.T) {
	assert.Equal(t, "ENTER", SignalEnter.String())
	assert.Equal(t, "UNKNOWN", Signal(9).String())
}
