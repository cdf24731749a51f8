package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

func curve(values ...float64) []types.EquitySample {
	out := make([]types.EquitySample, len(values))
	for i, v := range values {
		out[i] = types.EquitySample{Timestamp: t0.Add(time.Duration(i) * time.Hour), Equity: v}
	}
	return out
}

func TestMaxDrawdownPct(t *testing.T) {
	assert.InDelta(t, 50.0, MaxDrawdownPct(curve(100, 120, 90, 130, 65)), 1e-9)
	assert.Zero(t, MaxDrawdownPct(curve(100, 101, 102)))
	assert.Zero(t, MaxDrawdownPct(nil))
}

func TestSharpeRatio(t *testing.T) {
	want := 0.015 / math.Sqrt(0.00005) * math.Sqrt(252)
	assert.InDelta(t, want, SharpeRatio(curve(100, 101, 103.02), 0), 1e-6)

	// hourly samples get a 24th of the daily risk-free rate
	withRf := SharpeRatio(curve(100, 101, 103.02), 0.252)
	assert.InDelta(t, (0.015-0.001/24)/math.Sqrt(0.00005)*math.Sqrt(252), withRf, 1e-6)

	daily := curve(100, 101, 103.02)
	for i := range daily {
		daily[i].Timestamp = t0.AddDate(0, 0, i)
	}
	assert.InDelta(t, (0.015-0.001)/math.Sqrt(0.00005)*math.Sqrt(252), SharpeRatio(daily, 0.252), 1e-6)

	untimed := []types.EquitySample{{Equity: 100}, {Equity: 101}, {Equity: 103.02}}
	assert.InDelta(t, SharpeRatio(daily, 0.252), SharpeRatio(untimed, 0.252), 1e-9, "missing timestamps count as daily steps")

	assert.Zero(t, SharpeRatio(curve(100, 100, 100), 0), "flat curve")
	assert.Zero(t, SharpeRatio(curve(100, 101), 0), "too short")
}

func TestMatchRoundTripsFIFO(t *testing.T) {
	fills := []types.Fill{
		{Side: types.SideBuy, Price: 100, Quantity: 1, Fee: 1, Timestamp: t0},
		{Side: types.SideBuy, Price: 200, Quantity: 1, Fee: 2, Timestamp: t0.Add(time.Hour)},
		{Side: types.SideSell, Price: 300, Quantity: 1.5, Fee: 3, Timestamp: t0.Add(2 * time.Hour), Reason: "take-profit-L1"},
		{Side: types.SideSell, Price: 50, Quantity: 0.5, Timestamp: t0.Add(3 * time.Hour), Reason: "stop-loss-L1"},
		{Side: types.SideSell, Price: 50, Quantity: 1, Timestamp: t0.Add(4 * time.Hour)},
	}
	trips := MatchRoundTrips(fills)
	require.Len(t, trips, 2)

	assert.Equal(t, t0, trips[0].EntryTime)
	assert.InDelta(t, 200/1.5, trips[0].EntryPrice, 1e-9)
	assert.InDelta(t, 5.0, trips[0].Fees, 1e-9)
	assert.InDelta(t, 245.0, trips[0].PnL, 1e-9)

	assert.Equal(t, t0.Add(time.Hour), trips[1].EntryTime)
	assert.InDelta(t, -76.0, trips[1].PnL, 1e-9)
	assert.Equal(t, "stop-loss-L1", trips[1].Reason)
}

func TestComputeMetrics(t *testing.T) {
	res := &Result{
		InitialCapital: 1000,
		FinalEquity:    1100,
		Equity:         curve(1000, 1050, 1100),
		RoundTrips: []RoundTrip{
			{PnL: 150}, {PnL: -50}, {PnL: 50},
		},
		Fills: []types.Fill{{Fee: 1}, {Fee: 2}},
	}
	m := ComputeMetrics(res, 0)

	assert.InDelta(t, 10.0, m.TotalReturnPct, 1e-9)
	assert.Equal(t, 3, m.Trades)
	assert.Equal(t, 2, m.Wins)
	assert.InDelta(t, 200.0/3, m.WinRatePct, 1e-9)
	assert.InDelta(t, 100.0, m.AvgWin, 1e-9)
	assert.InDelta(t, 50.0, m.AvgLoss, 1e-9)
	assert.InDelta(t, 4.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 3.0, m.TotalFees, 1e-9)
}
