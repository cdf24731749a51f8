package risk

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newGuard(t *testing.T, cfg Config) *Guard {
	t.Helper()
	g, err := NewGuard(cfg)
	require.NoError(t, err)
	return g
}

func TestGuardRules(t *testing.T) {
	cfg := Config{HardStopLossPct: 10, TakeProfitPct: 20, TrailingStopPct: 5}

	tests := []struct {
		name   string
		prices []float64
		want   Reason
	}{
		{"quiet", []float64{100, 101, 99}, ReasonNone},
		{"hard stop", []float64{95, 89.5}, ReasonHardStop},
		{"take profit", []float64{110, 121}, ReasonTakeProfit},
		{"trailing from peak", []float64{110, 104}, ReasonTrailing},
		{"no trailing below entry", []float64{99, 93}, ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGuard(t, cfg)
			g.Open(100)
			var got Reason
			for _, p := range tt.prices {
				var exit bool
				exit, got = g.ShouldForceExit(p, 1000, day1)
				if exit {
					break
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGuardDailyLossHasPriority(t *testing.T) {
	g := newGuard(t, Config{HardStopLossPct: 10, DailyLossLimitPct: 5})
	g.Open(100)

	exit, reason := g.ShouldForceExit(100, 1000, day1)
	assert.False(t, exit)
	assert.Equal(t, ReasonNone, reason)

	// both hard stop and daily loss are breached
	exit, reason = g.ShouldForceExit(80, 940, day1.Add(time.Hour))
	assert.True(t, exit)
	assert.Equal(t, ReasonDailyLoss, reason)
	assert.False(t, g.EntryAllowed(940, day1.Add(2*time.Hour)))
}

func TestGuardMidnightReset(t *testing.T) {
	g := newGuard(t, Config{DailyLossLimitPct: 5, Timezone: "Asia/Seoul"})

	// 23:30 Seoul on 1 March
	evening := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	assert.True(t, g.EntryAllowed(1000, evening))
	assert.False(t, g.EntryAllowed(900, evening.Add(10*time.Minute)))
	assert.Equal(t, 1000.0, g.Snapshot().DailyStartCapital)

	// 00:10 Seoul on 2 March: new baseline, entries allowed again
	assert.True(t, g.EntryAllowed(900, evening.Add(40*time.Minute)))
	snap := g.Snapshot()
	assert.Equal(t, 900.0, snap.DailyStartCapital)
	assert.False(t, snap.Halted)
}

func TestGuardFlatNeverExits(t *testing.T) {
	g := newGuard(t, Config{HardStopLossPct: 1, DailyLossLimitPct: 1})
	exit, _ := g.ShouldForceExit(1, 1, day1)
	assert.False(t, exit)

	g.Open(100)
	g.Close()
	exit, _ = g.ShouldForceExit(50, 1, day1)
	assert.False(t, exit)
	assert.False(t, g.Snapshot().Open)
}

func TestGuardBadTimezone(t *testing.T) {
	_, err := NewGuard(Config{Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{TrailingStopPct: 1}.Enabled())
}
