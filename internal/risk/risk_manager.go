package risk

import (
	"fmt"
	"sync"
	"time"
)

// Guard enforces limits that sit above the DCA ladder: a hard stop and a
// profit target measured from the entry price, a trailing stop from the
// running peak, and a daily loss limit on total capital. Rules are checked
// in that priority order, daily loss first.
type Guard struct {
	cfg Config
	loc *time.Location

	mu        sync.Mutex
	open      bool
	entry     float64
	peak      float64
	dayStart  time.Time
	startCap  float64
	haltedDay bool
}

var _ Checker = (*Guard)(nil)

// NewGuard creates a guard. It fails when the timezone cannot be loaded.
func NewGuard(cfg Config) (*Guard, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("risk timezone: %w", err)
		}
		loc = l
	}
	return &Guard{cfg: cfg, loc: loc}, nil
}

// Open starts tracking a position entered at price
func (g *Guard) Open(price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
	g.entry = price
	g.peak = price
}

// Close stops tracking the position
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
	g.entry = 0
	g.peak = 0
}

// ShouldForceExit updates the peak and daily baseline, then evaluates the rules
func (g *Guard) ShouldForceExit(price, capital float64, now time.Time) (bool, Reason) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay(capital, now)
	if !g.open {
		return false, ReasonNone
	}
	if price > g.peak {
		g.peak = price
	}

	if g.dailyLossBreached(capital) {
		g.haltedDay = true
		return true, ReasonDailyLoss
	}
	if g.cfg.HardStopLossPct > 0 && price <= g.entry*(1-g.cfg.HardStopLossPct/100) {
		return true, ReasonHardStop
	}
	if g.cfg.TakeProfitPct > 0 && price >= g.entry*(1+g.cfg.TakeProfitPct/100) {
		return true, ReasonTakeProfit
	}
	if g.cfg.TrailingStopPct > 0 && g.peak > g.entry && price <= g.peak*(1-g.cfg.TrailingStopPct/100) {
		return true, ReasonTrailing
	}
	return false, ReasonNone
}

// EntryAllowed is false for the rest of the day once the daily loss limit was hit
func (g *Guard) EntryAllowed(capital float64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay(capital, now)
	if g.dailyLossBreached(capital) {
		g.haltedDay = true
	}
	return !g.haltedDay
}

// Snapshot returns a copy of the tracking state
func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		Open:              g.open,
		EntryPrice:        g.entry,
		PeakPrice:         g.peak,
		DailyStartCapital: g.startCap,
		Day:               g.dayStart,
		Halted:            g.haltedDay,
	}
}

// rollDay re-anchors the daily baseline when now crosses local midnight
func (g *Guard) rollDay(capital float64, now time.Time) {
	local := now.In(g.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc)
	if day.Equal(g.dayStart) {
		return
	}
	g.dayStart = day
	g.startCap = capital
	g.haltedDay = false
}

func (g *Guard) dailyLossBreached(capital float64) bool {
	if g.cfg.DailyLossLimitPct <= 0 || g.startCap <= 0 {
		return false
	}
	return capital <= g.startCap*(1-g.cfg.DailyLossLimitPct/100)
}
