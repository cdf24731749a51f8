package dca

import (
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/config"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Engine evaluates the staged DCA plan. It holds no position state and does no I/O,
// so the backtest and the live runner share the exact same decisions.
type Engine struct {
	cfg         config.DcaStrategyConfig
	levels      []config.DcaLevel // ascending DropPct
	takeProfits []config.ExitLevel
	stopLosses  []config.ExitLevel
}

// NewEngine binds an engine to an already validated strategy config
func NewEngine(cfg config.DcaStrategyConfig) *Engine {
	cfg = cfg.Normalize()
	return &Engine{
		cfg:         cfg,
		levels:      cfg.LevelsByDrop(),
		takeProfits: cfg.EffectiveTakeProfits(),
		stopLosses:  cfg.EffectiveStopLosses(),
	}
}

// Config returns the normalized strategy config
func (e *Engine) Config() config.DcaStrategyConfig {
	return e.cfg
}

// Decide returns at most one action for obs and the state to commit once that
// action has been filled. The input state is never modified.
func (e *Engine) Decide(state PositionState, obs Observation) (*Action, PositionState) {
	next := state.Clone()
	price := obs.Price
	if price <= 0 {
		return nil, next
	}

	if state.IsFlat() {
		if !obs.EntrySignal || !e.cfg.Enabled || len(e.levels) == 0 {
			return nil, next
		}
		first := e.levels[0]
		next.ReferencePrice = price
		next.ExecutedDca = next.ExecutedDca.with(first.Level)
		return &Action{
			Type:     ActionEnter,
			Level:    first.Level,
			Reason:   ReasonEntry,
			Price:    price,
			Amount:   first.OrderAmount,
			Quantity: first.OrderAmount / price,
		}, next
	}

	for _, tp := range e.takeProfits {
		if state.ExecutedTp.Has(tp.Level) {
			continue
		}
		if price >= state.AvgEntryPrice*(1+tp.ThresholdPct/100) {
			next.ExecutedTp = next.ExecutedTp.with(tp.Level)
			return e.exitAction(state, price, tp, tpReason(tp.Level)), next
		}
	}

	for _, sl := range e.stopLosses {
		if state.ExecutedSl.Has(sl.Level) {
			continue
		}
		if price <= state.AvgEntryPrice*(1-sl.ThresholdPct/100) {
			next.ExecutedSl = next.ExecutedSl.with(sl.Level)
			return e.exitAction(state, price, sl, slReason(sl.Level)), next
		}
	}

	if !e.cfg.Enabled {
		return nil, next
	}
	for _, lvl := range e.levels[1:] {
		if state.ExecutedDca.Has(lvl.Level) {
			continue
		}
		if price <= state.ReferencePrice*(1-lvl.DropPct/100) {
			next.ExecutedDca = next.ExecutedDca.with(lvl.Level)
			return &Action{
				Type:     ActionAdd,
				Level:    lvl.Level,
				Reason:   dcaReason(lvl.Level),
				Price:    price,
				Amount:   lvl.OrderAmount,
				Quantity: lvl.OrderAmount / price,
			}, next
		}
	}

	return nil, next
}

func (e *Engine) exitAction(state PositionState, price float64, lvl config.ExitLevel, reason string) *Action {
	typ := ActionPartialExit
	qty := state.QuantityHeld * lvl.SellRatioPct / 100
	if lvl.SellRatioPct >= 100 {
		typ = ActionFullExit
		qty = state.QuantityHeld
	}
	return &Action{
		Type:     typ,
		Level:    lvl.Level,
		Reason:   reason,
		Price:    price,
		Quantity: qty,
		RatioPct: lvl.SellRatioPct,
	}
}

// ExitAll builds a full liquidation that bypasses level bookkeeping
// (risk guard exits, strategy exits, end-of-backtest liquidation).
func ExitAll(state PositionState, price float64, reason string) *Action {
	return &Action{
		Type:     ActionFullExit,
		Reason:   reason,
		Price:    price,
		Quantity: state.QuantityHeld,
		RatioPct: 100,
	}
}

// ApplyFill folds an executed fill into state and returns the result.
// Buys recompute the volume weighted average; sells release cost at the
// current average. A remainder below the dust epsilon closes the position.
func (e *Engine) ApplyFill(state PositionState, fill types.Fill) PositionState {
	return ApplyFill(state, fill, e.cfg.DustEpsilon)
}

// ApplyFill is the engine-free form of Engine.ApplyFill
func ApplyFill(state PositionState, fill types.Fill, dustEpsilon float64) PositionState {
	next := state.Clone()
	if fill.Quantity <= 0 {
		return next
	}

	switch fill.Side {
	case types.SideBuy:
		next.TotalInvested += fill.Value()
		next.QuantityHeld += fill.Quantity
		next.AvgEntryPrice = next.TotalInvested / next.QuantityHeld
		if next.ReferencePrice == 0 {
			next.ReferencePrice = fill.Price
		}
	case types.SideSell:
		sold := fill.Quantity
		if sold > next.QuantityHeld {
			sold = next.QuantityHeld
		}
		next.TotalInvested -= next.AvgEntryPrice * sold
		next.QuantityHeld -= sold
		if next.QuantityHeld < dustEpsilon || next.QuantityHeld <= 0 {
			return next.reset()
		}
	}
	return next
}
