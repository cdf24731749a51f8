package backtest

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/risk"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/strategy"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/config"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Config holds simulation parameters
type Config struct {
	Symbol         string  `json:"symbol" mapstructure:"symbol"`
	InitialCapital float64 `json:"initial_capital" mapstructure:"initial_capital" validate:"gt=0"`
	FeeRate        float64 `json:"fee_rate" mapstructure:"fee_rate" validate:"gte=0,lt=1"`
	Slippage       float64 `json:"slippage" mapstructure:"slippage" validate:"gte=0,lt=1"`
	// RiskFreeRate is annual; Sharpe scales it to the candle interval
	RiskFreeRate float64 `json:"risk_free_rate" mapstructure:"risk_free_rate"`
	// Window is how many trailing candles the strategy sees. Zero uses the strategy's lookback.
	Window int `json:"window" mapstructure:"window" validate:"gte=0"`
	// ExitOnSignal closes the position when the strategy signals exit
	ExitOnSignal bool `json:"exit_on_signal" mapstructure:"exit_on_signal"`
}

// DefaultConfig returns 1000 capital, 0.1% fee and 0.05% slippage
func DefaultConfig() Config {
	return Config{InitialCapital: 1000, FeeRate: 0.001, Slippage: 0.0005}
}

// Runner replays candles through the same engine the live runner uses
type Runner struct {
	cfg      Config
	engine   *dca.Engine
	strategy strategy.SignalStrategy
	riskCfg  risk.Config
	log      *logger.Logger
}

// NewRunner validates the strategy config and binds the pieces together
func NewRunner(cfg Config, dcaCfg config.DcaStrategyConfig, strat strategy.SignalStrategy, riskCfg risk.Config, log *logger.Logger) (*Runner, error) {
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %.2f", cfg.InitialCapital)
	}
	prepared, err := config.NewDcaValidator().Prepare(dcaCfg)
	if err != nil {
		return nil, err
	}
	if strat == nil {
		strat = strategy.AlwaysStrategy{}
	}
	if cfg.Window <= 0 {
		cfg.Window = strat.Lookback()
	}
	return &Runner{
		cfg:      cfg,
		engine:   dca.NewEngine(prepared),
		strategy: strat,
		riskCfg:  riskCfg,
		log:      log.Named("backtest"),
	}, nil
}

// simulation is the mutable state of one Run
type simulation struct {
	cash   float64
	state  dca.PositionState
	guard  *risk.Guard
	result *Result
}

func (s *simulation) equity(price float64) float64 {
	return s.cash + s.state.QuantityHeld*price
}

// Run simulates candles in order and returns the ledger, equity curve and
// metrics. Identical inputs always produce an identical Result.
func (r *Runner) Run(candles []types.OHLCV) (*Result, error) {
	guard, err := risk.NewGuard(r.riskCfg)
	if err != nil {
		return nil, err
	}

	symbol := r.cfg.Symbol
	if symbol == "" && len(candles) > 0 {
		symbol = candles[0].Symbol
	}
	sim := &simulation{
		cash:  r.cfg.InitialCapital,
		state: dca.NewPositionState(symbol),
		guard: guard,
		result: &Result{
			Symbol:         symbol,
			Strategy:       r.strategy.Name(),
			InitialCapital: r.cfg.InitialCapital,
			FinalEquity:    r.cfg.InitialCapital,
			Fills:          []types.Fill{},
			Equity:         []types.EquitySample{},
			RoundTrips:     []RoundTrip{},
		},
	}
	if len(candles) == 0 {
		return sim.result, nil
	}

	for i, c := range candles {
		r.step(sim, candles, i)
		sim.result.Equity = append(sim.result.Equity, types.EquitySample{Timestamp: c.Timestamp, Equity: sim.equity(c.Close)})
	}

	last := candles[len(candles)-1]
	if !sim.state.IsFlat() {
		r.execute(sim, dca.ExitAll(sim.state, last.Close, dca.ReasonLiquidation), sim.state, last.Timestamp)
		sim.result.Equity[len(sim.result.Equity)-1].Equity = sim.equity(last.Close)
	}

	sim.result.FinalEquity = sim.equity(last.Close)
	sim.result.RoundTrips = MatchRoundTrips(sim.result.Fills)
	sim.result.Metrics = ComputeMetrics(sim.result, r.cfg.RiskFreeRate)

	r.log.Info("backtest finished",
		zap.String("symbol", symbol),
		zap.Int("candles", len(candles)),
		zap.Int("fills", len(sim.result.Fills)),
		zap.Float64("return_pct", sim.result.Metrics.TotalReturnPct))
	return sim.result, nil
}

func (r *Runner) step(sim *simulation, candles []types.OHLCV, i int) {
	c := candles[i]
	price := c.Close

	if !sim.state.IsFlat() {
		if exit, reason := sim.guard.ShouldForceExit(price, sim.equity(price), c.Timestamp); exit {
			r.execute(sim, dca.ExitAll(sim.state, price, dca.RiskReason(string(reason))), sim.state, c.Timestamp)
			return
		}
	}

	start := i - r.cfg.Window + 1
	if start < 0 {
		start = 0
	}
	signal := r.strategy.GenerateSignal(candles[start : i+1])

	if !sim.state.IsFlat() && r.cfg.ExitOnSignal && signal == strategy.SignalExit {
		r.execute(sim, dca.ExitAll(sim.state, price, dca.ReasonSignalExit), sim.state, c.Timestamp)
		return
	}

	entry := sim.state.IsFlat() && signal == strategy.SignalEnter && sim.guard.EntryAllowed(sim.equity(price), c.Timestamp)
	action, next := r.engine.Decide(sim.state, dca.Observation{Price: price, Timestamp: c.Timestamp, EntrySignal: entry})
	if action != nil {
		r.execute(sim, action, next, c.Timestamp)
	}
}

// execute simulates the fill for action and commits next on success.
// A buy the cash cannot cover is skipped and the state left untouched.
func (r *Runner) execute(sim *simulation, action *dca.Action, next dca.PositionState, ts time.Time) {
	fill := types.Fill{Symbol: sim.state.Symbol, Timestamp: ts, Reason: action.Reason}

	if action.Type.IsBuy() {
		fill.Side = types.SideBuy
		fill.Price = action.Price * (1 + r.cfg.Slippage)
		fill.Quantity = action.Amount / fill.Price
		fill.Fee = fill.Value() * r.cfg.FeeRate
		if cost := fill.Value() + fill.Fee; cost > sim.cash+1e-9 {
			r.log.Debug("buy skipped, not enough cash",
				zap.String("reason", action.Reason),
				zap.Float64("cost", cost),
				zap.Float64("cash", sim.cash))
			return
		}
		sim.cash -= fill.Value() + fill.Fee
	} else {
		fill.Side = types.SideSell
		fill.Price = action.Price * (1 - r.cfg.Slippage)
		fill.Quantity = action.Quantity
		fill.Fee = fill.Value() * r.cfg.FeeRate
		sim.cash += fill.Value() - fill.Fee
	}

	fill.OrderID = fmt.Sprintf("bt-%d", len(sim.result.Fills)+1)
	sim.result.Fills = append(sim.result.Fills, fill)
	sim.state = r.engine.ApplyFill(next, fill)

	switch {
	case action.Type == dca.ActionEnter:
		sim.guard.Open(fill.Price)
	case sim.state.IsFlat():
		sim.guard.Close()
	}
}
