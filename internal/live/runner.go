// Package live runs the DCA engine against a real (or paper) exchange, one
// Runner per symbol, with a Controller owning the registry of runners.
package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/feed"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/notifications"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/risk"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/store"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/strategy"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/config"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Journal persists fills, the latest position and any order of unknown
// outcome of a symbol
type Journal interface {
	RecordFill(ctx context.Context, f types.Fill) error
	SavePosition(ctx context.Context, s dca.Snapshot) error
	LoadPosition(ctx context.Context, symbol string) (dca.Snapshot, error)
	SavePending(ctx context.Context, p store.PendingOrder) error
	LoadPending(ctx context.Context, symbol string) (store.PendingOrder, error)
	ClearPending(ctx context.Context, symbol string) error
}

// Deps are the collaborators of a Runner. Client and Feed are required.
type Deps struct {
	Client exchange.Client
	// Market, when set, supplies warmup candles before the feed starts
	Market      exchange.MarketData
	Feed        feed.PriceFeed
	Strategy    strategy.SignalStrategy
	Risk        risk.Config
	Bus         *notifications.Bus
	Journal     Journal
	Reconnector *feed.Reconnector
	Log         *logger.Logger
	// OnDecision observes how long each decision took, order I/O included
	OnDecision func(symbol string, d time.Duration)
}

// trigger is one reason to run the decision path
type trigger struct {
	price float64
	at    time.Time
	entry bool
	exit  bool
}

// Runner drives one symbol. Every position change goes through act, which
// holds mu for the whole decide, place and wait cycle, so at most one order
// is ever outstanding.
type Runner struct {
	cfg    Config
	engine *dca.Engine
	deps   Deps
	guard  *risk.Guard
	log    *logger.Logger
	now    func() time.Time

	state     stateBox
	decisions *rate.Limiter
	observer  *rate.Limiter
	view      atomic.Pointer[dca.Snapshot]
	lastPrice atomic.Uint64

	mu       sync.Mutex
	position dca.PositionState
	cash     float64
	pending  *pendingOrder
	restored bool

	// history is only touched by Start and the candle loop
	history []types.OHLCV

	lifeMu       sync.Mutex
	cancelLoops  context.CancelFunc
	cancelOrders context.CancelFunc
	group        *errgroup.Group
}

// NewRunner validates the strategy config and wires the runner
func NewRunner(cfg Config, dcaCfg config.DcaStrategyConfig, deps Deps) (*Runner, error) {
	if cfg.Symbol == "" {
		return nil, errors.New("live runner: symbol is required")
	}
	if deps.Client == nil || deps.Feed == nil {
		return nil, fmt.Errorf("live runner %s: client and feed are required", cfg.Symbol)
	}
	prepared, err := config.NewDcaValidator().Prepare(dcaCfg)
	if err != nil {
		return nil, fmt.Errorf("live runner %s: %w", cfg.Symbol, err)
	}
	guard, err := risk.NewGuard(deps.Risk)
	if err != nil {
		return nil, fmt.Errorf("live runner %s: %w", cfg.Symbol, err)
	}

	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if deps.Strategy == nil {
		deps.Strategy = strategy.AlwaysStrategy{}
	}
	if deps.Reconnector == nil {
		deps.Reconnector = feed.NewReconnector(feed.DefaultReconnectConfig(), deps.Log)
	}
	if cfg.HistoryLength < deps.Strategy.Lookback() {
		cfg.HistoryLength = deps.Strategy.Lookback()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 30 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 15 * time.Second
	}

	r := &Runner{
		cfg:       cfg,
		engine:    dca.NewEngine(prepared),
		deps:      deps,
		guard:     guard,
		log:       deps.Log.ForSymbol(cfg.Symbol).Named("runner"),
		now:       time.Now,
		decisions: newLimiter(cfg.DecisionRate),
		observer:  newLimiter(cfg.ObserverRate),
		position:  dca.NewPositionState(cfg.Symbol),
		cash:      prepared.TotalCapital,
	}
	r.storeView()
	return r, nil
}

// Symbol is the traded symbol
func (r *Runner) Symbol() string { return r.cfg.Symbol }

// State is the current lifecycle state
func (r *Runner) State() RunnerState { return r.state.load() }

// Snapshot returns the last committed position without blocking on an order
func (r *Runner) Snapshot() dca.Snapshot {
	return *r.view.Load()
}

// LastPrice is the most recent tick price, zero before the first tick
func (r *Runner) LastPrice() float64 {
	return math.Float64frombits(r.lastPrice.Load())
}

// Pending reports whether an order is awaiting reconciliation
func (r *Runner) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}

// Start restores state, warms up history, subscribes and spawns the loops.
// Loops live until Stop or until ctx ends.
func (r *Runner) Start(ctx context.Context) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if !r.state.transition(StateStopped, StateStarting) {
		return fmt.Errorf("runner %s: cannot start while %s", r.cfg.Symbol, r.state.load())
	}
	r.publishState()

	if err := r.start(ctx); err != nil {
		r.state.store(StateStopped)
		r.publishState()
		return err
	}

	r.state.store(StateRunning)
	r.publishState()
	r.log.Info("runner started",
		zap.String("strategy", r.deps.Strategy.Name()),
		zap.String("interval", r.cfg.CandleInterval))
	return nil
}

func (r *Runner) start(ctx context.Context) error {
	if err := r.restore(ctx); err != nil {
		return err
	}
	r.warmup(ctx)

	subs := r.subscriptions()
	for _, sub := range subs {
		if err := r.deps.Feed.Subscribe(sub); err != nil {
			return fmt.Errorf("runner %s: subscribe %s: %w", r.cfg.Symbol, sub.Key(), err)
		}
	}

	loopCtx, cancelLoops := context.WithCancel(ctx)
	orderCtx, cancelOrders := context.WithCancel(context.WithoutCancel(ctx))
	if err := r.deps.Feed.Connect(loopCtx); err != nil {
		cancelLoops()
		cancelOrders()
		return fmt.Errorf("runner %s: connect feed: %w", r.cfg.Symbol, err)
	}

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return r.tickLoop(gctx, orderCtx) })
	g.Go(func() error { return r.candleLoop(gctx, orderCtx) })
	g.Go(func() error { return r.supervise(gctx) })

	r.group = g
	r.cancelLoops = cancelLoops
	r.cancelOrders = cancelOrders
	return nil
}

// restore loads the journaled position and any unreconciled order once per
// runner lifetime
func (r *Runner) restore(ctx context.Context) error {
	if r.deps.Journal == nil || r.restored {
		return nil
	}
	snap, err := r.deps.Journal.LoadPosition(ctx, r.cfg.Symbol)
	switch {
	case errors.Is(err, store.ErrNoPosition):
	case err != nil:
		return fmt.Errorf("runner %s: restore position: %w", r.cfg.Symbol, err)
	default:
		r.mu.Lock()
		r.position = dca.FromSnapshot(snap)
		r.position.Symbol = r.cfg.Symbol
		r.cash = r.engine.Config().TotalCapital - r.position.TotalInvested
		if !r.position.IsFlat() {
			r.guard.Open(r.position.AvgEntryPrice)
		}
		r.mu.Unlock()
		r.storeView()
		r.log.Info("position restored",
			zap.Float64("qty", snap.QuantityHeld),
			zap.Float64("avg_price", snap.AvgEntryPrice),
			zap.Ints("executed_dca", snap.ExecutedDca))
	}

	pending, err := r.deps.Journal.LoadPending(ctx, r.cfg.Symbol)
	switch {
	case errors.Is(err, store.ErrNoPending):
	case err != nil:
		return fmt.Errorf("runner %s: restore pending order: %w", r.cfg.Symbol, err)
	default:
		r.mu.Lock()
		r.pending = pendingFromRecord(pending)
		r.mu.Unlock()
		r.log.Warn("order of unknown outcome restored, will reconcile",
			zap.String("link_id", pending.LinkID),
			zap.String("reason", pending.Action.Reason))
	}

	r.restored = true
	return nil
}

func (r *Runner) warmup(ctx context.Context) {
	if r.deps.Market == nil || len(r.history) > 0 {
		return
	}
	candles, err := r.deps.Market.GetCandles(ctx, r.cfg.Symbol, r.cfg.CandleInterval, r.cfg.HistoryLength)
	if err != nil {
		r.log.Warn("warmup history unavailable, strategy starts cold", logger.ErrorField(err))
		return
	}
	r.history = append(r.history, candles...)
	r.trimHistory()
	r.log.Debug("warmup loaded", zap.Int("candles", len(r.history)))
}

func (r *Runner) subscriptions() []feed.Subscription {
	return []feed.Subscription{
		{Symbol: r.cfg.Symbol, Channel: feed.ChannelTicker},
		{Symbol: r.cfg.Symbol, Channel: feed.ChannelCandle, Interval: r.cfg.CandleInterval},
	}
}

// Stop ends the loops, waits for an in-flight order up to StopTimeout,
// closes the feed and persists the position. Stopping a stopped runner is a no-op.
func (r *Runner) Stop(ctx context.Context) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if !r.state.transition(StateRunning, StateStopping) {
		if r.state.load() == StateStopped {
			return nil
		}
		return fmt.Errorf("runner %s: cannot stop while %s", r.cfg.Symbol, r.state.load())
	}
	r.publishState()

	r.cancelLoops()
	waited := make(chan error, 1)
	go func() { waited <- r.group.Wait() }()

	timer := time.NewTimer(r.cfg.StopTimeout)
	defer timer.Stop()
	var err error
	select {
	case err = <-waited:
	case <-timer.C:
		r.log.Warn("in-flight order did not finish before stop timeout", zap.Duration("timeout", r.cfg.StopTimeout))
		r.cancelOrders()
		err = <-waited
	case <-ctx.Done():
		r.cancelOrders()
		err = <-waited
	}
	r.cancelOrders()

	for _, sub := range r.subscriptions() {
		if uerr := r.deps.Feed.Unsubscribe(sub); uerr != nil {
			r.log.Debug("unsubscribe failed", zap.String("sub", sub.Key()), logger.ErrorField(uerr))
		}
	}
	if cerr := r.deps.Feed.Close(); cerr != nil {
		r.log.Warn("feed close failed", logger.ErrorField(cerr))
	}

	if r.deps.Journal != nil {
		if perr := r.deps.Journal.SavePosition(context.WithoutCancel(ctx), r.Snapshot()); perr != nil {
			r.log.Error("persist position on stop failed", logger.ErrorField(perr))
		}
	}

	r.state.store(StateStopped)
	r.publishState()
	r.log.Info("runner stopped")
	return err
}

func (r *Runner) tickLoop(ctx, orderCtx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-r.deps.Feed.Ticks():
			if t.Symbol != "" && t.Symbol != r.cfg.Symbol {
				continue
			}
			if t.Price <= 0 {
				continue
			}
			if t.Timestamp.IsZero() {
				t.Timestamp = r.now()
			}
			r.observe(t.Price)
			if r.decisions.Allow() {
				r.act(ctx, orderCtx, trigger{price: t.Price, at: t.Timestamp})
			}
		}
	}
}

func (r *Runner) candleLoop(ctx, orderCtx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-r.deps.Feed.Candles():
			if c.Symbol != "" && c.Symbol != r.cfg.Symbol {
				continue
			}
			r.history = append(r.history, c)
			r.trimHistory()

			switch sig := r.deps.Strategy.GenerateSignal(r.history); sig {
			case strategy.SignalEnter:
				r.log.Debug("entry signal", zap.Float64("close", c.Close))
				r.act(ctx, orderCtx, trigger{price: c.Close, at: c.Timestamp, entry: true})
			case strategy.SignalExit:
				if r.cfg.ExitOnSignal {
					r.act(ctx, orderCtx, trigger{price: c.Close, at: c.Timestamp, exit: true})
				}
			}
		}
	}
}

// supervise reconnects the feed whenever it reports a dropped transport
func (r *Runner) supervise(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ferr := <-r.deps.Feed.Errors():
			r.log.Warn("feed disconnected", logger.ErrorField(ferr))
			r.publish(notifications.Event{Type: notifications.EventFeedReconnect, Reason: "disconnected", Message: ferr.Error()})

			_, err := r.deps.Reconnector.Reconnect(ctx, r.deps.Feed, func(a feed.Attempt) {
				if a.Escalated {
					r.publish(notifications.Event{
						Type:    notifications.EventFeedReconnect,
						Reason:  "reconnect-failing",
						Message: fmt.Sprintf("%d consecutive failures: %v", a.Failures, a.Err),
					})
				}
			})
			if err != nil && ctx.Err() != nil {
				return nil
			}
		}
	}
}

func (r *Runner) trimHistory() {
	if over := len(r.history) - r.cfg.HistoryLength; over > 0 {
		r.history = append(r.history[:0], r.history[over:]...)
	}
}

// observe publishes a throttled status event from the last committed view
func (r *Runner) observe(price float64) {
	r.lastPrice.Store(math.Float64bits(price))
	if !r.observer.Allow() {
		return
	}
	snap := r.Snapshot()
	r.publish(notifications.Event{Type: notifications.EventStatus, Price: price, Snapshot: &snap, State: r.state.load().String()})
}

// act is the single writer of the position. loopCtx is checked again once
// mu is held: a loop that queued behind an in-flight order while Stop was
// signalled must not act on its observation.
func (r *Runner) act(loopCtx, ctx context.Context, tr trigger) {
	started := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if loopCtx.Err() != nil {
		r.log.Debug("observation dropped, runner stopping", zap.Float64("price", tr.price))
		return
	}
	if r.deps.OnDecision != nil {
		defer func() { r.deps.OnDecision(r.cfg.Symbol, r.now().Sub(started)) }()
	}

	if r.pending != nil {
		r.reconcileLocked(ctx)
		if r.pending != nil {
			return
		}
	}

	state := r.position
	capital := r.cash + state.QuantityHeld*tr.price

	var action *dca.Action
	next := state
	if !state.IsFlat() {
		if exit, reason := r.guard.ShouldForceExit(tr.price, capital, tr.at); exit {
			action = dca.ExitAll(state, tr.price, dca.RiskReason(string(reason)))
			r.log.Warn("risk guard forcing exit",
				zap.String("reason", string(reason)),
				zap.Float64("price", tr.price),
				zap.Float64("capital", capital))
			r.publish(notifications.Event{Type: notifications.EventRiskExit, Reason: action.Reason, Price: tr.price})
		} else if tr.exit {
			action = dca.ExitAll(state, tr.price, dca.ReasonSignalExit)
		}
	}
	if action == nil {
		entry := tr.entry && state.IsFlat() && r.guard.EntryAllowed(capital, tr.at)
		action, next = r.engine.Decide(state, dca.Observation{Price: tr.price, Timestamp: tr.at, EntrySignal: entry})
	}
	if action == nil {
		return
	}

	r.log.Info("decision", zap.Stringer("action", action))
	r.executeLocked(ctx, action, next)
}

// storeView publishes the committed position to lock-free readers
func (r *Runner) storeView() {
	snap := r.position.Snapshot()
	r.view.Store(&snap)
}

func (r *Runner) publishState() {
	r.publish(notifications.Event{Type: notifications.EventState, State: r.state.load().String()})
}

func (r *Runner) publish(e notifications.Event) {
	if r.deps.Bus == nil {
		return
	}
	e.Symbol = r.cfg.Symbol
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	r.deps.Bus.Publish(e)
}
