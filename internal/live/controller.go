package live

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

// Controller is the per-symbol registry of runners. Runners share nothing
// but the process-wide exchange client and event bus.
type Controller struct {
	log *logger.Logger

	mu      sync.RWMutex
	runners map[string]*Runner
}

// NewController creates an empty registry
func NewController(log *logger.Logger) *Controller {
	return &Controller{log: log.Named("controller"), runners: make(map[string]*Runner)}
}

// Add registers a runner; one runner per symbol
func (c *Controller) Add(r *Runner) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.runners[r.Symbol()]; ok {
		return fmt.Errorf("runner for %s already registered", r.Symbol())
	}
	c.runners[r.Symbol()] = r
	return nil
}

// Runner returns the runner for symbol
func (c *Controller) Runner(symbol string) (*Runner, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.runners[symbol]
	return r, ok
}

// Symbols lists registered symbols in order
func (c *Controller) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.runners))
	for s := range c.runners {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Start starts one symbol
func (c *Controller) Start(ctx context.Context, symbol string) error {
	r, ok := c.Runner(symbol)
	if !ok {
		return fmt.Errorf("no runner for %s", symbol)
	}
	return r.Start(ctx)
}

// Stop stops one symbol
func (c *Controller) Stop(ctx context.Context, symbol string) error {
	r, ok := c.Runner(symbol)
	if !ok {
		return fmt.Errorf("no runner for %s", symbol)
	}
	return r.Stop(ctx)
}

// StartAll starts every runner. When one fails the ones already started are
// stopped again and the first error is returned.
func (c *Controller) StartAll(ctx context.Context) error {
	var started []string
	for _, sym := range c.Symbols() {
		if err := c.Start(ctx, sym); err != nil {
			c.log.Error("start failed, rolling back", zap.String("symbol", sym), logger.ErrorField(err))
			for _, s := range started {
				_ = c.Stop(context.WithoutCancel(ctx), s)
			}
			return err
		}
		started = append(started, sym)
	}
	c.log.Info("all runners started", zap.Strings("symbols", started))
	return nil
}

// StopAll stops every runner concurrently and waits for all of them
func (c *Controller) StopAll(ctx context.Context) error {
	var g errgroup.Group
	for _, sym := range c.Symbols() {
		sym := sym
		g.Go(func() error {
			return c.Stop(ctx, sym)
		})
	}
	err := g.Wait()
	c.log.Info("all runners stopped")
	return err
}

// States maps each symbol to its lifecycle state
func (c *Controller) States() map[string]RunnerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]RunnerState, len(c.runners))
	for s, r := range c.runners {
		out[s] = r.State()
	}
	return out
}

// Snapshots returns each symbol's committed position
func (c *Controller) Snapshots() map[string]dca.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]dca.Snapshot, len(c.runners))
	for s, r := range c.runners {
		out[s] = r.Snapshot()
	}
	return out
}
