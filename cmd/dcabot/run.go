package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/config"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange/bybit"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange/paper"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/feed"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/live"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/monitoring"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/notifications"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/store"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/strategy"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/reporting"
)

type runFlags struct {
	dryRun      bool
	statusEvery time.Duration
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trade every configured symbol until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			if f.dryRun {
				cfg.DryRun = true
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg, f, log)
		},
	}
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "simulate orders against live prices")
	cmd.Flags().DurationVar(&f.statusEvery, "status-every", 0, "print a status table at this interval (0 disables)")
	return cmd
}

func runBot(ctx context.Context, cfg *config.Config, f *runFlags, log *logger.Logger) error {
	log.Info("starting",
		zap.Strings("symbols", cfg.Symbols),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("strategy", cfg.Strategy.Name),
		zap.String("feed", cfg.Feed.Source))

	bus := notifications.NewBus(log)
	metrics := monitoring.NewMetrics()
	board := monitoring.NewStatusBoard()

	sinks, sinkCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	sink := func(name string, n notifications.Notifier, types ...notifications.EventType) {
		sub := bus.Subscribe(name, 256, types...)
		sinks.Go(func() error {
			notifications.Run(sinkCtx, sub, n, log)
			return nil
		})
	}
	sink("log", notifications.NewLogSink(log),
		notifications.EventFill, notifications.EventRiskExit, notifications.EventOrderFailed,
		notifications.EventOrderUnknown, notifications.EventFeedReconnect, notifications.EventState)
	sink("status", board)
	sink("metrics", metrics)
	if cfg.Telegram.Enabled {
		tg, err := notifications.NewTelegramSink(cfg.Telegram, log)
		if err != nil {
			return err
		}
		sink("telegram", tg, cfg.Telegram.EventTypes()...)
	}

	var journal live.Journal
	if cfg.Store.Enabled {
		j, err := store.Open(cfg.Store.Path, cfg.DryRun)
		if err != nil {
			return err
		}
		defer j.Close()
		journal = j
	}

	market := bybit.NewClient(cfg.Exchange, log)
	retrier := exchange.NewRetrier(cfg.Retry, exchange.NewBuckets(cfg.RateLimits), log)
	retrier.OnRetry(metrics.RecordRetry)

	client := newTradingClient(cfg, market, retrier, log)

	controller := live.NewController(log)
	for _, sym := range cfg.Symbols {
		symLog, closeLog, err := log.WithSymbolFile(cfg.Logging.FileDir, sym)
		if err != nil {
			return err
		}
		defer closeLog()

		strat, err := strategy.New(cfg.Strategy)
		if err != nil {
			return err
		}
		r, err := live.NewRunner(cfg.RunnerConfig(sym), cfg.DCA, live.Deps{
			Client:      client,
			Market:      client,
			Feed:        newFeed(cfg, client, symLog),
			Strategy:    strat,
			Risk:        cfg.Risk,
			Bus:         bus,
			Journal:     journal,
			Reconnector: feed.NewReconnector(cfg.Feed.Reconnect, symLog),
			Log:         symLog,
			OnDecision:  metrics.ObserveDecision,
		})
		if err != nil {
			return err
		}
		if err := controller.Add(r); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HTTP.Enabled {
		srv := monitoring.NewServer(cfg.HTTP, board, metrics, log)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := controller.StartAll(ctx); err != nil {
		bus.Close()
		return fmt.Errorf("start runners: %w", err)
	}

	if f.statusEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(f.statusEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					reporting.WriteStatus(os.Stdout, statuses(controller))
				}
			}
		})
	}

	<-gctx.Done()
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Live.StopTimeout+5*time.Second)
	defer cancel()
	stopErr := controller.StopAll(stopCtx)
	reporting.WriteStatus(os.Stdout, statuses(controller))

	bus.Close()
	_ = sinks.Wait()
	if err := g.Wait(); err != nil {
		return err
	}
	return stopErr
}

func newFeed(cfg *config.Config, market exchange.MarketData, log *logger.Logger) feed.PriceFeed {
	if cfg.Feed.Source == config.FeedPoll {
		return feed.NewPoller(market, cfg.Feed.PollInterval, log)
	}
	return feed.NewBybitStream(cfg.Feed.URL, log)
}

func statuses(c *live.Controller) map[string]reporting.Status {
	out := make(map[string]reporting.Status)
	for _, sym := range c.Symbols() {
		r, ok := c.Runner(sym)
		if !ok {
			continue
		}
		out[sym] = reporting.Status{State: r.State().String(), Price: r.LastPrice(), Position: r.Snapshot()}
	}
	return out
}

// venue is a real exchange account together with its public market data
type venue interface {
	exchange.Client
	exchange.MarketData
}

// newTradingClient puts the venue behind the shared buckets and retrier. In
// dry-run the paper account prices its fills through the same guard.
func newTradingClient(cfg *config.Config, market venue, retrier *exchange.Retrier, log *logger.Logger) *exchange.GuardedClient {
	if !cfg.DryRun {
		return exchange.NewGuardedClient(market, market, retrier)
	}
	prices := exchange.NewGuardedClient(market, market, retrier)
	return exchange.NewGuardedClient(paper.NewClient(cfg.Paper, prices, log), prices, retrier)
}
