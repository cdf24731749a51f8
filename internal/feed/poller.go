package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Poller is a PriceFeed that polls the REST market data surface. It is the
// fallback when the websocket stream is unavailable.
type Poller struct {
	market   exchange.MarketData
	interval time.Duration
	log      *logger.Logger

	mu         sync.Mutex
	wanted     subscriptions
	lastCandle map[string]time.Time
	cancel     context.CancelFunc

	ticks   chan types.Ticker
	candles chan types.OHLCV
	errs    chan error
}

var _ PriceFeed = (*Poller)(nil)

// NewPoller creates a poller that queries market every interval
func NewPoller(market exchange.MarketData, interval time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		market:     market,
		interval:   interval,
		log:        log.Named("poller"),
		wanted:     make(subscriptions),
		lastCandle: make(map[string]time.Time),
		ticks:      make(chan types.Ticker, tickBuffer),
		candles:    make(chan types.OHLCV, candleBuffer),
		errs:       make(chan error, 1),
	}
}

func (p *Poller) Ticks() <-chan types.Ticker  { return p.ticks }
func (p *Poller) Candles() <-chan types.OHLCV { return p.candles }
func (p *Poller) Errors() <-chan error        { return p.errs }

// Connect starts polling. The loop ends on the first failed request, which is
// reported on Errors.
func (p *Poller) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.loop(loopCtx)
	return nil
}

func (p *Poller) Subscribe(sub Subscription) error {
	p.mu.Lock()
	p.wanted.add(sub)
	p.mu.Unlock()
	return nil
}

func (p *Poller) Unsubscribe(sub Subscription) error {
	p.mu.Lock()
	p.wanted.remove(sub)
	p.mu.Unlock()
	return nil
}

func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.poll(ctx); err != nil {
			if ctx.Err() == nil {
				offer(p.errs, error(boterrors.WrapError(err, boterrors.ErrorCategoryDisconnected, "feed", "poll")))
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	p.mu.Lock()
	subs := p.wanted.list()
	p.mu.Unlock()

	for _, sub := range subs {
		switch sub.Channel {
		case ChannelTicker:
			price, err := p.market.GetLastPrice(ctx, sub.Symbol)
			if err != nil {
				return err
			}
			offer(p.ticks, types.Ticker{Symbol: sub.Symbol, Price: price, Timestamp: time.Now().UTC()})

		case ChannelCandle:
			candles, err := p.market.GetCandles(ctx, sub.Symbol, sub.Interval, 2)
			if err != nil {
				return err
			}
			for _, c := range p.freshCandles(sub.Key(), candles) {
				if !offer(p.candles, c) {
					p.log.Warn("candle dropped, consumer behind", zap.String("symbol", c.Symbol))
				}
			}
		}
	}
	return nil
}

// freshCandles returns the closed candles newer than the last one emitted for key.
// The first poll only records a watermark.
func (p *Poller) freshCandles(key string, candles []types.OHLCV) []types.OHLCV {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, seen := p.lastCandle[key]
	var out []types.OHLCV
	for _, c := range candles {
		if c.Timestamp.After(last) {
			if seen {
				out = append(out, c)
			}
			last = c.Timestamp
		}
	}
	p.lastCandle[key] = last
	return out
}
