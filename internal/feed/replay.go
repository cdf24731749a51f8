package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// ErrNotConnected is returned when data is pushed into a disconnected replay feed
var ErrNotConnected = errors.New("feed not connected")

// Replay is an in-process PriceFeed driven by Push calls. It backs tests and
// lets a runner be fed from recorded data.
type Replay struct {
	mu        sync.Mutex
	wanted    subscriptions
	connected bool
	connects  int
	failNext  error

	ticks   chan types.Ticker
	candles chan types.OHLCV
	errs    chan error
}

var _ PriceFeed = (*Replay)(nil)

// NewReplay creates a disconnected replay feed with room for buffer items per stream
func NewReplay(buffer int) *Replay {
	if buffer <= 0 {
		buffer = tickBuffer
	}
	return &Replay{
		wanted:  make(subscriptions),
		ticks:   make(chan types.Ticker, buffer),
		candles: make(chan types.OHLCV, buffer),
		errs:    make(chan error, 1),
	}
}

func (r *Replay) Ticks() <-chan types.Ticker  { return r.ticks }
func (r *Replay) Candles() <-chan types.OHLCV { return r.candles }
func (r *Replay) Errors() <-chan error        { return r.errs }

func (r *Replay) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.connected = true
	return nil
}

func (r *Replay) Subscribe(sub Subscription) error {
	r.mu.Lock()
	r.wanted.add(sub)
	r.mu.Unlock()
	return nil
}

func (r *Replay) Unsubscribe(sub Subscription) error {
	r.mu.Lock()
	r.wanted.remove(sub)
	r.mu.Unlock()
	return nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()
	return nil
}

// PushTick delivers t when its symbol has a ticker subscription
func (r *Replay) PushTick(t types.Ticker) error {
	r.mu.Lock()
	ok, connected := r.wanted.has(ChannelTicker, t.Symbol), r.connected
	r.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if ok {
		r.ticks <- t
	}
	return nil
}

// PushCandle delivers c when its symbol has a candle subscription
func (r *Replay) PushCandle(c types.OHLCV) error {
	r.mu.Lock()
	ok, connected := r.wanted.has(ChannelCandle, c.Symbol), r.connected
	r.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if ok {
		r.candles <- c
	}
	return nil
}

// Disconnect simulates a dropped transport
func (r *Replay) Disconnect(err error) {
	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()
	offer(r.errs, err)
}

// FailNextConnect makes the next Connect call return err
func (r *Replay) FailNextConnect(err error) {
	r.mu.Lock()
	r.failNext = err
	r.mu.Unlock()
}

// Connects reports how many times Connect was called
func (r *Replay) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Connected reports whether the feed is currently connected
func (r *Replay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Subscriptions returns the wanted set
func (r *Replay) Subscriptions() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wanted.list()
}
