// Package feed delivers market ticks and closed candles to the live runners.
package feed

import (
	"context"
	"fmt"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Channel is the kind of stream a subscription asks for
type Channel string

const (
	ChannelTicker Channel = "ticker"
	ChannelCandle Channel = "candle"
)

// Subscription names one stream. Interval only applies to candles.
type Subscription struct {
	Symbol   string
	Channel  Channel
	Interval string
}

// Key uniquely identifies the subscription
func (s Subscription) Key() string {
	if s.Channel == ChannelCandle {
		return fmt.Sprintf("%s:%s:%s", s.Channel, s.Interval, s.Symbol)
	}
	return fmt.Sprintf("%s:%s", s.Channel, s.Symbol)
}

// PriceFeed is a reconnectable market data stream.
//
// Subscribe and Unsubscribe are idempotent and remembered across
// reconnects: Connect (re)establishes the transport and re-issues every
// wanted subscription. A dropped transport is reported once on Errors;
// the owner decides when to call Connect again. Output channels are never
// closed, consumers stop through their own context.
type PriceFeed interface {
	Connect(ctx context.Context) error
	Subscribe(sub Subscription) error
	Unsubscribe(sub Subscription) error
	Ticks() <-chan types.Ticker
	Candles() <-chan types.OHLCV
	Errors() <-chan error
	Close() error
}

const (
	tickBuffer   = 64
	candleBuffer = 64
)

// subscriptions is the wanted set shared by feed implementations
type subscriptions map[string]Subscription

func (s subscriptions) add(sub Subscription) bool {
	if _, ok := s[sub.Key()]; ok {
		return false
	}
	s[sub.Key()] = sub
	return true
}

func (s subscriptions) remove(sub Subscription) bool {
	if _, ok := s[sub.Key()]; !ok {
		return false
	}
	delete(s, sub.Key())
	return true
}

func (s subscriptions) has(channel Channel, symbol string) bool {
	for _, sub := range s {
		if sub.Channel == channel && sub.Symbol == symbol {
			return true
		}
	}
	return false
}

func (s subscriptions) list() []Subscription {
	out := make([]Subscription, 0, len(s))
	for _, sub := range s {
		out = append(out, sub)
	}
	return out
}

// offer sends without blocking and reports whether the value was accepted
func offer[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}
