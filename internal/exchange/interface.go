package exchange

import (
	"context"
	"time"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Client is the order and account surface used by the live controller.
// Buys are sized by quote notional, sells by base quantity. LinkID is a
// caller generated id that lets an order of unknown outcome be looked up.
type Client interface {
	GetBalance(ctx context.Context, currency string) (float64, error)
	PlaceMarketBuy(ctx context.Context, symbol string, amount float64, linkID string) (*OrderHandle, error)
	PlaceMarketSell(ctx context.Context, symbol string, qty float64, linkID string) (*OrderHandle, error)
	GetOrderStatus(ctx context.Context, handle OrderHandle) (*OrderStatus, error)
	CancelOrder(ctx context.Context, handle OrderHandle) error
}

// MarketData is the public REST surface used for warmup history and polling feeds
type MarketData interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// OrderHandle identifies a placed order. ID may be empty when placement
// outcome is unknown; the order is then found by LinkID.
type OrderHandle struct {
	ID     string     `json:"id"`
	LinkID string     `json:"link_id"`
	Symbol string     `json:"symbol"`
	Side   types.Side `json:"side"`
}

// OrderState is the coarse lifecycle of an order
type OrderState string

const (
	OrderOpen      OrderState = "open"
	OrderFilled    OrderState = "filled"
	OrderCancelled OrderState = "cancelled"
)

// Terminal reports whether no further fills can happen
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled
}

// OrderStatus is the latest known state of an order and what has executed so far
type OrderStatus struct {
	Handle      OrderHandle
	State       OrderState
	FilledQty   float64
	FilledValue float64
	AvgPrice    float64
	// Fee is expressed in quote currency
	Fee       float64
	UpdatedAt time.Time
}

// Fill converts executed quantity into a single aggregated fill
func (s OrderStatus) Fill(reason string) (types.Fill, bool) {
	if s.FilledQty <= 0 {
		return types.Fill{}, false
	}
	price := s.AvgPrice
	if price == 0 && s.FilledQty > 0 {
		price = s.FilledValue / s.FilledQty
	}
	return types.Fill{
		Symbol:    s.Handle.Symbol,
		Side:      s.Handle.Side,
		Price:     price,
		Quantity:  s.FilledQty,
		Fee:       s.Fee,
		Timestamp: s.UpdatedAt,
		Reason:    reason,
		OrderID:   s.Handle.ID,
	}, true
}
