package exchange

import (
	"context"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// GuardedClient puts every call of an inner Client and MarketData through the
// shared rate limit buckets and the retry policy.
type GuardedClient struct {
	inner   Client
	market  MarketData
	retrier *Retrier
}

var (
	_ Client     = (*GuardedClient)(nil)
	_ MarketData = (*GuardedClient)(nil)
)

// NewGuardedClient wraps inner. market may be nil when only trading is needed.
func NewGuardedClient(inner Client, market MarketData, retrier *Retrier) *GuardedClient {
	return &GuardedClient{inner: inner, market: market, retrier: retrier}
}

func (g *GuardedClient) GetBalance(ctx context.Context, currency string) (float64, error) {
	var out float64
	err := g.retrier.Do(ctx, CategoryAccount, "GetBalance", func(ctx context.Context) error {
		var err error
		out, err = g.inner.GetBalance(ctx, currency)
		return err
	})
	return out, err
}

// PlaceMarketBuy retries with the same linkID, so a request that reached the
// exchange before a timeout is rejected as a duplicate instead of doubling.
func (g *GuardedClient) PlaceMarketBuy(ctx context.Context, symbol string, amount float64, linkID string) (*OrderHandle, error) {
	var out *OrderHandle
	err := g.retrier.Do(ctx, CategoryOrder, "PlaceMarketBuy", func(ctx context.Context) error {
		var err error
		out, err = g.inner.PlaceMarketBuy(ctx, symbol, amount, linkID)
		return err
	})
	return out, err
}

func (g *GuardedClient) PlaceMarketSell(ctx context.Context, symbol string, qty float64, linkID string) (*OrderHandle, error) {
	var out *OrderHandle
	err := g.retrier.Do(ctx, CategoryOrder, "PlaceMarketSell", func(ctx context.Context) error {
		var err error
		out, err = g.inner.PlaceMarketSell(ctx, symbol, qty, linkID)
		return err
	})
	return out, err
}

func (g *GuardedClient) GetOrderStatus(ctx context.Context, handle OrderHandle) (*OrderStatus, error) {
	var out *OrderStatus
	err := g.retrier.Do(ctx, CategoryAccount, "GetOrderStatus", func(ctx context.Context) error {
		var err error
		out, err = g.inner.GetOrderStatus(ctx, handle)
		return err
	})
	return out, err
}

func (g *GuardedClient) CancelOrder(ctx context.Context, handle OrderHandle) error {
	return g.retrier.Do(ctx, CategoryOrder, "CancelOrder", func(ctx context.Context) error {
		return g.inner.CancelOrder(ctx, handle)
	})
}

func (g *GuardedClient) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	var out []types.OHLCV
	err := g.retrier.Do(ctx, CategoryMarket, "GetCandles", func(ctx context.Context) error {
		var err error
		out, err = g.market.GetCandles(ctx, symbol, interval, limit)
		return err
	})
	return out, err
}

func (g *GuardedClient) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	var out float64
	err := g.retrier.Do(ctx, CategoryMarket, "GetLastPrice", func(ctx context.Context) error {
		var err error
		out, err = g.market.GetLastPrice(ctx, symbol)
		return err
	})
	return out, err
}
