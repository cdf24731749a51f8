package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

func newPaper(t *testing.T) (*Client, *StaticPrices) {
	t.Helper()
	prices := NewStaticPrices()
	prices.Set("BTCUSDT", 100000)
	c := NewClient(Config{QuoteCurrency: "USDT", InitialQuote: 1000, FeeRate: 0.001, Slippage: 0.0005}, prices, logger.NewNop())
	return c, prices
}

// TestPaperRoundTrip tests a buy then sell against simulated balances
func TestPaperRoundTrip(t *testing.T) {
	c, prices := newPaper(t)
	ctx := context.Background()

	h, err := c.PlaceMarketBuy(ctx, "BTCUSDT", 500, "l1")
	require.NoError(t, err)
	assert.Equal(t, types.SideBuy, h.Side)

	st, err := c.GetOrderStatus(ctx, *h)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderFilled, st.State)
	assert.InDelta(t, 100050.0, st.AvgPrice, 1e-9)
	assert.InDelta(t, 500/100050.0, st.FilledQty, 1e-12)
	assert.InDelta(t, 0.5, st.Fee, 1e-12)

	quote, _ := c.GetBalance(ctx, "USDT")
	assert.InDelta(t, 499.5, quote, 1e-9)
	btc, _ := c.GetBalance(ctx, "BTC")
	assert.InDelta(t, st.FilledQty, btc, 1e-12)

	prices.Set("BTCUSDT", 110000)
	_, err = c.PlaceMarketSell(ctx, "BTCUSDT", btc, "l2")
	require.NoError(t, err)

	btc, _ = c.GetBalance(ctx, "BTC")
	assert.Zero(t, btc)
	quote, _ = c.GetBalance(ctx, "USDT")
	assert.Greater(t, quote, 1000.0)
}

func TestPaperRejections(t *testing.T) {
	c, _ := newPaper(t)
	ctx := context.Background()

	_, err := c.PlaceMarketBuy(ctx, "BTCUSDT", 5000, "big")
	assert.ErrorIs(t, err, boterrors.ErrInsufficientBalance)

	_, err = c.PlaceMarketSell(ctx, "BTCUSDT", 1, "nothing")
	assert.ErrorIs(t, err, boterrors.ErrInsufficientBalance)

	_, err = c.PlaceMarketBuy(ctx, "BTCUSDT", 100, "dup")
	require.NoError(t, err)
	_, err = c.PlaceMarketBuy(ctx, "BTCUSDT", 100, "dup")
	assert.ErrorIs(t, err, boterrors.ErrDuplicateOrder)

	_, err = c.PlaceMarketBuy(ctx, "ETHUSDT", 100, "noprice")
	assert.Error(t, err)
}

func TestPaperLookupByLinkID(t *testing.T) {
	c, _ := newPaper(t)
	ctx := context.Background()

	_, err := c.PlaceMarketBuy(ctx, "BTCUSDT", 100, "link-9")
	require.NoError(t, err)

	st, err := c.GetOrderStatus(ctx, exchange.OrderHandle{LinkID: "link-9", Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Equal(t, "link-9", st.Handle.LinkID)

	_, err = c.GetOrderStatus(ctx, exchange.OrderHandle{LinkID: "missing"})
	assert.ErrorIs(t, err, boterrors.ErrOrderNotFound)
	assert.ErrorIs(t, c.CancelOrder(ctx, st.Handle), boterrors.ErrOrderNotFound)
}
