package bybit

import (
	"context"
	"errors"
	"testing"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

func ok(result interface{}) *bybit_api.ServerResponse {
	return &bybit_api.ServerResponse{RetCode: 0, RetMsg: "OK", Result: result}
}

func TestClassifyRetCode(t *testing.T) {
	tests := []struct {
		code     int
		category boterrors.ErrorCategory
		sentinel error
	}{
		{ErrCodeRateLimitExceeded, boterrors.ErrorCategoryRateLimit, nil},
		{ErrCodeSystemFrequency, boterrors.ErrorCategoryRateLimit, nil},
		{ErrCodeServerBusy, boterrors.ErrorCategoryTransient, nil},
		{ErrCodeRecvWindow, boterrors.ErrorCategoryTransient, nil},
		{ErrCodeServiceRestarting, boterrors.ErrorCategoryTransient, nil},
		{ErrCodeSpotBackendTimeout, boterrors.ErrorCategoryTransient, nil},
		{ErrCodeInvalidSignature, boterrors.ErrorCategoryCredentials, nil},
		{ErrCodeSpotInsufficientBalance, boterrors.ErrorCategoryBusiness, boterrors.ErrInsufficientBalance},
		{ErrCodeSpotAmountTooSmall, boterrors.ErrorCategoryBusiness, boterrors.ErrBelowMinimum},
		{ErrCodeSpotDuplicateLinkID, boterrors.ErrorCategoryBusiness, boterrors.ErrDuplicateOrder},
		{ErrCodeOrderNotFound, boterrors.ErrorCategoryBusiness, boterrors.ErrOrderNotFound},
		{12345, boterrors.ErrorCategoryBusiness, boterrors.ErrInvalidOrder},
	}
	for _, tt := range tests {
		err := decodeResult("PlaceOrder", &bybit_api.ServerResponse{RetCode: tt.code, RetMsg: "nope"}, &struct{}{})
		require.Error(t, err)
		assert.Equal(t, tt.category, boterrors.CategoryOf(err), "code %d", tt.code)
		if tt.sentinel != nil {
			assert.ErrorIs(t, err, tt.sentinel)
		}
	}
}

func TestDecodeResultRejectsUnknownType(t *testing.T) {
	err := decodeResult("x", "not a response", &struct{}{})
	assert.Equal(t, boterrors.ErrorCategoryTransient, boterrors.CategoryOf(err))
}

func TestTransportError(t *testing.T) {
	assert.Equal(t, boterrors.ErrorCategoryTimeout, boterrors.CategoryOf(transportError("op", context.DeadlineExceeded)))
	assert.Equal(t, boterrors.ErrorCategoryTransient, boterrors.CategoryOf(transportError("op", errors.New("EOF"))))
	assert.NoError(t, transportError("op", nil))
}

func TestParseInstrumentAndFormat(t *testing.T) {
	resp := ok(map[string]interface{}{
		"category": "spot",
		"list": []interface{}{
			map[string]interface{}{
				"symbol": "BTCUSDT", "baseCoin": "BTC", "quoteCoin": "USDT", "status": "Trading",
				"lotSizeFilter": map[string]interface{}{
					"basePrecision": "0.000001", "quotePrecision": "0.00000001",
					"minOrderQty": "0.000048", "maxOrderQty": "71.73956243",
					"minOrderAmt": "1", "maxOrderAmt": "2000000",
				},
			},
		},
	})

	inst, err := parseInstrument(resp, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC", inst.BaseCoin)

	qty, err := inst.FormatQty(0.0012345678)
	require.NoError(t, err)
	assert.Equal(t, "0.001234", qty)

	_, err = inst.FormatQty(0.00001)
	assert.ErrorIs(t, err, boterrors.ErrBelowMinimum)

	amt, err := inst.FormatAmount(250.123456789)
	require.NoError(t, err)
	assert.Equal(t, "250.12345678", amt)

	_, err = inst.FormatAmount(0.5)
	assert.ErrorIs(t, err, boterrors.ErrBelowMinimum)

	_, err = parseInstrument(resp, "ETHUSDT")
	assert.Error(t, err)
}

func TestInstrumentCacheFetchesOnce(t *testing.T) {
	calls := 0
	ic := NewInstrumentCache(func(ctx context.Context, symbol string) (*Instrument, error) {
		calls++
		return &Instrument{Symbol: symbol, BasePrecision: decimal.RequireFromString("0.01")}, nil
	}, time.Minute)

	for i := 0; i < 3; i++ {
		inst, err := ic.Get(context.Background(), "ETHUSDT")
		require.NoError(t, err)
		assert.Equal(t, "ETHUSDT", inst.Symbol)
	}
	assert.Equal(t, 1, calls)

	ic.Invalidate("ETHUSDT")
	_, err := ic.Get(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestToStatus(t *testing.T) {
	buy := apiOrder{
		OrderID: "1", OrderLinkID: "l1", Symbol: "BTCUSDT", Side: "Buy", OrderStatus: "Filled",
		CumExecQty: "0.0025", CumExecValue: "250", CumExecFee: "0.0000025", AvgPrice: "100000",
	}
	st := toStatus(buy, exchange.OrderHandle{LinkID: "l1", Symbol: "BTCUSDT", Side: types.SideBuy})
	assert.Equal(t, exchange.OrderFilled, st.State)
	assert.Equal(t, "1", st.Handle.ID)
	assert.InDelta(t, 0.0024975, st.FilledQty, 1e-12)
	assert.InDelta(t, 0.25, st.Fee, 1e-9)

	sell := apiOrder{OrderID: "2", OrderStatus: "PartiallyFilledCanceled", CumExecQty: "0.001", CumExecValue: "105", CumExecFee: "0.105"}
	st = toStatus(sell, exchange.OrderHandle{ID: "2", Symbol: "BTCUSDT", Side: types.SideSell})
	assert.Equal(t, exchange.OrderCancelled, st.State)
	assert.InDelta(t, 105000.0, st.AvgPrice, 1e-6)
	assert.InDelta(t, 0.105, st.Fee, 1e-12)

	assert.Equal(t, exchange.OrderOpen, mapOrderState("New"))
	assert.Equal(t, exchange.OrderOpen, mapOrderState("PartiallyFilled"))
}

func TestFindOrder(t *testing.T) {
	resp := ok(map[string]interface{}{
		"list": []interface{}{
			map[string]interface{}{"orderId": "a", "orderLinkId": "la"},
			map[string]interface{}{"orderId": "b", "orderLinkId": "lb"},
		},
	})

	o, err := findOrder("GetOpenOrders", resp, exchange.OrderHandle{LinkID: "lb"})
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "b", o.OrderID)

	o, err = findOrder("GetOpenOrders", resp, exchange.OrderHandle{ID: "zzz"})
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestParseBalance(t *testing.T) {
	resp := ok(map[string]interface{}{
		"list": []interface{}{
			map[string]interface{}{
				"accountType": "UNIFIED",
				"coin": []interface{}{
					map[string]interface{}{"coin": "USDT", "walletBalance": "1000.5", "locked": "0.5"},
				},
			},
		},
	})
	bal, err := parseBalance(resp, "USDT")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, bal)

	bal, err = parseBalance(resp, "BTC")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestParseKlinesChronologicalAndClosed(t *testing.T) {
	resp := ok(map[string]interface{}{
		"list": []interface{}{
			[]interface{}{"1704067320000", "103", "104", "102", "103.5", "10", "1035"},
			[]interface{}{"1704067260000", "102", "103", "101", "103", "11", "1133"},
			[]interface{}{"1704067200000", "101", "102", "100", "102", "12", "1224"},
		},
	})
	candles, err := parseKlines(resp, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.True(t, candles[0].Timestamp.Before(candles[2].Timestamp))
	assert.Equal(t, 102.0, candles[0].Close)

	// the last candle starts at :02 and is still forming at :02:30
	now := time.UnixMilli(1704067350000)
	closed := closedOnly(candles, time.Minute, now)
	assert.Len(t, closed, 2)
}

func TestIntervals(t *testing.T) {
	code, err := IntervalCode("1h")
	require.NoError(t, err)
	assert.Equal(t, "60", code)

	d, err := IntervalDuration("1d")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = IntervalCode("7m")
	assert.Error(t, err)
}

func TestCollectRangePagesBackwards(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var all []types.OHLCV
	for i := 0; i < 25; i++ {
		all = append(all, types.OHLCV{Timestamp: start.Add(time.Duration(i) * time.Minute), Close: float64(i)})
	}

	calls := 0
	page := func(end time.Time) ([]types.OHLCV, error) {
		calls++
		var in []types.OHLCV
		for _, c := range all {
			if !c.Timestamp.After(end) {
				in = append(in, c)
			}
		}
		if len(in) > 10 {
			in = in[len(in)-10:]
		}
		return in, nil
	}

	got, err := collectRange(context.Background(), page, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 25)
	assert.Equal(t, 3, calls)
	for i, c := range got {
		assert.Equal(t, float64(i), c.Close)
	}

	_, err = collectRange(context.Background(), func(time.Time) ([]types.OHLCV, error) {
		return nil, errors.New("boom")
	}, start, start.Add(time.Hour))
	require.Error(t, err)
}
