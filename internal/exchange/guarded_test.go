package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetBalance(ctx context.Context, currency string) (float64, error) {
	args := m.Called(ctx, currency)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockClient) PlaceMarketBuy(ctx context.Context, symbol string, amount float64, linkID string) (*OrderHandle, error) {
	args := m.Called(ctx, symbol, amount, linkID)
	h, _ := args.Get(0).(*OrderHandle)
	return h, args.Error(1)
}

func (m *mockClient) PlaceMarketSell(ctx context.Context, symbol string, qty float64, linkID string) (*OrderHandle, error) {
	args := m.Called(ctx, symbol, qty, linkID)
	h, _ := args.Get(0).(*OrderHandle)
	return h, args.Error(1)
}

func (m *mockClient) GetOrderStatus(ctx context.Context, handle OrderHandle) (*OrderStatus, error) {
	args := m.Called(ctx, handle)
	s, _ := args.Get(0).(*OrderStatus)
	return s, args.Error(1)
}

func (m *mockClient) CancelOrder(ctx context.Context, handle OrderHandle) error {
	return m.Called(ctx, handle).Error(0)
}

// TestGuardedClientRetriesWithSameLinkID tests that a retried buy reuses the client id
func TestGuardedClientRetriesWithSameLinkID(t *testing.T) {
	inner := &mockClient{}
	r, _ := newTestRetrier(t)
	g := NewGuardedClient(inner, nil, r)

	handle := &OrderHandle{ID: "1", LinkID: "link-1", Symbol: "BTCUSDT", Side: types.SideBuy}
	inner.On("PlaceMarketBuy", mock.Anything, "BTCUSDT", 100.0, "link-1").
		Return(nil, errors.New("connection reset")).Once()
	inner.On("PlaceMarketBuy", mock.Anything, "BTCUSDT", 100.0, "link-1").
		Return(handle, nil).Once()

	got, err := g.PlaceMarketBuy(context.Background(), "BTCUSDT", 100, "link-1")
	require.NoError(t, err)
	assert.Equal(t, handle, got)
	inner.AssertExpectations(t)
}

func TestGuardedClientPassesThrough(t *testing.T) {
	inner := &mockClient{}
	r, _ := newTestRetrier(t)
	g := NewGuardedClient(inner, nil, r)

	h := OrderHandle{ID: "9", Symbol: "ETHUSDT", Side: types.SideSell}
	inner.On("GetBalance", mock.Anything, "USDT").Return(250.0, nil)
	inner.On("GetOrderStatus", mock.Anything, h).Return(&OrderStatus{Handle: h, State: OrderFilled}, nil)
	inner.On("CancelOrder", mock.Anything, h).Return(nil)

	bal, err := g.GetBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, 250.0, bal)

	st, err := g.GetOrderStatus(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, st.State.Terminal())

	assert.NoError(t, g.CancelOrder(context.Background(), h))
	inner.AssertExpectations(t)
}

func TestOrderStatusFill(t *testing.T) {
	st := OrderStatus{
		Handle:      OrderHandle{ID: "7", Symbol: "BTCUSDT", Side: types.SideBuy},
		State:       OrderFilled,
		FilledQty:   0.002,
		FilledValue: 200,
		Fee:         0.2,
	}
	f, ok := st.Fill("dca-L2")
	require.True(t, ok)
	assert.Equal(t, 100000.0, f.Price)
	assert.Equal(t, "dca-L2", f.Reason)
	assert.Equal(t, "7", f.OrderID)

	_, ok = OrderStatus{}.Fill("x")
	assert.False(t, ok)
}
