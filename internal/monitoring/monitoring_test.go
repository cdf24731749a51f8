package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/notifications"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func feed(t *testing.T, n notifications.Notifier, events ...notifications.Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, n.Notify(context.Background(), e))
	}
}

func sampleEvents() []notifications.Event {
	snap := dca.Snapshot{Symbol: "BTCUSDT", AvgEntryPrice: 100, TotalInvested: 500, QuantityHeld: 5}
	fill := types.Fill{Symbol: "BTCUSDT", Side: types.SideBuy, Price: 100, Quantity: 5, Fee: 0.5}
	return []notifications.Event{
		{Type: notifications.EventState, Symbol: "BTCUSDT", State: "RUNNING", Time: now},
		{Type: notifications.EventFill, Symbol: "BTCUSDT", Reason: "entry", Fill: &fill, Snapshot: &snap, Price: 100, Time: now},
		{Type: notifications.EventFeedReconnect, Symbol: "BTCUSDT", Time: now},
		{Type: notifications.EventOrderUnknown, Symbol: "BTCUSDT", Reason: "dca-L2", Message: "timeout", Time: now},
		{Type: notifications.EventStatus, Symbol: "BTCUSDT", Price: 110, Snapshot: &snap, Time: now.Add(time.Second)},
	}
}

func TestMetricsFromEvents(t *testing.T) {
	m := NewMetrics()
	feed(t, m, sampleEvents()...)
	m.RecordRetry("PlaceMarketBuy", boterrors.ErrorCategoryTransient)
	m.ObserveDecision("BTCUSDT", 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradesTotal.WithLabelValues("BTCUSDT", "buy")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.feesTotal.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnectsTotal.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orderErrorsTotal.WithLabelValues("BTCUSDT", "order-unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retriesTotal.WithLabelValues("PlaceMarketBuy", "TRANSIENT")))
	assert.Equal(t, 110.0, testutil.ToFloat64(m.currentPrice.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.positionQty.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runnerState.WithLabelValues("BTCUSDT", "RUNNING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runnerState.WithLabelValues("BTCUSDT", "STOPPED")))
}

func TestStatusBoard(t *testing.T) {
	b := NewStatusBoard()
	feed(t, b, sampleEvents()...)
	feed(t, b, notifications.Event{Type: notifications.EventStatus, Time: now})

	st, ok := b.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "RUNNING", st.State)
	assert.Equal(t, 110.0, st.Price)
	assert.Equal(t, 1, st.Reconnects)
	assert.Equal(t, "dca-L2: timeout", st.LastAlert)
	require.NotNil(t, st.LastFill)
	assert.Equal(t, "entry", st.LastFill.Reason)
	assert.InDelta(t, 50.0, st.UnrealizedPnL(), 1e-9)
	assert.Len(t, b.All(), 1)

	_, ok = b.Get("ETHUSDT")
	assert.False(t, ok)
}

func TestHealth(t *testing.T) {
	b := NewStatusBoard()
	assert.Equal(t, "degraded", Health(b, 0, now).Status)

	feed(t, b, sampleEvents()...)
	assert.Equal(t, "healthy", Health(b, time.Minute, now.Add(30*time.Second)).Status)

	stale := Health(b, time.Minute, now.Add(time.Hour))
	assert.Equal(t, "degraded", stale.Status)
	assert.Equal(t, []string{"BTCUSDT"}, stale.Stale)

	feed(t, b, notifications.Event{Type: notifications.EventState, Symbol: "ETHUSDT", State: "STOPPING", Time: now})
	h := Health(b, 0, now)
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "STOPPING", h.Runners["ETHUSDT"])
}

func TestServerRoutes(t *testing.T) {
	b := NewStatusBoard()
	m := NewMetrics()
	feed(t, b, sampleEvents()...)
	feed(t, m, sampleEvents()...)
	srv := NewServer(ServerConfig{}, b, m, logger.NewNop())

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/status/BTCUSDT")
	require.Equal(t, http.StatusOK, rec.Code)
	var st SymbolStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 5.0, st.Position.QuantityHeld)

	assert.Equal(t, http.StatusNotFound, get("/status/DOGEUSDT").Code)

	rec = get("/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BTCUSDT")

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dca_bot_trades_total{side="buy",symbol="BTCUSDT"} 1`)
}
