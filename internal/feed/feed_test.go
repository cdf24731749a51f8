package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

const tickerMsg = `{"topic":"tickers.BTCUSDT","ts":1704067200000,"type":"snapshot","data":{"symbol":"BTCUSDT","lastPrice":"42000.5","volume24h":"1234.5"}}`

const klineMsg = `{"topic":"kline.5.BTCUSDT","ts":1704067500000,"type":"snapshot","data":[
	{"start":1704066900000,"end":1704067199999,"interval":"5","open":"41900","close":"42000","high":"42100","low":"41850","volume":"12.5","confirm":true},
	{"start":1704067200000,"end":1704067499999,"interval":"5","open":"42000","close":"42010","high":"42020","low":"41990","volume":"1.1","confirm":false}]}`

func TestParseMessage(t *testing.T) {
	tick, candles, err := parseMessage([]byte(tickerMsg))
	require.NoError(t, err)
	require.NotNil(t, tick)
	assert.Empty(t, candles)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, 42000.5, tick.Price)
	assert.Equal(t, 1234.5, tick.Volume)

	tick, candles, err = parseMessage([]byte(klineMsg))
	require.NoError(t, err)
	assert.Nil(t, tick)
	require.Len(t, candles, 1, "unconfirmed kline must be skipped")
	assert.Equal(t, 42000.0, candles[0].Close)
	assert.Equal(t, time.UnixMilli(1704066900000).UTC(), candles[0].Timestamp)

	_, _, err = parseMessage([]byte(`{"topic":"orderbook.50.BTCUSDT","data":{}}`))
	assert.ErrorIs(t, err, errUnknownTopic)

	_, _, err = parseMessage([]byte(`{"topic":"tickers.BTCUSDT","data":{"lastPrice":"0"}}`))
	assert.Error(t, err)
}

func TestTopicFor(t *testing.T) {
	topic, err := topicFor(Subscription{Symbol: "ETHUSDT", Channel: ChannelTicker})
	require.NoError(t, err)
	assert.Equal(t, "tickers.ETHUSDT", topic)

	topic, err = topicFor(Subscription{Symbol: "ETHUSDT", Channel: ChannelCandle, Interval: "1h"})
	require.NoError(t, err)
	assert.Equal(t, "kline.60.ETHUSDT", topic)

	_, err = topicFor(Subscription{Symbol: "ETHUSDT", Channel: ChannelCandle, Interval: "7m"})
	assert.Error(t, err)
}

func TestSubscriptionsIdempotent(t *testing.T) {
	s := make(subscriptions)
	sub := Subscription{Symbol: "BTCUSDT", Channel: ChannelCandle, Interval: "5m"}

	assert.True(t, s.add(sub))
	assert.False(t, s.add(sub))
	assert.True(t, s.has(ChannelCandle, "BTCUSDT"))
	assert.False(t, s.has(ChannelTicker, "BTCUSDT"))
	assert.True(t, s.remove(sub))
	assert.False(t, s.remove(sub))
}

func TestReplayFiltersBySubscription(t *testing.T) {
	r := NewReplay(4)
	assert.ErrorIs(t, r.PushTick(types.Ticker{Symbol: "BTCUSDT", Price: 1}), ErrNotConnected)

	require.NoError(t, r.Connect(context.Background()))
	require.NoError(t, r.Subscribe(Subscription{Symbol: "BTCUSDT", Channel: ChannelTicker}))
	require.NoError(t, r.Subscribe(Subscription{Symbol: "BTCUSDT", Channel: ChannelTicker}))
	assert.Len(t, r.Subscriptions(), 1)

	require.NoError(t, r.PushTick(types.Ticker{Symbol: "ETHUSDT", Price: 2}))
	require.NoError(t, r.PushTick(types.Ticker{Symbol: "BTCUSDT", Price: 3}))
	require.NoError(t, r.PushCandle(types.OHLCV{Symbol: "BTCUSDT", Close: 4}))

	assert.Equal(t, 3.0, (<-r.Ticks()).Price)
	assert.Empty(t, r.Ticks())
	assert.Empty(t, r.Candles())

	boom := errors.New("boom")
	r.Disconnect(boom)
	assert.False(t, r.Connected())
	assert.Equal(t, boom, <-r.Errors())
}

func TestReconnectorBacksOff(t *testing.T) {
	r := NewReconnector(ReconnectConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, WarnAfter: 3}, logger.NewNop())
	var delays []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	f := &flakyFeed{Replay: NewReplay(1), failures: 4}
	var attempts []Attempt
	failures, err := r.Reconnect(context.Background(), f, func(a Attempt) { attempts = append(attempts, a) })

	require.NoError(t, err)
	assert.Equal(t, 4, failures)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}, delays)
	require.Len(t, attempts, 4)
	assert.False(t, attempts[1].Escalated)
	assert.True(t, attempts[2].Escalated)
	assert.True(t, f.Connected())
}

func TestReconnectorStopsOnCancel(t *testing.T) {
	r := NewReconnector(DefaultReconnectConfig(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	f := &flakyFeed{Replay: NewReplay(1), failures: 100}
	_, err := r.Reconnect(ctx, f, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type flakyFeed struct {
	*Replay
	failures int
}

func (f *flakyFeed) Connect(ctx context.Context) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("dial refused")
	}
	return f.Replay.Connect(ctx)
}

type fakeMarket struct {
	mu      sync.Mutex
	price   float64
	candles []types.OHLCV
	err     error
}

func (m *fakeMarket) GetCandles(context.Context, string, string, int) ([]types.OHLCV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.candles, m.err
}

func (m *fakeMarket) GetLastPrice(context.Context, string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.price, m.err
}

func TestPollerFreshCandles(t *testing.T) {
	p := NewPoller(&fakeMarket{}, time.Second, logger.NewNop())
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := func(m int) types.OHLCV { return types.OHLCV{Symbol: "BTCUSDT", Timestamp: t0.Add(time.Duration(m) * time.Minute)} }

	assert.Empty(t, p.freshCandles("k", []types.OHLCV{c(0), c(1)}), "first poll only sets the watermark")
	assert.Empty(t, p.freshCandles("k", []types.OHLCV{c(0), c(1)}))
	fresh := p.freshCandles("k", []types.OHLCV{c(1), c(2)})
	require.Len(t, fresh, 1)
	assert.Equal(t, c(2).Timestamp, fresh[0].Timestamp)
}

func TestPollerEmitsTicksAndReportsFailure(t *testing.T) {
	market := &fakeMarket{price: 101}
	p := NewPoller(market, 10*time.Millisecond, logger.NewNop())
	require.NoError(t, p.Subscribe(Subscription{Symbol: "BTCUSDT", Channel: ChannelTicker}))
	require.NoError(t, p.Connect(context.Background()))
	defer p.Close()

	select {
	case tick := <-p.Ticks():
		assert.Equal(t, 101.0, tick.Price)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}

	market.mu.Lock()
	market.err = errors.New("http 502")
	market.mu.Unlock()

	select {
	case err := <-p.Errors():
		assert.Contains(t, err.Error(), "http 502")
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
}

func TestBybitStreamEndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan []string, 1)
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var args []string
		gjson.GetBytes(msg, "args").ForEach(func(_, v gjson.Result) bool {
			args = append(args, v.String())
			return true
		})
		subscribed <- args

		conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"subscribe","success":true}`))
		conn.WriteMessage(websocket.TextMessage, []byte(tickerMsg))
		conn.WriteMessage(websocket.TextMessage, []byte(klineMsg))
		<-release
	}))
	defer srv.Close()

	s := NewBybitStream("ws"+strings.TrimPrefix(srv.URL, "http"), logger.NewNop())
	require.NoError(t, s.Subscribe(Subscription{Symbol: "BTCUSDT", Channel: ChannelTicker}))
	require.NoError(t, s.Subscribe(Subscription{Symbol: "BTCUSDT", Channel: ChannelCandle, Interval: "5m"}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	select {
	case args := <-subscribed:
		assert.ElementsMatch(t, []string{"tickers.BTCUSDT", "kline.5.BTCUSDT"}, args)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request")
	}

	select {
	case tick := <-s.Ticks():
		assert.Equal(t, 42000.5, tick.Price)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}
	select {
	case c := <-s.Candles():
		assert.Equal(t, 42000.0, c.Close)
	case <-time.After(2 * time.Second):
		t.Fatal("no candle")
	}

	close(release)
	select {
	case err := <-s.Errors():
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
}
