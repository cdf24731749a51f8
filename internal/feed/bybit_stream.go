package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange/bybit"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

const (
	// BybitSpotURL is the public spot stream
	BybitSpotURL = "wss://stream.bybit.com/v5/public/spot"
	// BybitSpotTestnetURL is the testnet public spot stream
	BybitSpotTestnetURL = "wss://stream-testnet.bybit.com/v5/public/spot"

	pingInterval     = 20 * time.Second
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// BybitStream is a PriceFeed over the Bybit v5 public websocket
type BybitStream struct {
	url string
	log *logger.Logger

	mu     sync.Mutex
	wmu    sync.Mutex
	conn   *websocket.Conn
	stop   chan struct{}
	wanted subscriptions

	ticks   chan types.Ticker
	candles chan types.OHLCV
	errs    chan error
}

var _ PriceFeed = (*BybitStream)(nil)

// NewBybitStream creates an unconnected stream
func NewBybitStream(url string, log *logger.Logger) *BybitStream {
	if url == "" {
		url = BybitSpotURL
	}
	return &BybitStream{
		url:     url,
		log:     log.Named("bybit-stream"),
		wanted:  make(subscriptions),
		ticks:   make(chan types.Ticker, tickBuffer),
		candles: make(chan types.OHLCV, candleBuffer),
		errs:    make(chan error, 1),
	}
}

func (s *BybitStream) Ticks() <-chan types.Ticker  { return s.ticks }
func (s *BybitStream) Candles() <-chan types.OHLCV { return s.candles }
func (s *BybitStream) Errors() <-chan error        { return s.errs }

// Connect dials the stream, replacing any previous connection, and
// re-issues every wanted subscription.
func (s *BybitStream) Connect(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return boterrors.WrapError(err, boterrors.ErrorCategoryDisconnected, "feed", "Connect")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()

	// wanted only holds subscriptions that already passed topicFor
	topics := make([]string, 0, len(s.wanted))
	for _, sub := range s.wanted {
		topic, _ := topicFor(sub)
		topics = append(topics, topic)
	}

	s.conn = conn
	s.stop = make(chan struct{})
	if len(topics) > 0 {
		if err := s.send("subscribe", topics...); err != nil {
			s.dropLocked()
			return boterrors.WrapError(err, boterrors.ErrorCategoryDisconnected, "feed", "Connect")
		}
	}

	go s.readLoop(conn, s.stop)
	go s.pingLoop(s.stop)

	s.log.Info("stream connected", zap.String("url", s.url), zap.Int("subscriptions", len(topics)))
	return nil
}

func (s *BybitStream) Subscribe(sub Subscription) error {
	topic, err := topicFor(sub)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wanted.add(sub) || s.conn == nil {
		return nil
	}
	return s.send("subscribe", topic)
}

func (s *BybitStream) Unsubscribe(sub Subscription) error {
	topic, err := topicFor(sub)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wanted.remove(sub) || s.conn == nil {
		return nil
	}
	return s.send("unsubscribe", topic)
}

// Close drops the connection. Subscriptions are kept, so a later Connect resumes them.
func (s *BybitStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
	return nil
}

func (s *BybitStream) dropLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// send must be called with mu held so the connection cannot change underneath
func (s *BybitStream) send(op string, args ...string) error {
	payload, err := json.Marshal(map[string]interface{}{"op": op, "args": args})
	if err != nil {
		return err
	}
	return s.write(s.conn, payload)
}

func (s *BybitStream) write(conn *websocket.Conn, payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *BybitStream) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			if err := s.write(conn, []byte(`{"op":"ping"}`)); err != nil {
				s.log.Warn("ping failed", logger.ErrorField(err))
				return
			}
		}
	}
}

func (s *BybitStream) readLoop(conn *websocket.Conn, stop <-chan struct{}) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
				// closed on purpose
			default:
				s.log.Warn("stream read failed", logger.ErrorField(err))
				offer(s.errs, error(boterrors.WrapError(err, boterrors.ErrorCategoryDisconnected, "feed", "read")))
			}
			return
		}
		s.handleMessage(msg)
	}
}

func (s *BybitStream) handleMessage(msg []byte) {
	if op := gjson.GetBytes(msg, "op"); op.Exists() {
		if op.String() == "subscribe" && !gjson.GetBytes(msg, "success").Bool() {
			s.log.Error("subscription rejected", zap.String("reason", gjson.GetBytes(msg, "ret_msg").String()))
		}
		return
	}

	tick, candles, err := parseMessage(msg)
	if err != nil {
		s.log.Debug("ignored message", logger.ErrorField(err))
		return
	}
	if tick != nil && !offer(s.ticks, *tick) {
		s.log.Debug("tick dropped, consumer behind", zap.String("symbol", tick.Symbol))
	}
	for _, c := range candles {
		if !offer(s.candles, c) {
			s.log.Warn("candle dropped, consumer behind", zap.String("symbol", c.Symbol))
		}
	}
}

var errUnknownTopic = errors.New("unknown topic")

// parseMessage decodes a ticker or kline push. Only confirmed klines are returned.
func parseMessage(msg []byte) (*types.Ticker, []types.OHLCV, error) {
	topic := gjson.GetBytes(msg, "topic").String()
	parts := strings.Split(topic, ".")
	ts := time.UnixMilli(gjson.GetBytes(msg, "ts").Int()).UTC()

	switch {
	case len(parts) == 2 && parts[0] == "tickers":
		data := gjson.GetBytes(msg, "data")
		price := data.Get("lastPrice").Float()
		if price <= 0 {
			return nil, nil, fmt.Errorf("ticker %s without price", parts[1])
		}
		return &types.Ticker{
			Symbol:    parts[1],
			Price:     price,
			Volume:    data.Get("volume24h").Float(),
			Timestamp: ts,
		}, nil, nil

	case len(parts) == 3 && parts[0] == "kline":
		var out []types.OHLCV
		gjson.GetBytes(msg, "data").ForEach(func(_, k gjson.Result) bool {
			if !k.Get("confirm").Bool() {
				return true
			}
			out = append(out, types.OHLCV{
				Symbol:    parts[2],
				Open:      k.Get("open").Float(),
				High:      k.Get("high").Float(),
				Low:       k.Get("low").Float(),
				Close:     k.Get("close").Float(),
				Volume:    k.Get("volume").Float(),
				Timestamp: time.UnixMilli(k.Get("start").Int()).UTC(),
			})
			return true
		})
		return nil, out, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", errUnknownTopic, topic)
}

func topicFor(sub Subscription) (string, error) {
	switch sub.Channel {
	case ChannelTicker:
		return "tickers." + sub.Symbol, nil
	case ChannelCandle:
		code, err := bybit.IntervalCode(sub.Interval)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("kline.%s.%s", code, sub.Symbol), nil
	}
	return "", fmt.Errorf("unknown channel %q", sub.Channel)
}
