package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	tele "gopkg.in/telebot.v3"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

func TestBusFanOutAndFilter(t *testing.T) {
	bus := NewBus(logger.NewNop())
	all := bus.Subscribe("all", 4)
	fills := bus.Subscribe("fills", 4, EventFill)

	bus.Publish(Event{Type: EventFill, Symbol: "BTCUSDT"})
	bus.Publish(Event{Type: EventState, Symbol: "BTCUSDT", State: "RUNNING"})

	assert.Len(t, all.C, 2)
	require.Len(t, fills.C, 1)
	assert.Equal(t, EventFill, (<-fills.C).Type)
}

func TestBusNeverBlocks(t *testing.T) {
	bus := NewBus(logger.NewNop())
	slow := bus.Subscribe("slow", 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Type: EventStatus})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, int64(9), slow.Dropped())
}

func TestBusCloseAndUnsubscribe(t *testing.T) {
	bus := NewBus(logger.NewNop())
	a := bus.Subscribe("a", 1)
	b := bus.Subscribe("b", 1)

	bus.Unsubscribe(a)
	_, ok := <-a.C
	assert.False(t, ok)

	bus.Close()
	_, ok = <-b.C
	assert.False(t, ok)

	bus.Publish(Event{Type: EventFill})
	late := bus.Subscribe("late", 1)
	_, ok = <-late.C
	assert.False(t, ok)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, to.Recipient()+"|"+what.(string))
	return &tele.Message{}, nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestTelegramSink(t *testing.T) {
	sender := &fakeSender{}
	sink := newTelegramSink(sender, TelegramConfig{ChatID: 42, MessagesPerSecond: 100}, logger.NewNop())

	fill := types.Fill{Side: types.SideBuy, Price: 100, Quantity: 5, Fee: 0.5}
	require.NoError(t, sink.Notify(context.Background(), Event{Type: EventFill, Symbol: "BTCUSDT", Reason: "dca-L2", Fill: &fill}))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "42|")
	assert.Contains(t, msgs[0], "<b>BTCUSDT</b> fill")
	assert.Contains(t, msgs[0], "<code>dca-L2</code>")
	assert.Contains(t, msgs[0], "BUY 5.00000000 @ 100.00000000")

	sender.err = errors.New("telegram down")
	assert.Error(t, sink.Notify(context.Background(), Event{Type: EventRiskExit}))
}

func TestNewTelegramSinkRequiresCredentials(t *testing.T) {
	_, err := NewTelegramSink(TelegramConfig{Enabled: true}, logger.NewNop())
	assert.Error(t, err)
}

func TestFormatHTMLEscapes(t *testing.T) {
	snap := dca.Snapshot{QuantityHeld: 1.5, AvgEntryPrice: 90}
	out := FormatHTML(Event{Type: EventOrderUnknown, Symbol: "BTCUSDT", Message: "a<b", Snapshot: &snap})
	assert.Contains(t, out, "a&lt;b")
	assert.Contains(t, out, "position 1.50000000 avg 90.00000000")
}

func TestTelegramEventTypes(t *testing.T) {
	assert.Contains(t, TelegramConfig{}.EventTypes(), EventRiskExit)
	assert.Equal(t, []EventType{EventState}, TelegramConfig{Events: []string{" State "}}.EventTypes())
}

func TestRunDeliversUntilClosed(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &logger.Logger{Logger: zap.New(core)}

	bus := NewBus(logger.NewNop())
	sub := bus.Subscribe("log", 8)

	done := make(chan struct{})
	go func() {
		Run(context.Background(), sub, NewLogSink(log), log)
		close(done)
	}()

	bus.Publish(Event{Type: EventFill, Symbol: "BTCUSDT", Message: "filled"})
	bus.Publish(Event{Type: EventRiskExit, Symbol: "BTCUSDT", Reason: "risk-daily-loss", Message: "forced exit"})
	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sink loop did not stop")
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "risk-daily-loss", entries[1].ContextMap()["reason"])
}
