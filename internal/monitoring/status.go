package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/notifications"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// SymbolStatus is what the board knows about one symbol
type SymbolStatus struct {
	Symbol     string       `json:"symbol"`
	State      string       `json:"state"`
	Price      float64      `json:"price"`
	Position   dca.Snapshot `json:"position"`
	LastFill   *types.Fill  `json:"last_fill,omitempty"`
	LastAlert  string       `json:"last_alert,omitempty"`
	Reconnects int          `json:"reconnects"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// UnrealizedPnL values the position at the last price
func (s SymbolStatus) UnrealizedPnL() float64 {
	if s.Position.QuantityHeld == 0 || s.Price == 0 {
		return 0
	}
	return s.Position.QuantityHeld*s.Price - s.Position.TotalInvested
}

// StatusBoard keeps the latest status per symbol from bus events
type StatusBoard struct {
	mu      sync.RWMutex
	symbols map[string]*SymbolStatus
	started time.Time
}

// NewStatusBoard creates an empty board
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{symbols: make(map[string]*SymbolStatus), started: time.Now()}
}

func (b *StatusBoard) Notify(_ context.Context, e notifications.Event) error {
	if e.Symbol == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.symbols[e.Symbol]
	if !ok {
		st = &SymbolStatus{Symbol: e.Symbol, State: "STOPPED"}
		b.symbols[e.Symbol] = st
	}
	if e.State != "" {
		st.State = e.State
	}
	if e.Price > 0 {
		st.Price = e.Price
	}
	if e.Snapshot != nil {
		st.Position = *e.Snapshot
	}
	if e.Fill != nil {
		f := *e.Fill
		st.LastFill = &f
	}
	if e.IsAlert() {
		st.LastAlert = e.Reason
		if e.Message != "" {
			st.LastAlert = e.Reason + ": " + e.Message
		}
	}
	if e.Type == notifications.EventFeedReconnect {
		st.Reconnects++
	}
	st.UpdatedAt = e.Time
	return nil
}

// Get returns a copy of one symbol's status
func (b *StatusBoard) Get(symbol string) (SymbolStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.symbols[symbol]
	if !ok {
		return SymbolStatus{}, false
	}
	return *st, true
}

// All returns copies of every status sorted by symbol
func (b *StatusBoard) All() []SymbolStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SymbolStatus, 0, len(b.symbols))
	for _, st := range b.symbols {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Uptime is the time since the board was created
func (b *StatusBoard) Uptime() time.Duration {
	return time.Since(b.started)
}
