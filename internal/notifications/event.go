// Package notifications fans trading events out to sinks without ever
// blocking the trading loops.
package notifications

import (
	"time"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// EventType classifies events
type EventType string

const (
	EventFill          EventType = "fill"
	EventRiskExit      EventType = "risk-exit"
	EventOrderFailed   EventType = "order-failed"
	EventOrderUnknown  EventType = "order-unknown"
	EventFeedReconnect EventType = "feed-reconnect"
	EventStatus        EventType = "status"
	EventState         EventType = "state"
)

// Event is an immutable notification. Fill and Snapshot are copies.
type Event struct {
	Type     EventType     `json:"type"`
	Symbol   string        `json:"symbol"`
	Reason   string        `json:"reason,omitempty"`
	Message  string        `json:"message,omitempty"`
	State    string        `json:"state,omitempty"`
	Price    float64       `json:"price,omitempty"`
	Fill     *types.Fill   `json:"fill,omitempty"`
	Snapshot *dca.Snapshot `json:"snapshot,omitempty"`
	Time     time.Time     `json:"time"`
}

// IsAlert reports whether the event needs human attention
func (e Event) IsAlert() bool {
	switch e.Type {
	case EventRiskExit, EventOrderFailed, EventOrderUnknown:
		return true
	}
	return false
}
