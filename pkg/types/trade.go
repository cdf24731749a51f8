package types

import "time"

// Side is the direction of a fill
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Fill is an executed (or simulated) trade applied to a position.
// Reason is a free-text tag such as "dca-L2" or "take-profit-L1".
type Fill struct {
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	OrderID   string    `json:"order_id,omitempty"`
}

// Value is price times quantity, before fees
func (f Fill) Value() float64 {
	return f.Price * f.Quantity
}

// EquitySample is one point of the equity curve: cash + quantity x last price
type EquitySample struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}
