package dca

import (
	"fmt"
	"time"
)

// ActionType identifies what the engine wants done
type ActionType int

const (
	ActionEnter ActionType = iota
	ActionAdd
	ActionPartialExit
	ActionFullExit
)

func (a ActionType) String() string {
	switch a {
	case ActionEnter:
		return "ENTER"
	case ActionAdd:
		return "ADD"
	case ActionPartialExit:
		return "PARTIAL_EXIT"
	case ActionFullExit:
		return "FULL_EXIT"
	default:
		return "UNKNOWN"
	}
}

// IsBuy reports whether the action spends quote currency
func (a ActionType) IsBuy() bool {
	return a == ActionEnter || a == ActionAdd
}

// Action is a single trading intent produced by Decide.
// Buys carry a quote Amount; sells carry a base Quantity.
type Action struct {
	Type     ActionType
	Level    int
	Reason   string
	Price    float64
	Amount   float64
	Quantity float64
	RatioPct float64
}

func (a Action) String() string {
	if a.Type.IsBuy() {
		return fmt.Sprintf("%s %s amount=%.8f @ %.8f", a.Type, a.Reason, a.Amount, a.Price)
	}
	return fmt.Sprintf("%s %s qty=%.8f (%.2f%%) @ %.8f", a.Type, a.Reason, a.Quantity, a.RatioPct, a.Price)
}

// Observation is one price the engine reacts to.
// EntrySignal is supplied by the caller's strategy and only matters while flat.
type Observation struct {
	Price       float64
	Timestamp   time.Time
	EntrySignal bool
}

// Reason tags
const (
	ReasonEntry       = "entry"
	ReasonLiquidation = "liquidation"
	ReasonSignalExit  = "strategy-exit"
)

func dcaReason(level int) string { return fmt.Sprintf("dca-L%d", level) }
func tpReason(level int) string { return fmt.Sprintf("take-profit-L%d", level) }
func slReason(level int) string { return fmt.Sprintf("stop-loss-L%d", level) }

// RiskReason tags a forced exit coming from the risk guard
func RiskReason(tag string) string { return "risk-" + tag }
