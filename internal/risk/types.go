package risk

import "time"

// Reason tags a forced exit
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonDailyLoss  Reason = "daily-loss"
	ReasonHardStop   Reason = "hard-stop-loss"
	ReasonTakeProfit Reason = "take-profit-target"
	ReasonTrailing   Reason = "trailing-stop"
)

// Config holds the account level limits. A zero percentage disables its rule.
type Config struct {
	HardStopLossPct   float64 `json:"hard_stop_loss_pct" mapstructure:"hard_stop_loss_pct" validate:"gte=0,lt=100"`
	TakeProfitPct     float64 `json:"take_profit_pct" mapstructure:"take_profit_pct" validate:"gte=0"`
	TrailingStopPct   float64 `json:"trailing_stop_pct" mapstructure:"trailing_stop_pct" validate:"gte=0,lt=100"`
	DailyLossLimitPct float64 `json:"daily_loss_limit_pct" mapstructure:"daily_loss_limit_pct" validate:"gte=0,lt=100"`
	// Timezone decides where the trading day starts, e.g. "Asia/Seoul". Empty means UTC.
	Timezone string `json:"timezone" mapstructure:"timezone"`
}

// Enabled reports whether any rule is active
func (c Config) Enabled() bool {
	return c.HardStopLossPct > 0 || c.TakeProfitPct > 0 || c.TrailingStopPct > 0 || c.DailyLossLimitPct > 0
}

// Snapshot is a copy of the guard's tracking state
type Snapshot struct {
	Open              bool      `json:"open"`
	EntryPrice        float64   `json:"entry_price"`
	PeakPrice         float64   `json:"peak_price"`
	DailyStartCapital float64   `json:"daily_start_capital"`
	Day               time.Time `json:"day"`
	Halted            bool      `json:"halted"`
}
