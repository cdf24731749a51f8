package config

import (
	"sort"
)

// Default strategy values
const (
	DefaultTotalCapital = 1000.0
	DefaultDustEpsilon  = 1e-8

	MaxPercent = 100.0
)

// DcaLevel is one buy stage. Level 1 is the initial entry and always has DropPct 0.
type DcaLevel struct {
	Level       int     `json:"level" mapstructure:"level" validate:"gte=1"`
	DropPct     float64 `json:"drop_pct" mapstructure:"drop_pct" validate:"gte=0,lt=100"`
	WeightPct   float64 `json:"weight_pct" mapstructure:"weight_pct" validate:"gte=0,lte=100"`
	OrderAmount float64 `json:"order_amount" mapstructure:"order_amount" validate:"gte=0"`
}

// ExitLevel is one take-profit or stop-loss stage.
// SellRatioPct applies to the quantity remaining when the level fires.
type ExitLevel struct {
	Level        int     `json:"level" mapstructure:"level" validate:"gte=1"`
	ThresholdPct float64 `json:"threshold_pct" mapstructure:"threshold_pct" validate:"gt=0"`
	SellRatioPct float64 `json:"sell_ratio_pct" mapstructure:"sell_ratio_pct" validate:"gt=0,lte=100"`
}

// DcaStrategyConfig holds the staged entry/exit plan for one symbol.
// When TakeProfits or StopLosses is empty the scalar TakeProfitPct / StopLossPct
// is used as a single level selling everything ("single-level" mode).
type DcaStrategyConfig struct {
	Enabled      bool    `json:"enabled" mapstructure:"enabled"`
	TotalCapital float64 `json:"total_capital" mapstructure:"total_capital" validate:"gte=0"`

	Levels      []DcaLevel  `json:"levels" mapstructure:"levels" validate:"required,min=1,dive"`
	TakeProfits []ExitLevel `json:"take_profits" mapstructure:"take_profits" validate:"dive"`
	StopLosses  []ExitLevel `json:"stop_losses" mapstructure:"stop_losses" validate:"dive"`

	TakeProfitPct float64 `json:"take_profit_pct" mapstructure:"take_profit_pct" validate:"gte=0"`
	StopLossPct   float64 `json:"stop_loss_pct" mapstructure:"stop_loss_pct" validate:"gte=0,lt=100"`

	// DustEpsilon is the quantity below which a position counts as closed
	DustEpsilon float64 `json:"dust_epsilon" mapstructure:"dust_epsilon" validate:"gte=0"`
}

// NewDefaultDcaStrategyConfig returns a four stage plan with two take-profit tranches
func NewDefaultDcaStrategyConfig() DcaStrategyConfig {
	return DcaStrategyConfig{
		Enabled:      true,
		TotalCapital: DefaultTotalCapital,
		Levels: []DcaLevel{
			{Level: 1, DropPct: 0, WeightPct: 50, OrderAmount: 500},
			{Level: 2, DropPct: 5, WeightPct: 25, OrderAmount: 250},
			{Level: 3, DropPct: 10, WeightPct: 15, OrderAmount: 150},
			{Level: 4, DropPct: 15, WeightPct: 10, OrderAmount: 100},
		},
		TakeProfits: []ExitLevel{
			{Level: 1, ThresholdPct: 5, SellRatioPct: 30},
			{Level: 2, ThresholdPct: 10, SellRatioPct: 100},
		},
		StopLosses: []ExitLevel{
			{Level: 1, ThresholdPct: 25, SellRatioPct: 100},
		},
		DustEpsilon: DefaultDustEpsilon,
	}
}

// Normalize fills derived values: order amounts from weights and the dust epsilon.
// It returns a copy and never touches the receiver's slices.
func (c DcaStrategyConfig) Normalize() DcaStrategyConfig {
	out := c
	out.Levels = append([]DcaLevel(nil), c.Levels...)
	out.TakeProfits = append([]ExitLevel(nil), c.TakeProfits...)
	out.StopLosses = append([]ExitLevel(nil), c.StopLosses...)

	for i := range out.Levels {
		if out.Levels[i].OrderAmount == 0 && out.Levels[i].WeightPct > 0 {
			out.Levels[i].OrderAmount = out.TotalCapital * out.Levels[i].WeightPct / MaxPercent
		}
	}
	if out.DustEpsilon == 0 {
		out.DustEpsilon = DefaultDustEpsilon
	}
	return out
}

// LevelsByDrop returns the DCA levels sorted by ascending DropPct
func (c DcaStrategyConfig) LevelsByDrop() []DcaLevel {
	levels := append([]DcaLevel(nil), c.Levels...)
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].DropPct < levels[j].DropPct })
	return levels
}

// EffectiveTakeProfits returns take-profit levels in ascending level order,
// synthesizing the single-level plan when the list is empty.
func (c DcaStrategyConfig) EffectiveTakeProfits() []ExitLevel {
	return effectiveExits(c.TakeProfits, c.TakeProfitPct)
}

// EffectiveStopLosses is the stop-loss counterpart of EffectiveTakeProfits
func (c DcaStrategyConfig) EffectiveStopLosses() []ExitLevel {
	return effectiveExits(c.StopLosses, c.StopLossPct)
}

func effectiveExits(levels []ExitLevel, scalarPct float64) []ExitLevel {
	if len(levels) == 0 {
		if scalarPct <= 0 {
			return nil
		}
		return []ExitLevel{{Level: 1, ThresholdPct: scalarPct, SellRatioPct: MaxPercent}}
	}
	out := append([]ExitLevel(nil), levels...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// PlannedCapital is the sum of all level order amounts
func (c DcaStrategyConfig) PlannedCapital() float64 {
	total := 0.0
	for _, l := range c.Levels {
		total += l.OrderAmount
	}
	return total
}
