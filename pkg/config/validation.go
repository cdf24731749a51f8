package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DcaValidator validates strategy configuration at load time
type DcaValidator struct {
	validate *validator.Validate
}

// NewDcaValidator creates a new DCA validator
func NewDcaValidator() *DcaValidator {
	return &DcaValidator{validate: validator.New()}
}

// Validate runs struct tag checks followed by the cross-field rules the
// decision engine relies on. cfg should already be normalized.
func (v *DcaValidator) Validate(cfg DcaStrategyConfig) error {
	if err := v.validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid strategy config: %w", err)
	}

	first := cfg.Levels[0]
	if first.Level != 1 || first.DropPct != 0 {
		return fmt.Errorf("first DCA level must be level 1 with drop_pct 0, got level %d drop %.4f", first.Level, first.DropPct)
	}

	seen := make(map[int]bool, len(cfg.Levels))
	for i, l := range cfg.Levels {
		if seen[l.Level] {
			return fmt.Errorf("duplicate DCA level %d", l.Level)
		}
		seen[l.Level] = true

		if l.OrderAmount <= 0 {
			return fmt.Errorf("DCA level %d needs order_amount or weight_pct", l.Level)
		}
		if i > 0 && l.DropPct <= cfg.Levels[i-1].DropPct {
			return fmt.Errorf("drop_pct must increase monotonically: level %d (%.4f) after level %d (%.4f)",
				l.Level, l.DropPct, cfg.Levels[i-1].Level, cfg.Levels[i-1].DropPct)
		}
	}

	if err := validateExits("take-profit", cfg.TakeProfits); err != nil {
		return err
	}
	if err := validateExits("stop-loss", cfg.StopLosses); err != nil {
		return err
	}

	if cfg.TotalCapital > 0 && cfg.PlannedCapital() > cfg.TotalCapital*(1+1e-9) {
		return fmt.Errorf("planned order amounts %.2f exceed total capital %.2f", cfg.PlannedCapital(), cfg.TotalCapital)
	}
	return nil
}

func validateExits(kind string, levels []ExitLevel) error {
	seen := make(map[int]bool, len(levels))
	for _, l := range levels {
		if seen[l.Level] {
			return fmt.Errorf("duplicate %s level %d", kind, l.Level)
		}
		seen[l.Level] = true
	}
	return nil
}

// Prepare normalizes and validates cfg in one step
func (v *DcaValidator) Prepare(cfg DcaStrategyConfig) (DcaStrategyConfig, error) {
	n := cfg.Normalize()
	if err := v.Validate(n); err != nil {
		return DcaStrategyConfig{}, err
	}
	return n, nil
}

// Prepare is DcaValidator.Prepare with a fresh validator
func Prepare(cfg DcaStrategyConfig) (DcaStrategyConfig, error) {
	return NewDcaValidator().Prepare(cfg)
}
