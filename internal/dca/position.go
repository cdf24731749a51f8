package dca

import (
	"sort"
)

// LevelSet records which levels of one kind have fired for the current position
type LevelSet map[int]bool

// Has reports whether level has fired
func (s LevelSet) Has(level int) bool {
	return s[level]
}

// Sorted returns the executed levels in ascending order
func (s LevelSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func (s LevelSet) clone() LevelSet {
	if len(s) == 0 {
		return nil
	}
	out := make(LevelSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s LevelSet) with(level int) LevelSet {
	out := make(LevelSet, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[level] = true
	return out
}

// PositionState is the bookkeeping for one symbol's open position.
// The zero value is a flat position.
type PositionState struct {
	Symbol         string   `json:"symbol"`
	AvgEntryPrice  float64  `json:"avg_entry_price"`
	TotalInvested  float64  `json:"total_invested"`
	QuantityHeld   float64  `json:"quantity_held"`
	ReferencePrice float64  `json:"reference_price"`
	ExecutedDca    LevelSet `json:"executed_dca,omitempty"`
	ExecutedTp     LevelSet `json:"executed_tp,omitempty"`
	ExecutedSl     LevelSet `json:"executed_sl,omitempty"`
}

// NewPositionState returns a flat position for symbol
func NewPositionState(symbol string) PositionState {
	return PositionState{Symbol: symbol}
}

// IsFlat reports whether nothing is held
func (p PositionState) IsFlat() bool {
	return p.QuantityHeld == 0
}

// Clone returns a deep copy; the level sets are not shared with p
func (p PositionState) Clone() PositionState {
	out := p
	out.ExecutedDca = p.ExecutedDca.clone()
	out.ExecutedTp = p.ExecutedTp.clone()
	out.ExecutedSl = p.ExecutedSl.clone()
	return out
}

// UnrealizedPnL marks the position to price
func (p PositionState) UnrealizedPnL(price float64) float64 {
	return p.QuantityHeld*price - p.TotalInvested
}

// reset keeps only the symbol
func (p PositionState) reset() PositionState {
	return PositionState{Symbol: p.Symbol}
}

// Snapshot is an immutable view of a position handed to other goroutines
type Snapshot struct {
	Symbol         string  `json:"symbol"`
	AvgEntryPrice  float64 `json:"avg_entry_price"`
	TotalInvested  float64 `json:"total_invested"`
	QuantityHeld   float64 `json:"quantity_held"`
	ReferencePrice float64 `json:"reference_price"`
	ExecutedDca    []int   `json:"executed_dca"`
	ExecutedTp     []int   `json:"executed_tp"`
	ExecutedSl     []int   `json:"executed_sl"`
}

// Snapshot copies p into a value that shares no memory with it
func (p PositionState) Snapshot() Snapshot {
	return Snapshot{
		Symbol:         p.Symbol,
		AvgEntryPrice:  p.AvgEntryPrice,
		TotalInvested:  p.TotalInvested,
		QuantityHeld:   p.QuantityHeld,
		ReferencePrice: p.ReferencePrice,
		ExecutedDca:    p.ExecutedDca.Sorted(),
		ExecutedTp:     p.ExecutedTp.Sorted(),
		ExecutedSl:     p.ExecutedSl.Sorted(),
	}
}

// FromSnapshot rebuilds a PositionState, used when restoring persisted state
func FromSnapshot(s Snapshot) PositionState {
	toSet := func(levels []int) LevelSet {
		if len(levels) == 0 {
			return nil
		}
		set := make(LevelSet, len(levels))
		for _, l := range levels {
			set[l] = true
		}
		return set
	}
	return PositionState{
		Symbol:         s.Symbol,
		AvgEntryPrice:  s.AvgEntryPrice,
		TotalInvested:  s.TotalInvested,
		QuantityHeld:   s.QuantityHeld,
		ReferencePrice: s.ReferencePrice,
		ExecutedDca:    toSet(s.ExecutedDca),
		ExecutedTp:     toSet(s.ExecutedTp),
		ExecutedSl:     toSet(s.ExecutedSl),
	}
}
