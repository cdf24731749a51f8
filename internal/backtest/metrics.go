package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

const tradingDaysPerYear = 252

// Result is everything a backtest produced
type Result struct {
	Symbol         string               `json:"symbol"`
	Strategy       string               `json:"strategy"`
	InitialCapital float64              `json:"initial_capital"`
	FinalEquity    float64              `json:"final_equity"`
	Fills          []types.Fill         `json:"fills"`
	Equity         []types.EquitySample `json:"equity"`
	RoundTrips     []RoundTrip          `json:"round_trips"`
	Metrics        Metrics              `json:"metrics"`
}

// RoundTrip is one sell matched FIFO against earlier buys
type RoundTrip struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	Fees       float64   `json:"fees"`
	PnL        float64   `json:"pnl"`
	Reason     string    `json:"reason"`
}

// Metrics summarizes a Result. ProfitFactor is 0 when there are no losing trips.
type Metrics struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	WinRatePct     float64 `json:"win_rate_pct"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	ProfitFactor   float64 `json:"profit_factor"`
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	TotalFees      float64 `json:"total_fees"`
}

// ComputeMetrics derives the summary statistics from a finished result
func ComputeMetrics(r *Result, riskFreeRate float64) Metrics {
	var m Metrics
	if r.InitialCapital > 0 {
		m.TotalReturnPct = (r.FinalEquity - r.InitialCapital) / r.InitialCapital * 100
	}
	m.MaxDrawdownPct = MaxDrawdownPct(r.Equity)
	m.SharpeRatio = SharpeRatio(r.Equity, riskFreeRate)

	for _, f := range r.Fills {
		m.TotalFees += f.Fee
	}

	var grossWin, grossLoss float64
	for _, rt := range r.RoundTrips {
		m.Trades++
		if rt.PnL > 0 {
			m.Wins++
			grossWin += rt.PnL
		} else {
			m.Losses++
			grossLoss += -rt.PnL
		}
	}
	if m.Trades > 0 {
		m.WinRatePct = float64(m.Wins) / float64(m.Trades) * 100
	}
	if m.Wins > 0 {
		m.AvgWin = grossWin / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = grossLoss / float64(m.Losses)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	}
	return m
}

// MaxDrawdownPct is the largest peak-to-trough fall of the curve in percent
func MaxDrawdownPct(curve []types.EquitySample) float64 {
	peak, maxDD := 0.0, 0.0
	for _, s := range curve {
		if s.Equity > peak {
			peak = s.Equity
		}
		if peak > 0 {
			if dd := (peak - s.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}

// SharpeRatio annualizes the mean excess per-step return over its sample
// standard deviation with sqrt(252). The annual riskFreeRate is scaled to the
// median spacing of the curve, so 5m candles subtract 1/288 of the daily rate.
func SharpeRatio(curve []types.EquitySample, riskFreeRate float64) float64 {
	if len(curve) < 3 {
		return 0
	}
	rf := riskFreeRate / tradingDaysPerYear * stepDays(curve)

	excess := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		excess = append(excess, curve[i].Equity/prev-1-rf)
	}
	if len(excess) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range excess {
		mean += r
	}
	mean /= float64(len(excess))

	variance := 0.0
	for _, r := range excess {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(excess)-1))
	if std < 1e-12 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// stepDays is the median sample spacing in days, one when timestamps are missing
func stepDays(curve []types.EquitySample) float64 {
	steps := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if d := curve[i].Timestamp.Sub(curve[i-1].Timestamp); d > 0 {
			steps = append(steps, d.Hours()/24)
		}
	}
	if len(steps) == 0 {
		return 1
	}
	sort.Float64s(steps)
	return steps[len(steps)/2]
}

type lot struct {
	time  time.Time
	price float64
	qty   float64
	fee   float64
}

// MatchRoundTrips pairs every sell with the oldest open buy quantity.
// Buy fees are charged proportionally to the quantity a sell consumes.
func MatchRoundTrips(fills []types.Fill) []RoundTrip {
	trips := []RoundTrip{}
	var queue []lot

	for _, f := range fills {
		if f.Side == types.SideBuy {
			queue = append(queue, lot{time: f.Timestamp, price: f.Price, qty: f.Quantity, fee: f.Fee})
			continue
		}

		remaining := f.Quantity
		var cost, fees, matched float64
		var entryTime time.Time
		for remaining > 1e-12 && len(queue) > 0 {
			head := &queue[0]
			take := math.Min(remaining, head.qty)
			if entryTime.IsZero() {
				entryTime = head.time
			}
			share := take / head.qty
			cost += take * head.price
			fees += head.fee * share
			head.fee -= head.fee * share
			head.qty -= take
			remaining -= take
			matched += take
			if head.qty <= 1e-12 {
				queue = queue[1:]
			}
		}
		if matched == 0 {
			continue
		}

		sellFee := f.Fee * matched / f.Quantity
		proceeds := f.Price * matched
		trips = append(trips, RoundTrip{
			EntryTime:  entryTime,
			ExitTime:   f.Timestamp,
			EntryPrice: cost / matched,
			ExitPrice:  f.Price,
			Quantity:   matched,
			Fees:       fees + sellFee,
			PnL:        proceeds - cost - fees - sellFee,
			Reason:     f.Reason,
		})
	}
	return trips
}
