// Package reporting renders backtest results and live status for humans:
// console tables, CSV ledgers, Excel workbooks and JSON.
package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/backtest"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// WriteSummary renders one result as a two column table
func WriteSummary(w io.Writer, res *backtest.Result) {
	m := res.Metrics
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("BACKTEST " + res.Symbol)
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Strategy", res.Strategy},
		{"Initial Capital", money(res.InitialCapital)},
		{"Final Equity", money(res.FinalEquity)},
		{"Total Return", pct(m.TotalReturnPct)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Max Drawdown", pct(m.MaxDrawdownPct)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"Profit Factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Round Trips", m.Trades},
		{"Wins / Losses", fmt.Sprintf("%d / %d", m.Wins, m.Losses)},
		{"Win Rate", pct(m.WinRatePct)},
		{"Avg Win", money(m.AvgWin)},
		{"Avg Loss", money(m.AvgLoss)},
		{"Fills", len(res.Fills)},
		{"Fees", money(m.TotalFees)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 18, Align: text.AlignRight},
	})
	t.Render()
}

// WriteBatch renders one row per job, failed jobs included
func WriteBatch(w io.Writer, results []backtest.JobResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("BACKTEST BATCH")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Job", "Return", "Max DD", "Sharpe", "Trades", "Win Rate", "Final Equity", "Took"})

	var total, initial float64
	for _, jr := range results {
		if jr.Err != nil {
			t.AppendRow(table.Row{jr.ID, "error: " + jr.Err.Error(), "", "", "", "", "", jr.Duration.Round(time.Millisecond)})
			continue
		}
		m := jr.Result.Metrics
		total += jr.Result.FinalEquity
		initial += jr.Result.InitialCapital
		t.AppendRow(table.Row{
			jr.ID, pct(m.TotalReturnPct), pct(m.MaxDrawdownPct), fmt.Sprintf("%.2f", m.SharpeRatio),
			m.Trades, pct(m.WinRatePct), money(jr.Result.FinalEquity), jr.Duration.Round(time.Millisecond),
		})
	}
	if initial > 0 {
		t.AppendFooter(table.Row{"total", pct((total - initial) / initial * 100), "", "", "", "", money(total), ""})
	}
	t.Render()
}

// Status is one live symbol's line in the status table
type Status struct {
	State     string
	Price     float64
	Position  dca.Snapshot
	UpdatedAt time.Time
}

// WriteStatus renders live runner states sorted by symbol
func WriteStatus(w io.Writer, statuses map[string]Status) {
	symbols := make([]string, 0, len(statuses))
	for s := range statuses {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("LIVE STATUS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "State", "Price", "Qty", "Avg Entry", "Invested", "Unrealized", "Levels"})

	for _, s := range symbols {
		st := statuses[s]
		p := st.Position
		unrealized := ""
		if p.QuantityHeld > 0 && st.Price > 0 {
			unrealized = money(p.QuantityHeld*st.Price - p.TotalInvested)
		}
		t.AppendRow(table.Row{
			s, st.State, price(st.Price), fmt.Sprintf("%.6f", p.QuantityHeld), price(p.AvgEntryPrice),
			money(p.TotalInvested), unrealized, levels(p),
		})
	}
	t.Render()
}

// WriteFills renders a fill ledger
func WriteFills(w io.Writer, symbol string, fills []types.Fill) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("FILLS " + symbol)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Side", "Reason", "Price", "Qty", "Value", "Fee"})
	var bought, sold, fees float64
	for _, f := range fills {
		t.AppendRow(table.Row{
			f.Timestamp.Local().Format(time.DateTime), f.Side, f.Reason, price(f.Price),
			fmt.Sprintf("%.6f", f.Quantity), money(f.Value()), money(f.Fee),
		})
		if f.Side == types.SideBuy {
			bought += f.Value()
		} else {
			sold += f.Value()
		}
		fees += f.Fee
	}
	t.AppendFooter(table.Row{"", "", "", "", "bought / sold", money(bought) + " / " + money(sold), money(fees)})
	t.Render()
}

func levels(p dca.Snapshot) string {
	var parts []string
	if len(p.ExecutedDca) > 0 {
		parts = append(parts, "dca "+joinInts(p.ExecutedDca))
	}
	if len(p.ExecutedTp) > 0 {
		parts = append(parts, "tp "+joinInts(p.ExecutedTp))
	}
	if len(p.ExecutedSl) > 0 {
		parts = append(parts, "sl "+joinInts(p.ExecutedSl))
	}
	return strings.Join(parts, " | ")
}

func joinInts(vs []int) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = fmt.Sprint(v)
	}
	return strings.Join(s, ",")
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v) }

func price(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.6g", v)
}
