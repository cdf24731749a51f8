package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/backtest"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

var fillHeader = []string{"time", "symbol", "side", "reason", "price", "quantity", "value", "fee", "order_id"}

// WriteFillsCSV writes the fill ledger to path
func WriteFillsCSV(fills []types.Fill, path string) error {
	rows := make([][]string, 0, len(fills)+1)
	rows = append(rows, fillHeader)
	for _, f := range fills {
		rows = append(rows, []string{
			f.Timestamp.UTC().Format(time.RFC3339), f.Symbol, string(f.Side), f.Reason,
			num(f.Price), num(f.Quantity), num(f.Value()), num(f.Fee), f.OrderID,
		})
	}
	return writeCSV(path, rows)
}

// WriteEquityCSV writes the equity curve to path
func WriteEquityCSV(curve []types.EquitySample, path string) error {
	rows := make([][]string, 0, len(curve)+1)
	rows = append(rows, []string{"time", "equity"})
	for _, s := range curve {
		rows = append(rows, []string{s.Timestamp.UTC().Format(time.RFC3339), num(s.Equity)})
	}
	return writeCSV(path, rows)
}

// WriteRoundTripsCSV writes matched round trips to path
func WriteRoundTripsCSV(trips []backtest.RoundTrip, path string) error {
	rows := make([][]string, 0, len(trips)+1)
	rows = append(rows, []string{"entry_time", "exit_time", "entry_price", "exit_price", "quantity", "fees", "pnl", "reason"})
	for _, rt := range trips {
		rows = append(rows, []string{
			rt.EntryTime.UTC().Format(time.RFC3339), rt.ExitTime.UTC().Format(time.RFC3339),
			num(rt.EntryPrice), num(rt.ExitPrice), num(rt.Quantity), num(rt.Fees), num(rt.PnL), rt.Reason,
		})
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
