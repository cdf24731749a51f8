package reporting

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/backtest"
)

// Sheet names in the backtest workbook
const (
	SheetSummary    = "Summary"
	SheetFills      = "Fills"
	SheetRoundTrips = "Round Trips"
	SheetEquity     = "Equity"
)

type excelStyles struct {
	header   int
	currency int
	percent  int
	decimal  int
	datetime int
	red      int
	green    int
}

// WriteExcel writes a workbook with summary, fill ledger, round trip and
// equity sheets
func WriteExcel(res *backtest.Result, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), SheetSummary); err != nil {
		return err
	}
	for _, name := range []string{SheetFills, SheetRoundTrips, SheetEquity} {
		if _, err := fx.NewSheet(name); err != nil {
			return err
		}
	}

	styles, err := newExcelStyles(fx)
	if err != nil {
		return err
	}

	for _, write := range []func(*excelize.File, *backtest.Result, excelStyles) error{
		writeSummarySheet, writeFillsSheet, writeRoundTripsSheet, writeEquitySheet,
	} {
		if err := write(fx, res, styles); err != nil {
			return err
		}
	}
	return fx.SaveAs(path)
}

func newExcelStyles(fx *excelize.File) (excelStyles, error) {
	var s excelStyles
	border := []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&s.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Family: "Calibri", Size: 11},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&s.currency, &excelize.Style{NumFmt: 4, Border: border}},
		{&s.percent, &excelize.Style{CustomNumFmt: strPtr(`0.00"%"`), Border: border}},
		{&s.decimal, &excelize.Style{CustomNumFmt: strPtr("0.00000000"), Border: border}},
		{&s.datetime, &excelize.Style{NumFmt: 22, Border: border}},
		{&s.red, &excelize.Style{NumFmt: 4, Font: &excelize.Font{Color: "C00000"}, Border: border}},
		{&s.green, &excelize.Style{NumFmt: 4, Font: &excelize.Font{Color: "00B050"}, Border: border}},
	}
	for _, d := range defs {
		id, err := fx.NewStyle(d.style)
		if err != nil {
			return s, fmt.Errorf("create excel style: %w", err)
		}
		*d.dst = id
	}
	return s, nil
}

func strPtr(s string) *string { return &s }

func writeHeader(fx *excelize.File, sheet string, s excelStyles, cols ...string) error {
	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	if err := fx.SetSheetRow(sheet, "A1", &row); err != nil {
		return err
	}
	last, _ := excelize.ColumnNumberToName(len(cols))
	if err := fx.SetCellStyle(sheet, "A1", last+"1", s.header); err != nil {
		return err
	}
	if err := fx.SetColWidth(sheet, "A", last, 16); err != nil {
		return err
	}
	return fx.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeSummarySheet(fx *excelize.File, res *backtest.Result, s excelStyles) error {
	const sheet = SheetSummary
	if err := writeHeader(fx, sheet, s, "Metric", "Value"); err != nil {
		return err
	}
	m := res.Metrics
	rows := []struct {
		name  string
		value any
		style int
	}{
		{"Symbol", res.Symbol, 0},
		{"Strategy", res.Strategy, 0},
		{"Initial Capital", res.InitialCapital, s.currency},
		{"Final Equity", res.FinalEquity, s.currency},
		{"Total Return", m.TotalReturnPct, s.percent},
		{"Max Drawdown", m.MaxDrawdownPct, s.percent},
		{"Sharpe Ratio", m.SharpeRatio, s.currency},
		{"Profit Factor", m.ProfitFactor, s.currency},
		{"Round Trips", m.Trades, 0},
		{"Wins", m.Wins, 0},
		{"Losses", m.Losses, 0},
		{"Win Rate", m.WinRatePct, s.percent},
		{"Avg Win", m.AvgWin, s.currency},
		{"Avg Loss", m.AvgLoss, s.currency},
		{"Total Fees", m.TotalFees, s.currency},
		{"Fills", len(res.Fills), 0},
	}
	for i, r := range rows {
		n := i + 2
		if err := fx.SetSheetRow(sheet, fmt.Sprintf("A%d", n), &[]any{r.name, r.value}); err != nil {
			return err
		}
		if r.style != 0 {
			if err := fx.SetCellStyle(sheet, fmt.Sprintf("B%d", n), fmt.Sprintf("B%d", n), r.style); err != nil {
				return err
			}
		}
	}
	return fx.SetColWidth(sheet, "A", "A", 20)
}

func writeFillsSheet(fx *excelize.File, res *backtest.Result, s excelStyles) error {
	const sheet = SheetFills
	if err := writeHeader(fx, sheet, s, "Time", "Side", "Reason", "Price", "Quantity", "Value", "Fee"); err != nil {
		return err
	}
	for i, f := range res.Fills {
		n := i + 2
		if err := fx.SetSheetRow(sheet, fmt.Sprintf("A%d", n), &[]any{
			f.Timestamp, string(f.Side), f.Reason, f.Price, f.Quantity, f.Value(), f.Fee,
		}); err != nil {
			return err
		}
	}
	if len(res.Fills) == 0 {
		return nil
	}
	last := len(res.Fills) + 1
	for _, c := range []struct {
		col   string
		style int
	}{{"A", s.datetime}, {"D", s.currency}, {"E", s.decimal}, {"F", s.currency}, {"G", s.currency}} {
		if err := fx.SetCellStyle(sheet, c.col+"2", fmt.Sprintf("%s%d", c.col, last), c.style); err != nil {
			return err
		}
	}
	return nil
}

func writeRoundTripsSheet(fx *excelize.File, res *backtest.Result, s excelStyles) error {
	const sheet = SheetRoundTrips
	if err := writeHeader(fx, sheet, s, "Entry Time", "Exit Time", "Entry Price", "Exit Price", "Quantity", "Fees", "PnL", "Reason"); err != nil {
		return err
	}
	for i, rt := range res.RoundTrips {
		n := i + 2
		if err := fx.SetSheetRow(sheet, fmt.Sprintf("A%d", n), &[]any{
			rt.EntryTime, rt.ExitTime, rt.EntryPrice, rt.ExitPrice, rt.Quantity, rt.Fees, rt.PnL, rt.Reason,
		}); err != nil {
			return err
		}
		pnlStyle := s.green
		if rt.PnL < 0 {
			pnlStyle = s.red
		}
		cell := fmt.Sprintf("G%d", n)
		if err := fx.SetCellStyle(sheet, cell, cell, pnlStyle); err != nil {
			return err
		}
	}
	if len(res.RoundTrips) == 0 {
		return nil
	}
	last := len(res.RoundTrips) + 1
	for _, c := range []struct {
		from, to string
		style    int
	}{{"A", "B", s.datetime}, {"C", "D", s.currency}, {"E", "E", s.decimal}, {"F", "F", s.currency}} {
		if err := fx.SetCellStyle(sheet, c.from+"2", fmt.Sprintf("%s%d", c.to, last), c.style); err != nil {
			return err
		}
	}
	return nil
}

func writeEquitySheet(fx *excelize.File, res *backtest.Result, s excelStyles) error {
	const sheet = SheetEquity
	if err := writeHeader(fx, sheet, s, "Time", "Equity"); err != nil {
		return err
	}
	for i, e := range res.Equity {
		if err := fx.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &[]any{e.Timestamp, e.Equity}); err != nil {
			return err
		}
	}
	if len(res.Equity) == 0 {
		return nil
	}
	last := len(res.Equity) + 1
	if err := fx.SetCellStyle(sheet, "A2", fmt.Sprintf("A%d", last), s.datetime); err != nil {
		return err
	}
	return fx.SetCellStyle(sheet, "B2", fmt.Sprintf("B%d", last), s.currency)
}
