package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/backtest"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/config"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/strategy"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/data"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/reporting"
)

type backtestFlags struct {
	dataFile string
	dataRoot string
	exchange string
	symbols  []string
	from     string
	to       string
	period   time.Duration
	workers  int
	outDir   string
	excel    bool
	csv      bool
	json     bool
}

func newBacktestCmd(g *globalFlags) *cobra.Command {
	f := &backtestFlags{}
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical candles through the DCA engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			return runBacktest(cmd, cfg, f, log)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.dataFile, "data", "", "candle CSV file (single symbol)")
	fl.StringVar(&f.dataRoot, "data-root", "data", "root of data/<exchange>/<category>/<SYMBOL>/<minutes>/candles.csv")
	fl.StringVar(&f.exchange, "exchange", "bybit", "exchange directory under data-root")
	fl.StringSliceVar(&f.symbols, "symbol", nil, "symbols to test (default: config symbols)")
	fl.StringVar(&f.from, "from", "", "first candle date, YYYY-MM-DD")
	fl.StringVar(&f.to, "to", "", "last candle date, YYYY-MM-DD")
	fl.DurationVar(&f.period, "period", 0, "only use the trailing period, e.g. 720h")
	fl.IntVar(&f.workers, "workers", 0, "parallel backtests (default: CPU count)")
	fl.StringVar(&f.outDir, "out", "", "output directory (default: results/<SYMBOL>_<interval>)")
	fl.BoolVar(&f.excel, "excel", false, "write an Excel workbook per symbol")
	fl.BoolVar(&f.csv, "csv", false, "write fills, round trip and equity CSVs per symbol")
	fl.BoolVar(&f.json, "json", false, "write the full result as JSON per symbol")
	return cmd
}

func runBacktest(cmd *cobra.Command, cfg *config.Config, f *backtestFlags, log *logger.Logger) error {
	symbols := f.symbols
	if len(symbols) == 0 {
		symbols = cfg.Symbols
	}
	if f.dataFile != "" && len(symbols) != 1 {
		return fmt.Errorf("--data takes exactly one symbol, got %d", len(symbols))
	}
	from, to, err := dateRange(f.from, f.to)
	if err != nil {
		return err
	}

	provider := data.NewCachedProvider(data.NewCSVProvider(log), 0)
	jobs := make([]backtest.Job, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(sym)
		path := f.dataFile
		if path == "" {
			if path, err = data.FindDataFile(f.dataRoot, f.exchange, sym, cfg.Live.CandleInterval); err != nil {
				return err
			}
		}
		candles, err := provider.Load(path)
		if err != nil {
			return err
		}
		candles = data.FilterByPeriod(data.FilterByDateRange(candles, from, to), f.period)
		if err := data.Validate(candles); err != nil {
			return fmt.Errorf("%s: %w", sym, err)
		}

		strat, err := strategy.New(cfg.Strategy)
		if err != nil {
			return err
		}
		btCfg := cfg.Backtest
		btCfg.Symbol = sym
		runner, err := backtest.NewRunner(btCfg, cfg.DCA, strat, cfg.Risk, log.ForSymbol(sym))
		if err != nil {
			return err
		}
		jobs = append(jobs, backtest.Job{ID: sym, Runner: runner, Candles: candles})
		log.Info("backtest queued", zap.String("symbol", sym), zap.Int("candles", len(candles)),
			zap.Time("first", candles[0].Timestamp), zap.Time("last", candles[len(candles)-1].Timestamp))
	}

	results, err := backtest.RunBatch(cmd.Context(), jobs, f.workers)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 1 && results[0].Err == nil {
		reporting.WriteSummary(out, results[0].Result)
	} else {
		reporting.WriteBatch(out, results)
	}

	failed := 0
	for _, jr := range results {
		if jr.Err != nil {
			failed++
			log.Error("backtest failed", zap.String("symbol", jr.ID), logger.ErrorField(jr.Err))
			continue
		}
		if err := writeOutputs(jr.Result, cfg.Live.CandleInterval, f); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d backtests failed", failed, len(results))
	}
	return nil
}

func writeOutputs(res *backtest.Result, interval string, f *backtestFlags) error {
	if !f.excel && !f.csv && !f.json {
		return nil
	}
	dir := f.outDir
	if dir == "" {
		dir = reporting.DefaultOutputDir(res.Symbol, interval)
	} else if len(f.symbols) != 1 {
		dir = filepath.Join(dir, res.Symbol)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if f.excel {
		if err := reporting.WriteExcel(res, filepath.Join(dir, "report.xlsx")); err != nil {
			return err
		}
	}
	if f.csv {
		if err := reporting.WriteFillsCSV(res.Fills, filepath.Join(dir, "fills.csv")); err != nil {
			return err
		}
		if err := reporting.WriteRoundTripsCSV(res.RoundTrips, filepath.Join(dir, "round_trips.csv")); err != nil {
			return err
		}
		if err := reporting.WriteEquityCSV(res.Equity, filepath.Join(dir, "equity.csv")); err != nil {
			return err
		}
	}
	if f.json {
		if err := reporting.WriteJSON(res, filepath.Join(dir, "result.json")); err != nil {
			return err
		}
	}
	return nil
}

func dateRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.Parse(time.DateOnly, from); err != nil {
			return start, end, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if end, err = time.Parse(time.DateOnly, to); err != nil {
			return start, end, fmt.Errorf("--to: %w", err)
		}
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return start, end, nil
}
