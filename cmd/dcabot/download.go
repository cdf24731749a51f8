package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange/bybit"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/data"
)

func newDownloadCmd(g *globalFlags) *cobra.Command {
	var (
		symbols   []string
		intervals []string
		from, to  string
		dataRoot  string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download Bybit spot candles into the backtest data layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			start, end, err := dateRange(from, to)
			if err != nil {
				return err
			}
			if start.IsZero() {
				start = time.Now().UTC().AddDate(0, -1, 0)
			}
			if len(symbols) == 0 {
				symbols = cfg.Symbols
			}
			if len(intervals) == 0 {
				intervals = []string{cfg.Live.CandleInterval}
			}

			client := bybit.NewClient(cfg.Exchange, log)
			for _, sym := range symbols {
				sym = strings.ToUpper(sym)
				for _, iv := range intervals {
					candles, err := client.GetCandlesRange(cmd.Context(), sym, iv, start, end)
					if err != nil {
						return fmt.Errorf("%s %s: %w", sym, iv, err)
					}
					if len(candles) == 0 {
						log.Warn("no candles returned", zap.String("symbol", sym), zap.String("interval", iv))
						continue
					}
					path := data.DataFilePath(dataRoot, "bybit", "spot", sym, iv)
					if err := data.SaveCSV(path, candles); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d candles %s .. %s -> %s\n", sym, iv, len(candles),
						candles[0].Timestamp.Format(time.DateTime), candles[len(candles)-1].Timestamp.Format(time.DateTime), path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&symbols, "symbol", nil, "symbols (default: config symbols)")
	cmd.Flags().StringSliceVar(&intervals, "interval", nil, "intervals such as 5m,1h (default: live.candle_interval)")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: one month ago)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: now)")
	cmd.Flags().StringVar(&dataRoot, "data-root", "data", "data directory root")
	return cmd
}
