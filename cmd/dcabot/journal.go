package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/store"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/reporting"
)

func newJournalCmd(g *globalFlags) *cobra.Command {
	var (
		symbol string
		limit  int
		csvOut string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recorded fills and the saved position for a symbol",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			if !cfg.Store.Enabled {
				return errors.New("store is disabled in config")
			}
			if symbol == "" {
				symbol = cfg.Symbols[0]
			}
			symbol = strings.ToUpper(symbol)

			j, err := store.Open(cfg.Store.Path, dryRun || cfg.DryRun)
			if err != nil {
				return err
			}
			defer j.Close()

			fills, err := j.Fills(cmd.Context(), symbol, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			reporting.WriteFills(out, symbol, fills)

			pos, err := j.LoadPosition(cmd.Context(), symbol)
			switch {
			case errors.Is(err, store.ErrNoPosition):
				fmt.Fprintln(out, "no saved position")
			case err != nil:
				return err
			default:
				reporting.WriteStatus(out, map[string]reporting.Status{symbol: {State: "SAVED", Position: pos}})
			}

			if csvOut != "" {
				return reporting.WriteFillsCSV(fills, csvOut)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol (default: first config symbol)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum fills to show")
	cmd.Flags().StringVar(&csvOut, "csv", "", "also export the fills to this CSV file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "read the dry-run journal")
	return cmd
}
