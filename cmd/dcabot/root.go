package main

import (
	"github.com/spf13/cobra"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/config"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "dcabot",
		Short:         "Spot DCA trading bot with backtesting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (yaml or json)")
	root.PersistentFlags().StringVar(&g.envFile, "env", ".env", "env file with credentials")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(newRunCmd(g), newBacktestCmd(g), newDownloadCmd(g), newJournalCmd(g), newVersionCmd())
	return root
}

// load reads the env file and config, then builds the process logger
func (g *globalFlags) load() (*config.Config, *logger.Logger, error) {
	if err := config.LoadEnv(g.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	log, err := logger.NewFromConfig(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
