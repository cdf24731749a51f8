// Package config loads the application configuration: a YAML or JSON file,
// overridden by DCABOT_* environment variables, with an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/backtest"
	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange/bybit"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange/paper"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/feed"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/live"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/monitoring"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/notifications"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/risk"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/store"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/strategy"
	pkgconfig "github.com/jang1230/upbit-auto-trader-sub000/pkg/config"
)

// EnvPrefix namespaces environment overrides, e.g. DCABOT_LIVE_DECISION_RATE
const EnvPrefix = "DCABOT"

// Feed sources
const (
	FeedWebsocket = "websocket"
	FeedPoll      = "poll"
)

// Config is the whole application configuration
type Config struct {
	Symbols []string `mapstructure:"symbols" validate:"required,min=1,dive,required"`
	DryRun  bool     `mapstructure:"dry_run"`

	Exchange   bybit.Config         `mapstructure:"exchange"`
	Paper      paper.Config         `mapstructure:"paper"`
	RateLimits exchange.Limits      `mapstructure:"rate_limits"`
	Retry      exchange.RetryConfig `mapstructure:"retry"`
	Feed       FeedConfig           `mapstructure:"feed"`
	Live       live.Config          `mapstructure:"live"`
	Risk       risk.Config          `mapstructure:"risk"`
	Strategy   strategy.Config      `mapstructure:"strategy"`

	// DCAFile, when set, replaces the inline DCA plan
	DCAFile string                      `mapstructure:"dca_file"`
	DCA     pkgconfig.DcaStrategyConfig `mapstructure:"dca"`

	Backtest backtest.Config              `mapstructure:"backtest"`
	Telegram notifications.TelegramConfig `mapstructure:"telegram"`
	Store    store.Config                 `mapstructure:"store"`
	HTTP     monitoring.ServerConfig      `mapstructure:"http"`
	Logging  logger.Config                `mapstructure:"logging"`
}

// FeedConfig selects the market data transport
type FeedConfig struct {
	Source       string               `mapstructure:"source" validate:"oneof=websocket poll"`
	URL          string               `mapstructure:"url"`
	PollInterval time.Duration        `mapstructure:"poll_interval" validate:"gt=0"`
	Reconnect    feed.ReconnectConfig `mapstructure:"reconnect"`
}

// RunnerConfig returns the live settings for one symbol
func (c *Config) RunnerConfig(symbol string) live.Config {
	out := c.Live
	out.Symbol = symbol
	if out.QuoteCurrency == "" {
		out.QuoteCurrency = c.Paper.QuoteCurrency
	}
	return out
}

// LoadEnv loads KEY=VALUE pairs from file into the process environment.
// A missing file is not an error.
func LoadEnv(file string) error {
	if file == "" {
		file = ".env"
	}
	if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", file, err)
	}
	return nil
}

// Load reads path (optional), applies environment overrides, resolves the
// DCA plan and validates everything. Errors carry the configuration category.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, boterrors.WrapError(err, boterrors.ErrorCategoryConfiguration, "config", "Load")
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the exchange SDK's conventional variables work too
	_ = v.BindEnv("exchange.api_key", EnvPrefix+"_EXCHANGE_API_KEY", "BYBIT_API_KEY")
	_ = v.BindEnv("exchange.api_secret", EnvPrefix+"_EXCHANGE_API_SECRET", "BYBIT_API_SECRET")
	_ = v.BindEnv("telegram.token", EnvPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	for i, s := range cfg.Symbols {
		cfg.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	if cfg.DCAFile != "" {
		plan, err := pkgconfig.LoadStrategyFile(cfg.DCAFile)
		if err != nil {
			return nil, err
		}
		cfg.DCA = plan
	} else {
		plan, err := pkgconfig.Prepare(cfg.DCA)
		if err != nil {
			return nil, err
		}
		cfg.DCA = plan
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the struct tag rules plus the rules that span sections
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.DryRun && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return boterrors.NewBotError(boterrors.ErrorCategoryCredentials, "config", "Validate",
			"exchange api_key and api_secret are required unless dry_run is set")
	}
	if c.Feed.Source == FeedWebsocket && c.Feed.URL == "" {
		return errors.New("feed.url is required for the websocket feed")
	}
	if _, err := strategy.New(c.Strategy); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	dca := pkgconfig.NewDefaultDcaStrategyConfig()
	limits := exchange.DefaultLimits()
	retry := exchange.DefaultRetryConfig()
	reconnect := feed.DefaultReconnectConfig()
	lv := live.DefaultConfig("")
	bt := backtest.DefaultConfig()

	v.SetDefault("symbols", []string{"BTCUSDT"})
	v.SetDefault("dry_run", true)

	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.testnet", false)
	v.SetDefault("exchange.demo", false)
	v.SetDefault("exchange.account_type", "UNIFIED")
	v.SetDefault("exchange.instrument_ttl", time.Hour)

	v.SetDefault("paper.quote_currency", "USDT")
	v.SetDefault("paper.initial_quote", dca.TotalCapital)
	v.SetDefault("paper.fee_rate", bt.FeeRate)
	v.SetDefault("paper.slippage", bt.Slippage)

	for name, l := range map[string]exchange.Limit{"order": limits.Order, "account": limits.Account, "market": limits.Market} {
		v.SetDefault("rate_limits."+name+".requests", l.Requests)
		v.SetDefault("rate_limits."+name+".interval", l.Interval)
	}

	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.base_delay", retry.BaseDelay)
	v.SetDefault("retry.max_delay", retry.MaxDelay)
	v.SetDefault("retry.rate_limit_cooldown", retry.RateLimitCooldown)
	v.SetDefault("retry.call_timeout", retry.CallTimeout)
	v.SetDefault("retry.jitter", retry.Jitter)

	v.SetDefault("feed.source", FeedWebsocket)
	v.SetDefault("feed.url", feed.BybitSpotURL)
	v.SetDefault("feed.poll_interval", 2*time.Second)
	v.SetDefault("feed.reconnect.reconnect_base", reconnect.BaseDelay)
	v.SetDefault("feed.reconnect.reconnect_max", reconnect.MaxDelay)
	v.SetDefault("feed.reconnect.warn_after", reconnect.WarnAfter)

	v.SetDefault("live.quote_currency", lv.QuoteCurrency)
	v.SetDefault("live.candle_interval", lv.CandleInterval)
	v.SetDefault("live.history_length", lv.HistoryLength)
	v.SetDefault("live.decision_rate", lv.DecisionRate)
	v.SetDefault("live.observer_rate", lv.ObserverRate)
	v.SetDefault("live.order_timeout", lv.OrderTimeout)
	v.SetDefault("live.poll_interval", lv.PollInterval)
	v.SetDefault("live.stop_timeout", lv.StopTimeout)
	v.SetDefault("live.exit_on_signal", lv.ExitOnSignal)
	v.SetDefault("live.check_balance", lv.CheckBalance)

	v.SetDefault("risk.hard_stop_loss_pct", 0.0)
	v.SetDefault("risk.take_profit_pct", 0.0)
	v.SetDefault("risk.trailing_stop_pct", 0.0)
	v.SetDefault("risk.daily_loss_limit_pct", 0.0)
	v.SetDefault("risk.timezone", "")

	v.SetDefault("strategy.name", "rsi")
	v.SetDefault("strategy.rsi_period", 14)
	v.SetDefault("strategy.oversold", 30.0)
	v.SetDefault("strategy.overbought", 70.0)
	v.SetDefault("strategy.fast_period", 9)
	v.SetDefault("strategy.slow_period", 21)

	v.SetDefault("dca_file", "")
	v.SetDefault("dca.enabled", dca.Enabled)
	v.SetDefault("dca.total_capital", dca.TotalCapital)
	v.SetDefault("dca.levels", dca.Levels)
	v.SetDefault("dca.take_profits", dca.TakeProfits)
	v.SetDefault("dca.stop_losses", dca.StopLosses)
	v.SetDefault("dca.take_profit_pct", 0.0)
	v.SetDefault("dca.stop_loss_pct", 0.0)
	v.SetDefault("dca.dust_epsilon", dca.DustEpsilon)

	v.SetDefault("backtest.symbol", "")
	v.SetDefault("backtest.initial_capital", bt.InitialCapital)
	v.SetDefault("backtest.fee_rate", bt.FeeRate)
	v.SetDefault("backtest.slippage", bt.Slippage)
	v.SetDefault("backtest.risk_free_rate", bt.RiskFreeRate)
	v.SetDefault("backtest.window", 0)
	v.SetDefault("backtest.exit_on_signal", false)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.messages_per_second", 1.0)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "data/journal.db")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.stale_after", 2*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.file_dir", "")
}
