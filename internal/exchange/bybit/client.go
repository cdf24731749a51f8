package bybit

import (
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

// DemoBaseURL is Bybit's demo trading environment
const DemoBaseURL = "https://api-demo.bybit.com"

// Client implements exchange.Client and exchange.MarketData for Bybit spot
type Client struct {
	httpClient  *bybit_api.Client
	instruments *InstrumentCache
	category    string
	accountType string
	testnet     bool
	demo        bool
	log         *logger.Logger
}

var (
	_ exchange.Client     = (*Client)(nil)
	_ exchange.MarketData = (*Client)(nil)
)

// Config holds the configuration for the Bybit client
type Config struct {
	APIKey        string        `mapstructure:"api_key"`
	APISecret     string        `mapstructure:"api_secret"`
	Testnet       bool          `mapstructure:"testnet"`
	Demo          bool          `mapstructure:"demo"`
	AccountType   string        `mapstructure:"account_type"`
	InstrumentTTL time.Duration `mapstructure:"instrument_ttl"`
}

// NewClient creates a new Bybit client
func NewClient(config Config, log *logger.Logger) *Client {
	var baseURL string
	switch {
	case config.Demo:
		baseURL = DemoBaseURL
	case config.Testnet:
		baseURL = bybit_api.TESTNET
	default:
		baseURL = bybit_api.MAINNET
	}
	if config.AccountType == "" {
		config.AccountType = "UNIFIED"
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	c := &Client{
		httpClient:  httpClient,
		category:    "spot",
		accountType: config.AccountType,
		testnet:     config.Testnet,
		demo:        config.Demo,
		log:         log.Named("bybit"),
	}
	c.instruments = NewInstrumentCache(c.fetchInstrument, config.InstrumentTTL)

	c.log.Info("bybit client ready", zap.String("environment", c.Environment()))
	return c
}

// Environment names the endpoint set in use
func (c *Client) Environment() string {
	switch {
	case c.demo:
		return "demo"
	case c.testnet:
		return "testnet"
	default:
		return "mainnet"
	}
}
