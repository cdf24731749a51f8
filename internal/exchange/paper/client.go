// Package paper is the dry-run exchange: orders fill instantly against the
// last market price with simulated fee and slippage, and never leave the process.
package paper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// PriceSource supplies the price orders fill at
type PriceSource interface {
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// Config for the simulated account
type Config struct {
	QuoteCurrency string  `mapstructure:"quote_currency"`
	InitialQuote  float64 `mapstructure:"initial_quote" validate:"gte=0"`
	FeeRate       float64 `mapstructure:"fee_rate" validate:"gte=0,lt=1"`
	Slippage      float64 `mapstructure:"slippage" validate:"gte=0,lt=1"`
}

// Client is a goroutine safe simulated exchange
type Client struct {
	cfg    Config
	prices PriceSource
	log    *logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	balances map[string]float64
	orders   map[string]*exchange.OrderStatus
	byLink   map[string]string
	seq      int
}

var _ exchange.Client = (*Client)(nil)

// NewClient creates a paper account funded with cfg.InitialQuote
func NewClient(cfg Config, prices PriceSource, log *logger.Logger) *Client {
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "USDT"
	}
	return &Client{
		cfg:      cfg,
		prices:   prices,
		log:      log.Named("paper"),
		now:      time.Now,
		balances: map[string]float64{cfg.QuoteCurrency: cfg.InitialQuote},
		orders:   make(map[string]*exchange.OrderStatus),
		byLink:   make(map[string]string),
	}
}

func (c *Client) GetBalance(_ context.Context, currency string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[currency], nil
}

func (c *Client) PlaceMarketBuy(ctx context.Context, symbol string, amount float64, linkID string) (*exchange.OrderHandle, error) {
	if amount <= 0 {
		return nil, boterrors.NewBusinessError(boterrors.ErrInvalidOrder, "paper", "PlaceMarketBuy", 0, "amount must be positive")
	}
	price, err := c.prices.GetLastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLink(linkID, "PlaceMarketBuy"); err != nil {
		return nil, err
	}

	fee := amount * c.cfg.FeeRate
	quote := c.cfg.QuoteCurrency
	if c.balances[quote] < amount+fee {
		return nil, boterrors.NewBusinessError(boterrors.ErrInsufficientBalance, "paper", "PlaceMarketBuy", 0,
			fmt.Sprintf("need %.8f %s, have %.8f", amount+fee, quote, c.balances[quote]))
	}

	execPrice := price * (1 + c.cfg.Slippage)
	qty := amount / execPrice
	c.balances[quote] -= amount + fee
	c.balances[c.base(symbol)] += qty

	return c.record(symbol, types.SideBuy, linkID, execPrice, qty, fee), nil
}

func (c *Client) PlaceMarketSell(ctx context.Context, symbol string, qty float64, linkID string) (*exchange.OrderHandle, error) {
	if qty <= 0 {
		return nil, boterrors.NewBusinessError(boterrors.ErrInvalidOrder, "paper", "PlaceMarketSell", 0, "quantity must be positive")
	}
	price, err := c.prices.GetLastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLink(linkID, "PlaceMarketSell"); err != nil {
		return nil, err
	}

	base := c.base(symbol)
	held := c.balances[base]
	if qty > held {
		// float residue from partial exits
		if qty-held > held*1e-9 {
			return nil, boterrors.NewBusinessError(boterrors.ErrInsufficientBalance, "paper", "PlaceMarketSell", 0,
				fmt.Sprintf("need %.8f %s, have %.8f", qty, base, held))
		}
		qty = held
	}

	execPrice := price * (1 - c.cfg.Slippage)
	proceeds := execPrice * qty
	fee := proceeds * c.cfg.FeeRate
	c.balances[base] -= qty
	c.balances[c.cfg.QuoteCurrency] += proceeds - fee

	return c.record(symbol, types.SideSell, linkID, execPrice, qty, fee), nil
}

func (c *Client) GetOrderStatus(_ context.Context, handle exchange.OrderHandle) (*exchange.OrderStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := handle.ID
	if id == "" {
		id = c.byLink[handle.LinkID]
	}
	st, ok := c.orders[id]
	if !ok {
		return nil, boterrors.NewBusinessError(boterrors.ErrOrderNotFound, "paper", "GetOrderStatus", 0, "unknown order")
	}
	out := *st
	return &out, nil
}

// CancelOrder always fails: market orders are filled before anyone can cancel
func (c *Client) CancelOrder(_ context.Context, handle exchange.OrderHandle) error {
	return boterrors.NewBusinessError(boterrors.ErrOrderNotFound, "paper", "CancelOrder", 0, "order already filled")
}

func (c *Client) checkLink(linkID, op string) error {
	if linkID == "" {
		return nil
	}
	if _, dup := c.byLink[linkID]; dup {
		return boterrors.NewBusinessError(boterrors.ErrDuplicateOrder, "paper", op, 0, "duplicate link id "+linkID)
	}
	return nil
}

func (c *Client) record(symbol string, side types.Side, linkID string, price, qty, fee float64) *exchange.OrderHandle {
	c.seq++
	h := exchange.OrderHandle{ID: "paper-" + strconv.Itoa(c.seq), LinkID: linkID, Symbol: symbol, Side: side}
	c.orders[h.ID] = &exchange.OrderStatus{
		Handle:      h,
		State:       exchange.OrderFilled,
		FilledQty:   qty,
		FilledValue: price * qty,
		AvgPrice:    price,
		Fee:         fee,
		UpdatedAt:   c.now(),
	}
	if linkID != "" {
		c.byLink[linkID] = h.ID
	}

	c.log.Info("paper fill",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("price", price),
		zap.Float64("qty", qty),
		zap.Float64("fee", fee))
	return &h
}

func (c *Client) base(symbol string) string {
	return strings.TrimSuffix(symbol, c.cfg.QuoteCurrency)
}

// StaticPrices is a PriceSource backed by a map, used for tests and demos
type StaticPrices struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewStaticPrices creates an empty price map
func NewStaticPrices() *StaticPrices {
	return &StaticPrices{prices: make(map[string]float64)}
}

// Set updates a symbol's price
func (s *StaticPrices) Set(symbol string, price float64) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()
}

func (s *StaticPrices) GetLastPrice(_ context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}
