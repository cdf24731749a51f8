package bybit

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
)

// Instrument holds the spot trading constraints of a symbol
type Instrument struct {
	Symbol         string
	BaseCoin       string
	QuoteCoin      string
	Status         string
	BasePrecision  decimal.Decimal
	QuotePrecision decimal.Decimal
	MinOrderQty    decimal.Decimal
	MaxOrderQty    decimal.Decimal
	MinOrderAmt    decimal.Decimal
	MaxOrderAmt    decimal.Decimal
}

type instrumentFetcher func(ctx context.Context, symbol string) (*Instrument, error)

// InstrumentCache keeps instrument info for a TTL so every order does not
// cost an extra market data request.
type InstrumentCache struct {
	fetch instrumentFetcher
	items *cache.Cache
}

// NewInstrumentCache creates a cache; ttl defaults to one hour
func NewInstrumentCache(fetch instrumentFetcher, ttl time.Duration) *InstrumentCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &InstrumentCache{fetch: fetch, items: cache.New(ttl, 2*ttl)}
}

// Get returns the cached instrument or fetches it
func (ic *InstrumentCache) Get(ctx context.Context, symbol string) (*Instrument, error) {
	if v, ok := ic.items.Get(symbol); ok {
		return v.(*Instrument), nil
	}
	inst, err := ic.fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}
	ic.items.SetDefault(symbol, inst)
	return inst, nil
}

// Invalidate drops a symbol, used after the exchange rejects a size
func (ic *InstrumentCache) Invalidate(symbol string) {
	ic.items.Delete(symbol)
}

func (c *Client) fetchInstrument(ctx context.Context, symbol string) (*Instrument, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return nil, transportError("GetInstrumentInfo", err)
	}
	return parseInstrument(result, symbol)
}

func parseInstrument(response interface{}, symbol string) (*Instrument, error) {
	var instrumentResult struct {
		List []struct {
			Symbol        string `json:"symbol"`
			BaseCoin      string `json:"baseCoin"`
			QuoteCoin     string `json:"quoteCoin"`
			Status        string `json:"status"`
			LotSizeFilter struct {
				BasePrecision  string `json:"basePrecision"`
				QuotePrecision string `json:"quotePrecision"`
				MinOrderQty    string `json:"minOrderQty"`
				MaxOrderQty    string `json:"maxOrderQty"`
				MinOrderAmt    string `json:"minOrderAmt"`
				MaxOrderAmt    string `json:"maxOrderAmt"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := decodeResult("GetInstrumentInfo", response, &instrumentResult); err != nil {
		return nil, err
	}

	for _, item := range instrumentResult.List {
		if item.Symbol != symbol {
			continue
		}
		lot := item.LotSizeFilter
		return &Instrument{
			Symbol:         item.Symbol,
			BaseCoin:       item.BaseCoin,
			QuoteCoin:      item.QuoteCoin,
			Status:         item.Status,
			BasePrecision:  decOrZero(lot.BasePrecision),
			QuotePrecision: decOrZero(lot.QuotePrecision),
			MinOrderQty:    decOrZero(lot.MinOrderQty),
			MaxOrderQty:    decOrZero(lot.MaxOrderQty),
			MinOrderAmt:    decOrZero(lot.MinOrderAmt),
			MaxOrderAmt:    decOrZero(lot.MaxOrderAmt),
		}, nil
	}
	return nil, boterrors.NewBusinessError(boterrors.ErrInvalidOrder, component, "GetInstrumentInfo", 0,
		fmt.Sprintf("instrument %s not found", symbol))
}

// FormatQty floors a base quantity to the instrument precision and checks limits
func (i *Instrument) FormatQty(qty float64) (string, error) {
	d := floorToStep(decimal.NewFromFloat(qty), i.BasePrecision)
	if d.LessThanOrEqual(decimal.Zero) || (!i.MinOrderQty.IsZero() && d.LessThan(i.MinOrderQty)) {
		return "", boterrors.NewBusinessError(boterrors.ErrBelowMinimum, component, "FormatQty", 0,
			fmt.Sprintf("quantity %s below minimum %s", d, i.MinOrderQty))
	}
	if !i.MaxOrderQty.IsZero() && d.GreaterThan(i.MaxOrderQty) {
		d = floorToStep(i.MaxOrderQty, i.BasePrecision)
	}
	return d.String(), nil
}

// FormatAmount floors a quote notional to the instrument precision and checks limits
func (i *Instrument) FormatAmount(amount float64) (string, error) {
	d := floorToStep(decimal.NewFromFloat(amount), i.QuotePrecision)
	if d.LessThanOrEqual(decimal.Zero) || (!i.MinOrderAmt.IsZero() && d.LessThan(i.MinOrderAmt)) {
		return "", boterrors.NewBusinessError(boterrors.ErrBelowMinimum, component, "FormatAmount", 0,
			fmt.Sprintf("amount %s below minimum %s", d, i.MinOrderAmt))
	}
	if !i.MaxOrderAmt.IsZero() && d.GreaterThan(i.MaxOrderAmt) {
		return "", boterrors.NewBusinessError(boterrors.ErrInvalidOrder, component, "FormatAmount", 0,
			fmt.Sprintf("amount %s above maximum %s", d, i.MaxOrderAmt))
	}
	return d.String(), nil
}

func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.LessThanOrEqual(decimal.Zero) {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

func decOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
