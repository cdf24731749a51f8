package bybit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// klineIntervals maps config style intervals onto Bybit interval codes
var klineIntervals = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
	"1w":  "W",
}

// IntervalCode returns Bybit's code for interval ("5m" -> "5")
func IntervalCode(interval string) (string, error) {
	code, ok := klineIntervals[interval]
	if !ok {
		return "", fmt.Errorf("unsupported interval %q", interval)
	}
	return code, nil
}

// IntervalDuration returns the candle length of interval
func IntervalDuration(interval string) (time.Duration, error) {
	if interval == "1w" {
		return 7 * 24 * time.Hour, nil
	}
	if interval == "1d" {
		return 24 * time.Hour, nil
	}
	if _, ok := klineIntervals[interval]; !ok {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return time.ParseDuration(interval)
}

// GetCandles returns up to limit closed candles in chronological order
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	code, err := IntervalCode(interval)
	if err != nil {
		return nil, err
	}
	length, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 999 {
		limit = 999
	}

	reqParams := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": code,
		// one extra to make up for the candle still forming
		"limit": limit + 1,
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(reqParams).GetMarketKline(ctx)
	if err != nil {
		return nil, transportError("GetMarketKline", err)
	}

	candles, err := parseKlines(result, symbol)
	if err != nil {
		return nil, err
	}
	candles = closedOnly(candles, length, time.Now())
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// GetLastPrice gets the latest traded price for a symbol
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, transportError("GetMarketTickers", err)
	}

	var tickerResult struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := decodeResult("GetMarketTickers", result, &tickerResult); err != nil {
		return 0, err
	}
	for _, t := range tickerResult.List {
		if t.Symbol == symbol {
			return parseFloat64(t.LastPrice), nil
		}
	}
	return 0, fmt.Errorf("no ticker data for %s", symbol)
}

// parseKlines decodes the kline list. Bybit returns newest first as
// [startTime, open, high, low, close, volume, turnover].
func parseKlines(response interface{}, symbol string) ([]types.OHLCV, error) {
	var klineResult struct {
		List [][]string `json:"list"`
	}
	if err := decodeResult("GetMarketKline", response, &klineResult); err != nil {
		return nil, err
	}

	candles := make([]types.OHLCV, 0, len(klineResult.List))
	for _, item := range klineResult.List {
		if len(item) < 6 {
			continue
		}
		candles = append(candles, types.OHLCV{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(parseInt64(item[0])).UTC(),
			Open:      parseFloat64(item[1]),
			High:      parseFloat64(item[2]),
			Low:       parseFloat64(item[3]),
			Close:     parseFloat64(item[4]),
			Volume:    parseFloat64(item[5]),
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

func closedOnly(candles []types.OHLCV, length time.Duration, now time.Time) []types.OHLCV {
	for len(candles) > 0 && candles[len(candles)-1].Timestamp.Add(length).After(now) {
		candles = candles[:len(candles)-1]
	}
	return candles
}

// GetCandlesRange returns closed candles with start <= open time <= end,
// paging backwards from end 1000 candles at a time.
func (c *Client) GetCandlesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.OHLCV, error) {
	code, err := IntervalCode(interval)
	if err != nil {
		return nil, err
	}
	length, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if end.IsZero() || end.After(time.Now()) {
		end = time.Now()
	}

	page := func(pageEnd time.Time) ([]types.OHLCV, error) {
		params := map[string]interface{}{
			"category": c.category,
			"symbol":   symbol,
			"interval": code,
			"start":    start.UnixMilli(),
			"end":      pageEnd.UnixMilli(),
			"limit":    1000,
		}
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
		if err != nil {
			return nil, transportError("GetMarketKline", err)
		}
		return parseKlines(result, symbol)
	}

	candles, err := collectRange(ctx, page, start, end)
	if err != nil {
		return nil, err
	}
	return closedOnly(candles, length, time.Now()), nil
}

// collectRange calls page with a moving end until it returns nothing new or
// reaches start. Pages are chronological; the result is too.
func collectRange(ctx context.Context, page func(end time.Time) ([]types.OHLCV, error), start, end time.Time) ([]types.OHLCV, error) {
	var chunks [][]types.OHLCV
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := page(end)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		chunks = append(chunks, batch)
		total += len(batch)

		first := batch[0].Timestamp
		if !first.After(start) || !first.Before(end) {
			break
		}
		end = first.Add(-time.Millisecond)
	}

	out := make([]types.OHLCV, 0, total)
	for i := len(chunks) - 1; i >= 0; i-- {
		out = append(out, chunks[i]...)
	}
	return out, nil
}
