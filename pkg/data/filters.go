package data

import (
	"sort"
	"time"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// FilterByPeriod keeps the trailing period of sorted candles
func FilterByPeriod(candles []types.OHLCV, period time.Duration) []types.OHLCV {
	if period <= 0 || len(candles) == 0 {
		return candles
	}
	cutoff := candles[len(candles)-1].Timestamp.Add(-period)
	i := sort.Search(len(candles), func(i int) bool { return !candles[i].Timestamp.Before(cutoff) })
	return candles[i:]
}

// FilterByDateRange keeps sorted candles with start <= ts <= end.
// A zero start or end leaves that side open.
func FilterByDateRange(candles []types.OHLCV, start, end time.Time) []types.OHLCV {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(candles), func(i int) bool { return !candles[i].Timestamp.Before(start) })
	}
	hi := len(candles)
	if !end.IsZero() {
		hi = sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp.After(end) })
	}
	if lo >= hi {
		return nil
	}
	return candles[lo:hi]
}
