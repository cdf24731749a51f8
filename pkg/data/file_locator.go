package data

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IntervalMinutes converts "5m", "1h", "4h", "1d" into minutes ("5", "60", ...).
// Plain numbers are returned unchanged.
func IntervalMinutes(interval string) string {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if _, err := strconv.Atoi(interval); err == nil || len(interval) < 2 {
		return interval
	}
	num, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil {
		return interval
	}
	switch interval[len(interval)-1] {
	case 'm':
		return strconv.Itoa(num)
	case 'h':
		return strconv.Itoa(num * 60)
	case 'd':
		return strconv.Itoa(num * 24 * 60)
	case 'w':
		return strconv.Itoa(num * 7 * 24 * 60)
	}
	return interval
}

// FindDataFile locates data/{exchange}/{category}/{SYMBOL}/{minutes}/candles.csv
func FindDataFile(dataRoot, exchange, symbol, interval string) (string, error) {
	symbol = strings.ToUpper(symbol)
	minutes := IntervalMinutes(interval)

	var categories []string
	switch strings.ToLower(exchange) {
	case "bybit":
		categories = []string{"spot", "linear", "inverse"}
	default:
		categories = []string{"spot", "futures", "linear", "inverse"}
	}

	tried := make([]string, 0, len(categories))
	for _, category := range categories {
		path := filepath.Join(dataRoot, exchange, category, symbol, minutes, "candles.csv")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		tried = append(tried, path)
	}
	return "", fmt.Errorf("no data file for %s %s %s, tried %s", exchange, symbol, interval, strings.Join(tried, ", "))
}
