package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// WriteCSV writes candles in DefaultCSVFormat layout, UTC timestamps
func WriteCSV(w io.Writer, candles []types.OHLCV) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, c := range candles {
		if err := cw.Write([]string{
			c.Timestamp.UTC().Format(DefaultCSVFormat.DateFormat),
			f(c.Open), f(c.High), f(c.Low), f(c.Close), f(c.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DataFilePath is where FindDataFile looks for a category
func DataFilePath(dataRoot, exchange, category, symbol, interval string) string {
	return filepath.Join(dataRoot, exchange, category, symbol, IntervalMinutes(interval), "candles.csv")
}

// SaveCSV writes candles to path, creating parent directories
func SaveCSV(path string, candles []types.OHLCV) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, candles); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
