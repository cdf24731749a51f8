package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// ErrNoData is returned when a source holds no usable candle
var ErrNoData = errors.New("no candles loaded")

// CSVProvider loads candles from CSV files
type CSVProvider struct {
	format CSVColumnMapping
	symbol string
	log    *logger.Logger
}

var _ Provider = (*CSVProvider)(nil)

// NewCSVProvider creates a CSV provider with the default layout
func NewCSVProvider(log *logger.Logger) *CSVProvider {
	return NewCSVProviderWithFormat(DefaultCSVFormat, log)
}

// NewCSVProviderWithFormat creates a CSV provider with a custom layout
func NewCSVProviderWithFormat(format CSVColumnMapping, log *logger.Logger) *CSVProvider {
	if log == nil {
		log = logger.NewNop()
	}
	return &CSVProvider{format: format, log: log.Named("csv")}
}

// WithSymbol tags every loaded candle with symbol
func (p *CSVProvider) WithSymbol(symbol string) *CSVProvider {
	out := *p
	out.symbol = strings.ToUpper(symbol)
	return &out
}

func (p *CSVProvider) Name() string { return "csv" }

// Load reads a CSV file. Malformed rows are skipped with a warning; the
// result is sorted by time with duplicate timestamps dropped.
func (p *CSVProvider) Load(source string) ([]types.OHLCV, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open candles %s: %w", source, err)
	}
	defer f.Close()

	candles, err := p.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(source), err)
	}
	p.log.Info("candles loaded", zap.String("file", filepath.Base(source)), zap.Int("count", len(candles)))
	return candles, nil
}

// Read parses candles from r
func (p *CSVProvider) Read(r io.Reader) ([]types.OHLCV, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	fm := p.format
	line := 0
	if fm.HasHeader {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return nil, ErrNoData
			}
			return nil, err
		}
		line++
	}

	var out []types.OHLCV
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		c, err := p.parse(record)
		if err != nil {
			skipped++
			p.log.Warn("skipping row", zap.Int("line", line), logger.ErrorField(err))
			continue
		}
		out = append(out, c)
	}

	if len(out) == 0 {
		return nil, ErrNoData
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	out = dedupe(out)
	if skipped > 0 {
		p.log.Warn("rows skipped", zap.Int("skipped", skipped), zap.Int("kept", len(out)))
	}
	return out, nil
}

func (p *CSVProvider) parse(record []string) (types.OHLCV, error) {
	fm := p.format
	if len(record) < fm.MinColumns {
		return types.OHLCV{}, fmt.Errorf("expected %d columns, got %d", fm.MinColumns, len(record))
	}
	ts, err := ParseTimestamp(record[fm.TimestampCol], fm.DateFormat)
	if err != nil {
		return types.OHLCV{}, err
	}

	var vals [5]float64
	for i, col := range []int{fm.OpenCol, fm.HighCol, fm.LowCol, fm.CloseCol, fm.VolumeCol} {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return types.OHLCV{}, fmt.Errorf("column %d: %w", col, err)
		}
		vals[i] = v
	}
	c := types.OHLCV{
		Symbol:    p.symbol,
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}
	if err := validCandle(c); err != nil {
		return types.OHLCV{}, err
	}
	return c, nil
}

// ParseTimestamp accepts epoch seconds, epoch milliseconds, RFC 3339 or layout
func ParseTimestamp(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func validCandle(c types.OHLCV) error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("non-positive price at %s", c.Timestamp.Format(time.RFC3339))
	}
	if c.High < c.Low || c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("inconsistent high/low at %s", c.Timestamp.Format(time.RFC3339))
	}
	return nil
}

func dedupe(sorted []types.OHLCV) []types.OHLCV {
	out := sorted[:1]
	for _, c := range sorted[1:] {
		if c.Timestamp.Equal(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Validate checks prices and chronological order of candles
func Validate(candles []types.OHLCV) error {
	if len(candles) == 0 {
		return ErrNoData
	}
	for i, c := range candles {
		if err := validCandle(c); err != nil {
			return fmt.Errorf("candle %d: %w", i, err)
		}
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return fmt.Errorf("candle %d: timestamps must increase", i)
		}
	}
	return nil
}
