package data

import (
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Provider loads historical candles from a source such as a file path
type Provider interface {
	Load(source string) ([]types.OHLCV, error)
	Name() string
}

// CSVColumnMapping defines the column positions of a CSV layout.
// DateFormat is tried after the numeric epoch forms.
type CSVColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	MinColumns   int
	DateFormat   string
	HasHeader    bool
}

// Predefined CSV formats
var (
	DefaultCSVFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
		DateFormat:   "2006-01-02 15:04:05",
		HasHeader:    true,
	}

	// BybitCSVFormat matches kline dumps: start time in epoch milliseconds first
	BybitCSVFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
		DateFormat:   "2006-01-02 15:04:05",
		HasHeader:    true,
	}
)
