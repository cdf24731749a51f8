// Package store persists fills and the latest position per symbol so a
// restarted runner resumes where it stopped.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// Config for the journal database
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// FillRecord is one executed fill
type FillRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Symbol    string    `gorm:"index;size:32;not null"`
	Side      string    `gorm:"size:8;not null"`
	Price     float64   `gorm:"not null"`
	Quantity  float64   `gorm:"not null"`
	Fee       float64
	Reason    string    `gorm:"size:64"`
	OrderID   string    `gorm:"size:64;index"`
	DryRun    bool
	Timestamp time.Time `gorm:"index"`
	CreatedAt time.Time
}

// PositionRecord is the latest snapshot of one symbol's position
type PositionRecord struct {
	Symbol    string `gorm:"primaryKey;size:32"`
	State     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// PendingOrder is an order whose outcome was still unknown when the runner
// last looked. Next is the position to commit once it fills.
type PendingOrder struct {
	Symbol   string       `json:"symbol"`
	LinkID   string       `json:"link_id"`
	OrderID  string       `json:"order_id,omitempty"`
	Side     types.Side   `json:"side"`
	Action   dca.Action   `json:"action"`
	Next     dca.Snapshot `json:"next"`
	PlacedAt time.Time    `json:"placed_at"`
}

// PendingRecord holds at most one unreconciled order per symbol
type PendingRecord struct {
	Symbol    string `gorm:"primaryKey;size:32"`
	LinkID    string `gorm:"size:64;not null"`
	State     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// Journal is a gorm backed fill and position store
type Journal struct {
	db     *gorm.DB
	dryRun bool
}

var (
	// ErrNoPosition is returned when no snapshot exists for a symbol
	ErrNoPosition = errors.New("no stored position")
	// ErrNoPending is returned when a symbol has no unreconciled order
	ErrNoPending = errors.New("no pending order")
)

// Open opens (creating when needed) the sqlite journal at path. Fills recorded
// through a dry-run journal are flagged so they never mix with real ones.
func Open(path string, dryRun bool) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&FillRecord{}, &PositionRecord{}, &PendingRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &Journal{db: db, dryRun: dryRun}, nil
}

// Close closes the underlying database connection
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordFill appends a fill
func (j *Journal) RecordFill(ctx context.Context, f types.Fill) error {
	rec := FillRecord{
		Symbol:    f.Symbol,
		Side:      string(f.Side),
		Price:     f.Price,
		Quantity:  f.Quantity,
		Fee:       f.Fee,
		Reason:    f.Reason,
		OrderID:   f.OrderID,
		DryRun:    j.dryRun,
		Timestamp: f.Timestamp,
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

// SavePosition upserts the latest snapshot for its symbol
func (j *Journal) SavePosition(ctx context.Context, s dca.Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	rec := PositionRecord{Symbol: s.Symbol, State: string(raw), UpdatedAt: time.Now().UTC()}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(&rec).Error
}

// LoadPosition returns the stored snapshot or ErrNoPosition
func (j *Journal) LoadPosition(ctx context.Context, symbol string) (dca.Snapshot, error) {
	var rec PositionRecord
	err := j.db.WithContext(ctx).Where("symbol = ?", symbol).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dca.Snapshot{}, ErrNoPosition
	}
	if err != nil {
		return dca.Snapshot{}, err
	}

	var s dca.Snapshot
	if err := json.Unmarshal([]byte(rec.State), &s); err != nil {
		return dca.Snapshot{}, fmt.Errorf("decode position %s: %w", symbol, err)
	}
	return s, nil
}

// SavePending upserts the unreconciled order of p.Symbol
func (j *Journal) SavePending(ctx context.Context, p PendingOrder) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	rec := PendingRecord{Symbol: p.Symbol, LinkID: p.LinkID, State: string(raw), UpdatedAt: time.Now().UTC()}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"link_id", "state", "updated_at"}),
	}).Create(&rec).Error
}

// LoadPending returns the unreconciled order of symbol or ErrNoPending
func (j *Journal) LoadPending(ctx context.Context, symbol string) (PendingOrder, error) {
	var rec PendingRecord
	err := j.db.WithContext(ctx).Where("symbol = ?", symbol).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PendingOrder{}, ErrNoPending
	}
	if err != nil {
		return PendingOrder{}, err
	}

	var p PendingOrder
	if err := json.Unmarshal([]byte(rec.State), &p); err != nil {
		return PendingOrder{}, fmt.Errorf("decode pending order %s: %w", symbol, err)
	}
	return p, nil
}

// ClearPending forgets the unreconciled order of symbol. Clearing twice is fine.
func (j *Journal) ClearPending(ctx context.Context, symbol string) error {
	return j.db.WithContext(ctx).Where("symbol = ?", symbol).Delete(&PendingRecord{}).Error
}

// Fills returns the fills of symbol (all symbols when empty) oldest first
func (j *Journal) Fills(ctx context.Context, symbol string, limit int) ([]types.Fill, error) {
	q := j.db.WithContext(ctx).Model(&FillRecord{}).Where("dry_run = ?", j.dryRun)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []FillRecord
	if err := q.Order("timestamp asc, id asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]types.Fill, len(recs))
	for i, r := range recs {
		out[i] = types.Fill{
			Symbol:    r.Symbol,
			Side:      types.Side(r.Side),
			Price:     r.Price,
			Quantity:  r.Quantity,
			Fee:       r.Fee,
			Timestamp: r.Timestamp.UTC(),
			Reason:    r.Reason,
			OrderID:   r.OrderID,
		}
	}
	return out, nil
}
