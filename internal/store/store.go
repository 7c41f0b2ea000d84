// Package store persists market data for replay. Ticks land in
// postgres through the live recorder and come back out through a
// paginated cursor, so a backtest never loads a whole window into
// memory at once.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/model"
	"main/internal/model/enum"
)

const pageSize = 2000

// TickRecord is one executed trade row.
type TickRecord struct {
	ID           uint            `gorm:"primaryKey"`
	Instrument   string          `gorm:"index:idx_ticks_window,priority:1;size:32;not null"`
	TimestampMs  int64           `gorm:"index:idx_ticks_window,priority:2;not null"`
	SequentialID int64           `gorm:"uniqueIndex:uidx_ticks_seq;not null"`
	Price        decimal.Decimal `gorm:"type:numeric(32,12);not null"`
	Volume       decimal.Decimal `gorm:"type:numeric(32,12);not null"`
	Side         int16           `gorm:"not null"`
}

func (TickRecord) TableName() string { return "ticks" }

// CandleRecord is one closed 1-minute bucket, kept so chart backfills
// do not rescan the tick table.
type CandleRecord struct {
	ID            uint            `gorm:"primaryKey"`
	Instrument    string          `gorm:"index:idx_candles_window,priority:1;size:32;not null"`
	BucketStartMs int64           `gorm:"index:idx_candles_window,priority:2;not null"`
	Open          decimal.Decimal `gorm:"type:numeric(32,12);not null"`
	High          decimal.Decimal `gorm:"type:numeric(32,12);not null"`
	Low           decimal.Decimal `gorm:"type:numeric(32,12);not null"`
	Close         decimal.Decimal `gorm:"type:numeric(32,12);not null"`
	Volume        decimal.Decimal `gorm:"type:numeric(32,12);not null"`
}

func (CandleRecord) TableName() string { return "candles" }

// MetaRecord notes which window a populate run covered, so a later run
// can tell a cache hit from a gap.
type MetaRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Instrument string `gorm:"uniqueIndex:uidx_meta_instrument;size:32;not null"`
	FromMs     int64  `gorm:"not null"`
	ToMs       int64  `gorm:"not null"`
	Ticks      int64  `gorm:"not null"`
	UpdatedAt  time.Time
}

func (MetaRecord) TableName() string { return "replay_meta" }

// Store reads and writes historical market data.
type Store struct {
	db *gorm.DB
}

// New wraps db and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&TickRecord{}, &CandleRecord{}, &MetaRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate store schema")
	}
	return &Store{db: db}, nil
}

// SaveTicks appends a batch of trades, ignoring rows already recorded.
func (s *Store) SaveTicks(ctx context.Context, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	records := make([]TickRecord, 0, len(ticks))
	for _, t := range ticks {
		records = append(records, TickRecord{
			Instrument:   string(t.Instrument),
			TimestampMs:  t.TimestampMs,
			SequentialID: t.SequentialID,
			Price:        t.Price,
			Volume:       t.Volume,
			Side:         int16(t.Side),
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, pageSize).Error
}

// SaveCandles appends closed buckets, ignoring duplicates.
func (s *Store) SaveCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	records := make([]CandleRecord, 0, len(candles))
	for _, c := range candles {
		records = append(records, CandleRecord{
			Instrument:    string(c.Instrument),
			BucketStartMs: c.BucketStartMs,
			Open:          c.Open,
			High:          c.High,
			Low:           c.Low,
			Close:         c.Close,
			Volume:        c.Volume,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, pageSize).Error
}

// EachTicks walks the window in (timestamp, sequential id) order,
// page by page, invoking fn per tick. fn returning an error stops the
// walk.
func (s *Store) EachTicks(ctx context.Context, instrument model.InstrumentCode, fromMs, toMs int64, fn func(model.Tick) error) error {
	lastSeq := int64(-1)
	for {
		var page []TickRecord
		q := s.db.WithContext(ctx).
			Where("timestamp_ms >= ? AND timestamp_ms < ?", fromMs, toMs).
			Where("sequential_id > ?", lastSeq).
			Order("sequential_id ASC").
			Limit(pageSize)
		if instrument != "" {
			q = q.Where("instrument = ?", string(instrument))
		}
		if err := q.Find(&page).Error; err != nil {
			return errors.Wrap(err, "scan tick page")
		}
		if len(page) == 0 {
			return nil
		}

		for _, rec := range page {
			if err := fn(rec.tick()); err != nil {
				return err
			}
		}
		lastSeq = page[len(page)-1].SequentialID
	}
}

// EachCandles walks stored 1-minute buckets in bucket order, page by
// page.
func (s *Store) EachCandles(ctx context.Context, instrument model.InstrumentCode, fromMs, toMs int64, fn func(model.Candle) error) error {
	lastBucket, lastID := int64(-1), uint(0)
	for {
		var page []CandleRecord
		q := s.db.WithContext(ctx).
			Where("bucket_start_ms >= ? AND bucket_start_ms < ?", fromMs, toMs).
			Where("bucket_start_ms > ? OR (bucket_start_ms = ? AND id > ?)", lastBucket, lastBucket, lastID).
			Order("bucket_start_ms ASC, id ASC").
			Limit(pageSize)
		if instrument != "" {
			q = q.Where("instrument = ?", string(instrument))
		}
		if err := q.Find(&page).Error; err != nil {
			return errors.Wrap(err, "scan candle page")
		}
		if len(page) == 0 {
			return nil
		}

		for _, rec := range page {
			if err := fn(rec.candle()); err != nil {
				return err
			}
		}
		tail := page[len(page)-1]
		lastBucket, lastID = tail.BucketStartMs, tail.ID
	}
}

// Count reports how many ticks the window holds.
func (s *Store) Count(ctx context.Context, instrument model.InstrumentCode, fromMs, toMs int64) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(&TickRecord{}).
		Where("timestamp_ms >= ? AND timestamp_ms < ?", fromMs, toMs)
	if instrument != "" {
		q = q.Where("instrument = ?", string(instrument))
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count ticks")
	}
	return n, nil
}

// OrderBy selects the Get scan direction.
type OrderBy string

const (
	OrderAsc  OrderBy = "ASC"
	OrderDesc OrderBy = "DESC"
)

// Get returns one page of ticks for inspection tooling.
func (s *Store) Get(ctx context.Context, instrument model.InstrumentCode, offset, length int, orderBy OrderBy) ([]model.Tick, error) {
	if orderBy != OrderDesc {
		orderBy = OrderAsc
	}
	var page []TickRecord
	q := s.db.WithContext(ctx).
		Order("sequential_id " + string(orderBy)).
		Offset(offset).
		Limit(length)
	if instrument != "" {
		q = q.Where("instrument = ?", string(instrument))
	}
	if err := q.Find(&page).Error; err != nil {
		return nil, errors.Wrap(err, "get ticks")
	}

	out := make([]model.Tick, 0, len(page))
	for _, rec := range page {
		out = append(out, rec.tick())
	}
	return out, nil
}

// Meta returns the populate record for instrument, or nil when none
// exists yet.
func (s *Store) Meta(ctx context.Context, instrument model.InstrumentCode) (*MetaRecord, error) {
	var rec MetaRecord
	err := s.db.WithContext(ctx).
		Where("instrument = ?", string(instrument)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load meta")
	}
	return &rec, nil
}

// SetMeta upserts the populate record for instrument.
func (s *Store) SetMeta(ctx context.Context, instrument model.InstrumentCode, fromMs, toMs, ticks int64) error {
	rec := MetaRecord{
		Instrument: string(instrument),
		FromMs:     fromMs,
		ToMs:       toMs,
		Ticks:      ticks,
		UpdatedAt:  time.Now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instrument"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
}

func (rec CandleRecord) candle() model.Candle {
	return model.Candle{
		Instrument:    model.InstrumentCode(rec.Instrument),
		Resolution:    1,
		BucketStartMs: rec.BucketStartMs,
		Open:          rec.Open,
		High:          rec.High,
		Low:           rec.Low,
		Close:         rec.Close,
		Volume:        rec.Volume,
	}
}

func (rec TickRecord) tick() model.Tick {
	return model.Tick{
		Instrument:   model.InstrumentCode(rec.Instrument),
		Price:        rec.Price,
		Volume:       rec.Volume,
		Side:         enum.OrderSide(rec.Side),
		TimestampMs:  rec.TimestampMs,
		SequentialID: rec.SequentialID,
		Stream:       enum.StreamRealtime,
	}
}
