package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"main/internal/model"
	"main/internal/model/enum"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(
		sqlite.Open(filepath.Join(t.TempDir(), "store.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)
	s, err := New(db)
	require.NoError(t, err)
	return s
}

func storedTick(instrument model.InstrumentCode, seq int64) model.Tick {
	return model.Tick{
		Instrument:   instrument,
		Price:        decimal.NewFromInt(100 + seq%7),
		Volume:       decimal.NewFromInt(1),
		Side:         enum.OrderSideBid,
		TimestampMs:  seq,
		SequentialID: seq,
		Stream:       enum.StreamRealtime,
	}
}

func TestEachTicksWalksAcrossPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// More rows than one page, so the cursor must re-seek at least once.
	const rows = pageSize + 250
	ticks := make([]model.Tick, 0, rows)
	for seq := int64(1); seq <= rows; seq++ {
		ticks = append(ticks, storedTick("BTC_JPY", seq))
	}
	require.NoError(t, s.SaveTicks(ctx, ticks))

	var got []int64
	err := s.EachTicks(ctx, "BTC_JPY", 0, rows+1, func(tk model.Tick) error {
		got = append(got, tk.SequentialID)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, rows, "no tick may be skipped or repeated at the page boundary")
	for i, seq := range got {
		require.Equal(t, int64(i+1), seq)
	}
}

func TestEachCandlesWalksAcrossPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const rows = pageSize + 3
	candles := make([]model.Candle, 0, 2*rows)
	for m := int64(0); m < rows; m++ {
		for _, instrument := range []model.InstrumentCode{"BTC_JPY", "ETH_JPY"} {
			candles = append(candles, model.Candle{
				Instrument:    instrument,
				Resolution:    1,
				BucketStartMs: m * model.MinuteMs,
				Open:          decimal.NewFromInt(100),
				High:          decimal.NewFromInt(101),
				Low:           decimal.NewFromInt(99),
				Close:         decimal.NewFromInt(100),
				Volume:        decimal.NewFromInt(1),
			})
		}
	}
	require.NoError(t, s.SaveCandles(ctx, candles))

	// Both instruments share every bucket start, so the cursor's id
	// tie-break is what keeps the walk exact.
	var buckets []int64
	err := s.EachCandles(ctx, "BTC_JPY", 0, rows*model.MinuteMs, func(c model.Candle) error {
		require.Equal(t, model.InstrumentCode("BTC_JPY"), c.Instrument)
		buckets = append(buckets, c.BucketStartMs)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, buckets, rows)
	for i, bucket := range buckets {
		require.Equal(t, int64(i)*model.MinuteMs, bucket)
	}
}

func TestSaveTicksIgnoresDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	batch := []model.Tick{storedTick("BTC_JPY", 1), storedTick("BTC_JPY", 2)}
	require.NoError(t, s.SaveTicks(ctx, batch))
	require.NoError(t, s.SaveTicks(ctx, batch))

	n, err := s.Count(ctx, "BTC_JPY", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetOrdersBySequentialID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 5; seq++ {
		require.NoError(t, s.SaveTicks(ctx, []model.Tick{storedTick("BTC_JPY", seq)}))
	}

	page, err := s.Get(ctx, "BTC_JPY", 1, 2, OrderDesc)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].SequentialID)
	assert.Equal(t, int64(3), page[1].SequentialID)
}

func TestMetaRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Meta(ctx, "BTC_JPY")
	require.NoError(t, err)
	assert.Nil(t, rec, "no populate run recorded yet")

	require.NoError(t, s.SetMeta(ctx, "BTC_JPY", 0, 1_000, 42))
	require.NoError(t, s.SetMeta(ctx, "BTC_JPY", 0, 2_000, 99))

	rec, err = s.Meta(ctx, "BTC_JPY")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(2_000), rec.ToMs)
	assert.Equal(t, int64(99), rec.Ticks)
}
