package candle

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

const minuteMs = model.MinuteMs

func tick(minute int64, price float64, volume float64) model.Tick {
	return model.Tick{
		Instrument:  "BTC_JPY",
		Price:       decimal.NewFromFloat(price),
		Volume:      decimal.NewFromFloat(volume),
		Side:        enum.OrderSideBid,
		TimestampMs: minute*minuteMs + 1_000,
		Stream:      enum.StreamRealtime,
	}
}

func TestPushOpensAndUpdatesBuckets(t *testing.T) {
	a := New("BTC_JPY", 10)

	if closed := a.Push(tick(0, 100, 1)); closed {
		t.Fatal("first bucket must not report a closed minute")
	}
	if closed := a.Push(tick(0, 105, 2)); closed {
		t.Fatal("same-minute tick must not close a bucket")
	}
	if closed := a.Push(tick(1, 95, 1)); !closed {
		t.Fatal("next-minute tick must close the previous bucket")
	}

	series, err := a.As(1)
	if err != nil {
		t.Fatalf("as(1): %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("bucket count: got %d want 2", len(series))
	}
	first := series[1]
	if !first.Open.Equal(decimal.NewFromInt(100)) ||
		!first.High.Equal(decimal.NewFromInt(105)) ||
		!first.Low.Equal(decimal.NewFromInt(100)) ||
		!first.Close.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("first bucket OHLC mismatch: %+v", first)
	}
	if !first.Volume.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("first bucket volume: got %s want 3", first.Volume)
	}
}

func TestPushSynthesizesGapBuckets(t *testing.T) {
	a := New("BTC_JPY", 10)
	a.Push(tick(0, 100, 1))
	a.Push(tick(4, 120, 2))

	series, err := a.As(1)
	if err != nil {
		t.Fatalf("as(1): %v", err)
	}
	if len(series) != 5 {
		t.Fatalf("bucket count: got %d want 5", len(series))
	}
	// Minutes 1..3 carry the previous close at zero volume.
	for i := 1; i <= 3; i++ {
		b := series[len(series)-1-i]
		if !b.Open.Equal(decimal.NewFromInt(100)) || !b.Close.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("synthetic bucket %d must carry previous close: %+v", i, b)
		}
		if !b.Volume.IsZero() {
			t.Fatalf("synthetic bucket %d must have zero volume: %s", i, b.Volume)
		}
	}
	// No timestamp gap across consecutive buckets.
	for i := 0; i < len(series)-1; i++ {
		if series[i].BucketStartMs-series[i+1].BucketStartMs != minuteMs {
			t.Fatalf("gap between buckets %d and %d", i, i+1)
		}
	}
}

func TestPushCapsSynthesisAtRetention(t *testing.T) {
	a := New("BTC_JPY", 10)
	a.Push(tick(0, 100, 1))
	// An hours-long feed outage. Only the retained window is filled in;
	// minutes that would be trimmed immediately are never materialized.
	a.Push(tick(6_000, 120, 2))

	series, err := a.As(1)
	if err != nil {
		t.Fatalf("as(1): %v", err)
	}
	if len(series) != 10 {
		t.Fatalf("bucket count: got %d want 10", len(series))
	}
	newest := series[0]
	if newest.BucketStartMs != 6_000*minuteMs || !newest.Close.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("newest bucket mismatch: %+v", newest)
	}
	for i := 1; i < len(series); i++ {
		b := series[i]
		if !b.Close.Equal(decimal.NewFromInt(100)) || !b.Volume.IsZero() {
			t.Fatalf("synthetic bucket %d must carry the pre-gap close: %+v", i, b)
		}
		if series[i-1].BucketStartMs-b.BucketStartMs != minuteMs {
			t.Fatalf("gap between buckets %d and %d", i-1, i)
		}
	}
}

func TestPushDropsRewoundTicks(t *testing.T) {
	a := New("BTC_JPY", 10)
	a.Push(tick(0, 100, 1))
	a.Push(tick(2, 110, 1))
	a.Push(tick(1, 999, 9)) // feed rewound; dropped silently

	series, err := a.As(1)
	if err != nil {
		t.Fatalf("as(1): %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("bucket count: got %d want 3", len(series))
	}
	mid := series[1]
	if !mid.Close.Equal(decimal.NewFromInt(100)) || !mid.Volume.IsZero() {
		t.Fatalf("rewound tick must not touch the synthetic bucket: %+v", mid)
	}
}

func TestPushIgnoresSnapshotPhase(t *testing.T) {
	a := New("BTC_JPY", 10)

	warm := tick(0, 100, 1)
	warm.Stream = enum.StreamSnapshot
	a.Push(warm)
	if a.Len() != 0 {
		t.Fatal("snapshot ticks must not open buckets before the live phase")
	}

	a.Push(tick(1, 101, 1))
	if a.Len() != 1 {
		t.Fatal("first realtime tick must open the series")
	}

	// Once live, the gate stays open.
	late := tick(2, 102, 1)
	late.Stream = enum.StreamSnapshot
	a.Push(late)
	if a.Len() != 2 {
		t.Fatal("gate must stay open after the live phase begins")
	}
}

func TestAsRebucketsFiveMinuteWindows(t *testing.T) {
	a := New("BTC_JPY", 16)
	// Ten 1-minute bars at minutes 0..9 with closes 1..10.
	for m := int64(0); m < 10; m++ {
		a.Push(tick(m, float64(m+1), 1))
	}

	windows, err := a.As(5)
	if err != nil {
		t.Fatalf("as(5): %v", err)
	}
	// Minutes 5..9 end exactly at the newest bucket, so the head window
	// is kept alongside the closed 0..4 window.
	if len(windows) != 2 {
		t.Fatalf("window count: got %d want 2", len(windows))
	}

	head, closed := windows[0], windows[1]
	if !closed.Open.Equal(decimal.NewFromInt(1)) || !closed.Close.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("closed window OHLC mismatch: %+v", closed)
	}
	if !closed.Volume.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("closed window volume: got %s want 5", closed.Volume)
	}
	if !head.Open.Equal(decimal.NewFromInt(6)) || !head.Close.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("head window OHLC mismatch: %+v", head)
	}
	if !head.High.Equal(decimal.NewFromInt(10)) || !head.Low.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("head window high/low mismatch: %+v", head)
	}
}

func TestAsDropsFormingWindow(t *testing.T) {
	a := New("BTC_JPY", 16)
	// Minutes 0..6: the 5..9 window is only two minutes deep.
	for m := int64(0); m < 7; m++ {
		a.Push(tick(m, float64(m+1), 1))
	}

	windows, err := a.As(5)
	if err != nil {
		t.Fatalf("as(5): %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("window count: got %d want 1", len(windows))
	}
	if windows[0].BucketStartMs != 0 {
		t.Fatalf("only the closed 0..4 window should remain: %+v", windows[0])
	}
}

func TestAsRejectsInvalidResolution(t *testing.T) {
	a := New("BTC_JPY", 4)
	a.Push(tick(0, 100, 1))

	for _, bad := range []int{0, -5, 7, 13, 90} {
		if _, err := a.As(bad); !errors.Is(err, ErrInvalidResolution) {
			t.Fatalf("as(%d) must reject the resolution, got %v", bad, err)
		}
	}
	for _, ok := range []int{1, 3, 5, 10, 15, 30, 60, 240} {
		if _, err := a.As(ok); err != nil {
			t.Fatalf("as(%d): %v", ok, err)
		}
	}
}

func TestGrowNeverShrinks(t *testing.T) {
	a := New("BTC_JPY", 4)
	a.Grow(8)
	if a.Limit() != 8 {
		t.Fatalf("limit: got %d want 8", a.Limit())
	}
	a.Grow(2)
	if a.Limit() != 8 {
		t.Fatalf("limit must never shrink: got %d", a.Limit())
	}

	for m := int64(0); m < 12; m++ {
		a.Push(tick(m, 100, 1))
	}
	if a.Len() != 8 {
		t.Fatalf("retained buckets: got %d want 8", a.Len())
	}
}
