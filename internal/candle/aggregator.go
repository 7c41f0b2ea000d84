// Package candle turns a tick stream into queryable OHLC series.
//
// The aggregator keeps a bounded, newest-first window of 1-minute
// buckets and re-buckets them into caller-requested resolutions on
// demand, so no query ever re-scans raw ticks.
package candle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

// ErrInvalidResolution is returned by As for resolutions that do not
// align with the 1-minute base series.
var ErrInvalidResolution = errors.New("invalid candle resolution")

// Aggregator maintains the 1-minute bucket window for one instrument.
//
// It is owned by exactly one strategy runtime and must only be driven
// from that runtime's dispatch path; it does no locking of its own.
type Aggregator struct {
	instrument model.InstrumentCode
	limit      int
	live       bool

	// buckets is ordered newest-first and trimmed to limit.
	buckets []model.Candle
}

// New creates an aggregator retaining at most limit 1-minute buckets.
func New(instrument model.InstrumentCode, limit int) *Aggregator {
	if limit <= 0 {
		limit = 1
	}
	return &Aggregator{instrument: instrument, limit: limit}
}

// Limit returns the current retention cap in 1-minute buckets.
func (a *Aggregator) Limit() int {
	return a.limit
}

// Grow raises the retention cap. The cap never shrinks; a request
// below the current cap is ignored so the most demanding subscriber
// always keeps its window.
func (a *Aggregator) Grow(limit int) {
	if limit > a.limit {
		a.limit = limit
	}
}

// Len returns the number of retained 1-minute buckets.
func (a *Aggregator) Len() int {
	return len(a.buckets)
}

// Push folds one tick into the 1-minute series. It reports true when
// the tick opened a new bucket, which closes the previous minute.
//
// Ticks are ignored until the stream's live phase begins: snapshot
// ticks replayed ahead of the realtime phase never open buckets. Ticks
// older than the newest bucket are dropped silently since the feed may
// occasionally rewind.
func (a *Aggregator) Push(t model.Tick) (closed bool) {
	if !a.live {
		if t.Stream != enum.StreamRealtime {
			return false
		}
		a.live = true
	}

	boundary := model.BucketStart(t.TimestampMs, 1)
	if len(a.buckets) == 0 {
		a.buckets = append(a.buckets, a.open(boundary, t))
		return false
	}

	head := &a.buckets[0]
	switch {
	case boundary < head.BucketStartMs:
		return false
	case boundary == head.BucketStartMs:
		if t.Price.GreaterThan(head.High) {
			head.High = t.Price
		}
		if t.Price.LessThan(head.Low) {
			head.Low = t.Price
		}
		head.Close = t.Price
		head.Volume = head.Volume.Add(t.Volume)
		return false
	}

	// A later minute arrived. Carry the previous close through any
	// empty minutes so the series has no timestamp gaps. Minutes older
	// than the retention window would be trimmed right away, so
	// synthesis starts no earlier than limit-1 minutes back.
	first := head.BucketStartMs + model.MinuteMs
	if floor := boundary - int64(a.limit-1)*model.MinuteMs; first < floor {
		first = floor
	}
	carried := head.Close
	for ts := first; ts < boundary; ts += model.MinuteMs {
		a.prepend(a.synthetic(ts, carried))
	}
	a.prepend(a.open(boundary, t))
	if len(a.buckets) > a.limit {
		a.buckets = a.buckets[:a.limit]
	}
	return true
}

// As re-buckets the retained series into resolutionMinutes-wide
// windows, newest-first. The newest window is dropped when it is still
// forming, i.e. its end boundary does not coincide with the end of the
// newest underlying 1-minute bucket; when it is kept, index 0 is the
// currently forming window.
func (a *Aggregator) As(resolutionMinutes int) ([]model.Candle, error) {
	if resolutionMinutes <= 0 || (60%resolutionMinutes != 0 && resolutionMinutes%60 != 0) {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidResolution, resolutionMinutes)
	}
	if len(a.buckets) == 0 {
		return nil, nil
	}

	var out []model.Candle // newest-first, like the base series
	for i := len(a.buckets) - 1; i >= 0; i-- {
		b := a.buckets[i]
		start := model.BucketStart(b.BucketStartMs, resolutionMinutes)
		if len(out) == 0 || out[0].BucketStartMs != start {
			merged := b
			merged.Resolution = resolutionMinutes
			merged.BucketStartMs = start
			out = append([]model.Candle{merged}, out...)
			continue
		}
		w := &out[0]
		if b.High.GreaterThan(w.High) {
			w.High = b.High
		}
		if b.Low.LessThan(w.Low) {
			w.Low = b.Low
		}
		w.Close = b.Close
		w.Volume = w.Volume.Add(b.Volume)
	}

	width := model.MinuteMs * int64(resolutionMinutes)
	newestEnd := a.buckets[0].BucketStartMs + model.MinuteMs
	if out[0].BucketStartMs+width != newestEnd {
		out = out[1:]
	}
	return out, nil
}

func (a *Aggregator) open(boundary int64, t model.Tick) model.Candle {
	return model.Candle{
		Instrument:    a.instrument,
		Resolution:    1,
		BucketStartMs: boundary,
		Open:          t.Price,
		High:          t.Price,
		Low:           t.Price,
		Close:         t.Price,
		Volume:        t.Volume,
	}
}

func (a *Aggregator) synthetic(boundary int64, prevClose decimal.Decimal) model.Candle {
	return model.Candle{
		Instrument:    a.instrument,
		Resolution:    1,
		BucketStartMs: boundary,
		Open:          prevClose,
		High:          prevClose,
		Low:           prevClose,
		Close:         prevClose,
		Volume:        decimal.Zero,
	}
}

func (a *Aggregator) prepend(b model.Candle) {
	a.buckets = append(a.buckets, model.Candle{})
	copy(a.buckets[1:], a.buckets)
	a.buckets[0] = b
}
