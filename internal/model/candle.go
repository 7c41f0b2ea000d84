package model

import "github.com/shopspring/decimal"

// MinuteMs is the width of the base aggregation bucket.
const MinuteMs int64 = 60_000

// Candle is an OHLC summary for one fixed time bucket.
//
// For two candles of the same resolution and instrument, BucketStartMs
// values are strictly increasing by exactly Resolution minutes; a bucket
// with no ticks still exists, carrying the previous close at zero volume.
type Candle struct {
	Instrument    InstrumentCode
	Resolution    int
	BucketStartMs int64
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        decimal.Decimal
}

// BucketStart aligns a millisecond timestamp to its resolution boundary.
func BucketStart(tsMs int64, resolutionMinutes int) int64 {
	width := MinuteMs * int64(resolutionMinutes)
	return tsMs - tsMs%width
}
