package model

import (
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// InstrumentCode identifies a tradeable pair. It is the routing key for
// every stream message.
type InstrumentCode string

// Tick is one trade execution event.
type Tick struct {
	Instrument   InstrumentCode
	Price        decimal.Decimal
	Volume       decimal.Decimal
	Side         enum.OrderSide
	TimestampMs  int64
	SequentialID int64
	Stream       enum.StreamKind
}

// Level is one price level of an orderbook snapshot.
type Level struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// OrderbookSnapshot carries the exchange's latest book view. The runtime
// only needs latest-value semantics from it.
type OrderbookSnapshot struct {
	Instrument  InstrumentCode
	TimestampMs int64
	Bids        []Level
	Asks        []Level
}

// PriceSnapshot carries the exchange's latest ticker view.
type PriceSnapshot struct {
	Instrument  InstrumentCode
	TimestampMs int64
	Last        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Volume      decimal.Decimal
}
