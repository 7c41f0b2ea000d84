package model

import (
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// OrderStatus is the gateway's view of an order. The live gateway and
// the fill simulator produce the same shape, so the ledger is agnostic
// to which one is wired in.
type OrderStatus struct {
	ID             string
	Instrument     InstrumentCode
	Side           enum.OrderSide
	Type           enum.OrderType
	State          enum.OrderState
	Price          decimal.Decimal
	Volume         decimal.Decimal
	ExecutedVolume decimal.Decimal
	PaidFee        decimal.Decimal
	TimestampMs    int64
}

// Equal reports whether two statuses describe the same observation.
// The status history appends a new entry only when this is false.
func (s OrderStatus) Equal(o OrderStatus) bool {
	return s.ID == o.ID &&
		s.State == o.State &&
		s.ExecutedVolume.Equal(o.ExecutedVolume) &&
		s.PaidFee.Equal(o.PaidFee)
}
