// Package gateway defines the order-execution collaborator contract
// shared by the live exchange client and the replay fill simulator.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

var (
	// ErrRateLimited marks a transient upstream rejection. The retry
	// wrapper absorbs it; it never reaches the ledger.
	ErrRateLimited = errors.New("gateway rate limited")

	// ErrUnknownOrder is returned for status or cancel requests against
	// an order id the venue does not know.
	ErrUnknownOrder = errors.New("order not found")
)

// Spec describes one order submission.
type Spec struct {
	Instrument model.InstrumentCode
	Side       enum.OrderSide
	Type       enum.OrderType
	Price      decimal.Decimal
	Volume     decimal.Decimal
}

// Chance reports the venue's current constraints for an instrument.
type Chance struct {
	MinVolume        decimal.Decimal
	OriginAvailable  decimal.Decimal
	DestinationAvail decimal.Decimal
}

// OrderGateway is the execution collaborator. The live client and the
// fill simulator produce the same OrderStatus shape, so the ledger is
// agnostic to which is wired in.
type OrderGateway interface {
	Submit(ctx context.Context, spec Spec) (model.OrderStatus, error)
	Cancel(ctx context.Context, id string) (model.OrderStatus, error)
	QueryStatus(ctx context.Context, id string) (model.OrderStatus, error)
	QueryChance(ctx context.Context, instrument model.InstrumentCode) (Chance, error)
}
