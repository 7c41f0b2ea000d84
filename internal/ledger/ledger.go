// Package ledger implements the per-strategy order state machine and
// its balance bookkeeping.
//
// One Ledger owns one bid slot, one ask slot and one origin/destination
// balance pair. All calls against it originate from the owning
// strategy's single dispatch path, so it does no locking. Every state
// transition mutates the balances atomically with the recorded status
// and is verified against the conservation invariant; a violation is a
// ledger bug and panics rather than being normalized away.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/gateway"
	"main/internal/model"
	"main/internal/model/enum"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance for order")
	ErrBelowMinimumVolume  = errors.New("order volume below venue minimum")
)

// invariantTolerance absorbs decimal rounding across a transition.
var invariantTolerance = decimal.New(1, -8)

// Config carries the bookkeeping constants. The defaults mirror the
// venue's published fee and precision rules.
type Config struct {
	FeeRate           decimal.Decimal
	VolumePrecision   int32
	NotionalPrecision int32
	PollInterval      time.Duration
}

func (c Config) withDefaults() Config {
	if c.FeeRate.IsZero() {
		c.FeeRate = decimal.NewFromFloat(0.0005)
	}
	if c.VolumePrecision == 0 {
		c.VolumePrecision = 8
	}
	if c.NotionalPrecision == 0 {
		c.NotionalPrecision = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// PriceFunc resolves the latest observed trade price. The runtime wires
// its latest-tick snapshot here.
type PriceFunc func() (decimal.Decimal, bool)

// Order is one order instance occupying a side slot. Instances are
// never deleted; a superseded instance moves to the slot's archive with
// its history intact.
type Order struct {
	ID       string
	Side     enum.OrderSide
	Type     enum.OrderType
	Price    decimal.Decimal
	Volume   decimal.Decimal
	Locked   decimal.Decimal
	Executed decimal.Decimal
	PaidFee  decimal.Decimal

	history []model.OrderStatus
}

// State derives the order's state from the last recorded status.
func (o *Order) State() enum.OrderState {
	if o == nil || len(o.history) == 0 {
		return enum.OrderStateNone
	}
	return o.history[len(o.history)-1].State
}

// History returns a copy of the append-only status history.
func (o *Order) History() []model.OrderStatus {
	if o == nil {
		return nil
	}
	out := make([]model.OrderStatus, len(o.history))
	copy(out, o.history)
	return out
}

// record appends a status only when it differs from the last entry.
func (o *Order) record(st model.OrderStatus) {
	if n := len(o.history); n > 0 && o.history[n-1].Equal(st) {
		return
	}
	o.history = append(o.history, st)
}

// Ledger enforces at-most-one-in-flight-order per side and tracks the
// balance pair across submits, cancels and fills.
type Ledger struct {
	gw         gateway.OrderGateway
	instrument model.InstrumentCode
	cfg        Config
	price      PriceFunc

	origin      decimal.Decimal
	destination decimal.Decimal

	bid *Order
	ask *Order

	archive map[enum.OrderSide][]*Order
	errs    map[enum.OrderSide][]error
}

// New creates a ledger with the given starting balances. origin is the
// quote asset spent by bids; destination is the base asset spent by
// asks.
func New(gw gateway.OrderGateway, instrument model.InstrumentCode, origin, destination decimal.Decimal, price PriceFunc, cfg Config) *Ledger {
	return &Ledger{
		gw:          gw,
		instrument:  instrument,
		cfg:         cfg.withDefaults(),
		price:       price,
		origin:      origin,
		destination: destination,
		archive:     make(map[enum.OrderSide][]*Order),
		errs:        make(map[enum.OrderSide][]error),
	}
}

// Balances returns the current origin and destination balances.
func (l *Ledger) Balances() (origin, destination decimal.Decimal) {
	return l.origin, l.destination
}

// Bid returns the live bid slot, nil when none was ever placed.
func (l *Ledger) Bid() *Order { return l.bid }

// Ask returns the live ask slot, nil when none was ever placed.
func (l *Ledger) Ask() *Order { return l.ask }

// Archive returns superseded order instances for a side, oldest first.
func (l *Ledger) Archive(side enum.OrderSide) []*Order {
	out := make([]*Order, len(l.archive[side]))
	copy(out, l.archive[side])
	return out
}

// Errors returns the side's non-transient error history.
func (l *Ledger) Errors(side enum.OrderSide) []error {
	out := make([]error, len(l.errs[side]))
	copy(out, l.errs[side])
	return out
}

func (l *Ledger) slot(side enum.OrderSide) **Order {
	if side == enum.OrderSideAsk {
		return &l.ask
	}
	return &l.bid
}

// total values both balances and in-flight locks in origin units at the
// given price. Conservation: a transition changes the total by exactly
// the fee it paid, never more.
func (l *Ledger) total(price decimal.Decimal) decimal.Decimal {
	t := l.origin.Add(l.destination.Mul(price))
	if l.bid != nil {
		t = t.Add(l.bid.Locked)
	}
	if l.ask != nil {
		t = t.Add(l.ask.Locked.Mul(price))
	}
	return t
}
