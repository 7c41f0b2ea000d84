package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

// apply folds a gateway status into the order and the balances. Every
// accepted transition is checked against the conservation invariant:
// the total value of balances plus locks, normalized to origin units at
// the transition price, may only shrink by the fee paid in that
// transition.
func (l *Ledger) apply(o *Order, st model.OrderStatus) {
	price := l.transitionPrice(o, st)
	before := l.total(price)
	feePaid := decimal.Zero

	// Fills first: a terminal status may carry the final fill with it.
	if delta := st.ExecutedVolume.Sub(o.Executed); delta.IsPositive() {
		feePaid = l.settleFill(o, delta, price, st)
	}

	switch st.State {
	case enum.OrderStateDone:
		// Whatever remains locked after the final fill is leftover from
		// conservative sizing; it flows back where it came from.
		l.release(o)
	case enum.OrderStateCancel:
		if o.State() != enum.OrderStateCancel {
			l.release(o)
		}
	}

	o.record(st)
	l.verify(price, before, feePaid)
}

// settleFill converts delta executed volume between the balances and
// returns the fee paid by this fill.
func (l *Ledger) settleFill(o *Order, delta, price decimal.Decimal, st model.OrderStatus) decimal.Decimal {
	fee := st.PaidFee.Sub(o.PaidFee)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	if fee.IsZero() {
		fee = delta.Mul(price).Mul(l.cfg.FeeRate)
	}

	notional := delta.Mul(price)
	if o.Side == enum.OrderSideBid {
		// Locked origin converts into destination volume, net of fee.
		o.Locked = o.Locked.Sub(notional).Sub(fee)
		l.destination = l.destination.Add(delta)
	} else {
		// Locked destination volume converts into origin proceeds.
		o.Locked = o.Locked.Sub(delta)
		l.origin = l.origin.Add(notional).Sub(fee)
	}

	o.Executed = o.Executed.Add(delta)
	o.PaidFee = o.PaidFee.Add(fee)
	return fee
}

// release returns the remaining lock to its source balance.
func (l *Ledger) release(o *Order) {
	if o.Locked.IsZero() {
		return
	}
	l.credit(o.Side, o.Locked)
	o.Locked = decimal.Zero
}

func (l *Ledger) transitionPrice(o *Order, st model.OrderStatus) decimal.Decimal {
	switch {
	case st.Price.IsPositive():
		return st.Price
	case o.Price.IsPositive():
		return o.Price
	}
	if p, ok := l.price(); ok {
		return p
	}
	return decimal.Zero
}

// verify panics when a transition created or destroyed value beyond the
// fee it paid. There is no recovery path: this is a bookkeeping bug.
func (l *Ledger) verify(price, before, feePaid decimal.Decimal) {
	after := l.total(price)
	drift := before.Sub(feePaid).Sub(after).Abs()
	if drift.GreaterThan(invariantTolerance) {
		panic(fmt.Sprintf(
			"ledger balance invariant violated: before %s, after %s, fee %s, drift %s",
			before, after, feePaid, drift,
		))
	}
}
