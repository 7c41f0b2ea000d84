package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/gateway"
	"main/internal/model/enum"
)

// CallOption tunes one place/cancel/take call.
type CallOption func(*callOptions)

type callOptions struct {
	onError func(error)
}

// WithErrorCallback routes non-transient gateway errors to fn instead
// of returning them; the call then resolves to a nil order.
func WithErrorCallback(fn func(error)) CallOption {
	return func(o *callOptions) { o.onError = fn }
}

func resolveOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PlaceBid places a limit bid spending fund origin units at the given
// price. A waiting ask is cancelled first; a waiting bid makes the call
// a no-op returning (nil, nil).
func (l *Ledger) PlaceBid(ctx context.Context, price, fund decimal.Decimal, opts ...CallOption) (*Order, error) {
	return l.place(ctx, enum.OrderSideBid, price, fund, opts)
}

// PlaceAsk places a limit ask selling volume destination units at the
// given price. A waiting bid is cancelled first; a waiting ask makes
// the call a no-op returning (nil, nil).
func (l *Ledger) PlaceAsk(ctx context.Context, price, volume decimal.Decimal, opts ...CallOption) (*Order, error) {
	return l.place(ctx, enum.OrderSideAsk, price, volume, opts)
}

func (l *Ledger) place(ctx context.Context, side enum.OrderSide, price, amount decimal.Decimal, opts []CallOption) (*Order, error) {
	o := resolveOptions(opts)

	// A pending opposite-side order is always cancelled, and the cancel
	// observed, before a new order is allowed.
	if err := l.clearOpposite(ctx, side); err != nil {
		return nil, l.fail(side, err, o)
	}
	if slot := *l.slot(side); slot.State() == enum.OrderStateWait {
		return nil, nil
	}

	volume, locked := l.sizing(side, price, amount)
	if err := l.checkChance(ctx, volume); err != nil {
		return nil, l.fail(side, err, o)
	}

	return l.submit(ctx, gateway.Spec{
		Instrument: l.instrument,
		Side:       side,
		Type:       enum.OrderTypeLimit,
		Price:      price,
		Volume:     volume,
	}, locked, o)
}

// MarketBuy cancels a waiting limit bid and buys at market with fund
// origin units. When an ask is waiting, it is cancelled and no order is
// placed: the call returns (nil, nil).
func (l *Ledger) MarketBuy(ctx context.Context, fund decimal.Decimal, opts ...CallOption) (*Order, error) {
	return l.take(ctx, enum.OrderSideBid, fund, opts)
}

// MarketSell cancels a waiting limit ask and sells volume destination
// units at market. When a bid is waiting, it is cancelled and no order
// is placed: the call returns (nil, nil).
func (l *Ledger) MarketSell(ctx context.Context, volume decimal.Decimal, opts ...CallOption) (*Order, error) {
	return l.take(ctx, enum.OrderSideAsk, volume, opts)
}

func (l *Ledger) take(ctx context.Context, side enum.OrderSide, amount decimal.Decimal, opts []CallOption) (*Order, error) {
	o := resolveOptions(opts)

	// Taking against a pending opposite-side order only cancels it.
	if opp := *l.slot(side.Opposite()); opp.State() == enum.OrderStateWait {
		if _, err := l.Cancel(ctx, side.Opposite()); err != nil {
			return nil, l.fail(side, err, o)
		}
		return nil, nil
	}
	// A same-side limit order gives way to the take.
	if slot := *l.slot(side); slot.State() == enum.OrderStateWait {
		if _, err := l.Cancel(ctx, side); err != nil {
			return nil, l.fail(side, err, o)
		}
	}

	price, ok := l.price()
	if !ok {
		return nil, l.fail(side, errors.New("no observed price for market order"), o)
	}

	volume, locked := l.sizing(side, price, amount)
	if err := l.checkChance(ctx, volume); err != nil {
		return nil, l.fail(side, err, o)
	}

	return l.submit(ctx, gateway.Spec{
		Instrument: l.instrument,
		Side:       side,
		Type:       enum.OrderTypeMarket,
		Volume:     volume,
	}, locked, o)
}

// sizing computes the executable volume and the amount to lock.
// Bids spend origin: the lock is the notional plus the estimated fee.
// Asks spend destination: the lock is the volume itself, the fee being
// netted from the proceeds at fill time.
func (l *Ledger) sizing(side enum.OrderSide, price, amount decimal.Decimal) (volume, locked decimal.Decimal) {
	if side == enum.OrderSideBid {
		volume = amount.Div(price).RoundDown(l.cfg.VolumePrecision)
		locked = amount.Mul(decimal.NewFromInt(1).Add(l.cfg.FeeRate)).Round(l.cfg.NotionalPrecision)
		return volume, locked
	}
	volume = amount.RoundDown(l.cfg.VolumePrecision)
	return volume, volume
}

func (l *Ledger) checkChance(ctx context.Context, volume decimal.Decimal) error {
	chance, err := l.gw.QueryChance(ctx, l.instrument)
	if err != nil {
		return err
	}
	if volume.LessThan(chance.MinVolume) {
		return ErrBelowMinimumVolume
	}
	return nil
}

func (l *Ledger) submit(ctx context.Context, spec gateway.Spec, locked decimal.Decimal, o callOptions) (*Order, error) {
	side := spec.Side
	if err := l.debit(side, locked); err != nil {
		return nil, l.fail(side, err, o)
	}

	status, err := l.gw.Submit(ctx, spec)
	if err != nil {
		l.credit(side, locked)
		return nil, l.fail(side, err, o)
	}

	slot := l.slot(side)
	if prev := *slot; prev != nil {
		l.archive[side] = append(l.archive[side], prev)
	}
	order := &Order{
		ID:     status.ID,
		Side:   side,
		Type:   spec.Type,
		Price:  status.Price,
		Volume: spec.Volume,
		Locked: locked,
	}
	*slot = order

	// Record the wait entry first so a gateway that filled immediately
	// still leaves a wait -> done history.
	wait := status
	wait.State = enum.OrderStateWait
	wait.ExecutedVolume = decimal.Zero
	wait.PaidFee = decimal.Zero
	order.record(wait)

	if !status.Equal(wait) {
		l.apply(order, status)
	}

	logs.Infof("placed %s %s order %s: price %s volume %s locked %s",
		side, spec.Type, order.ID, order.Price, order.Volume, locked)
	return order, nil
}

func (l *Ledger) debit(side enum.OrderSide, locked decimal.Decimal) error {
	if side == enum.OrderSideBid {
		if locked.GreaterThan(l.origin) {
			return ErrInsufficientBalance
		}
		l.origin = l.origin.Sub(locked)
		return nil
	}
	if locked.GreaterThan(l.destination) {
		return ErrInsufficientBalance
	}
	l.destination = l.destination.Sub(locked)
	return nil
}

func (l *Ledger) credit(side enum.OrderSide, locked decimal.Decimal) {
	if side == enum.OrderSideBid {
		l.origin = l.origin.Add(locked)
		return
	}
	l.destination = l.destination.Add(locked)
}

// fail records a non-transient error into the side's history, then
// either raises it or resolves it through the error callback.
func (l *Ledger) fail(side enum.OrderSide, err error, o callOptions) error {
	l.errs[side] = append(l.errs[side], err)
	if o.onError != nil {
		o.onError(err)
		return nil
	}
	return err
}
