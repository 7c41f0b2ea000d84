package ledger

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
)

// Cancel requests cancellation of the side's live order. With no order
// present it is a no-op; an order already in cancel state is returned
// as-is without touching the balances a second time.
func (l *Ledger) Cancel(ctx context.Context, side enum.OrderSide, opts ...CallOption) (*Order, error) {
	o := resolveOptions(opts)

	order := *l.slot(side)
	if order == nil {
		return nil, nil
	}
	switch order.State() {
	case enum.OrderStateCancel, enum.OrderStateDone:
		return order, nil
	}

	status, err := l.gw.Cancel(ctx, order.ID)
	if err != nil {
		return nil, l.fail(side, err, o)
	}
	l.apply(order, status)
	logs.Infof("cancelled %s order %s, state %s", side, order.ID, order.State())
	return order, nil
}

// clearOpposite cancels a waiting opposite-side order and confirms the
// cancel before the caller proceeds with its own placement.
func (l *Ledger) clearOpposite(ctx context.Context, side enum.OrderSide) error {
	opp := side.Opposite()
	if order := *l.slot(opp); order.State() != enum.OrderStateWait {
		return nil
	}
	_, err := l.Cancel(ctx, opp)
	return err
}

// Wait polls the side's order status at the configured interval until
// it reaches a terminal state or the timeout elapses. On timeout a
// still-waiting order is cancelled and onTimeout, when supplied,
// receives the pre-cancel status; a timeout is a normal outcome, not an
// error.
func (l *Ledger) Wait(ctx context.Context, side enum.OrderSide, timeout time.Duration, onTimeout func(model.OrderStatus), opts ...CallOption) (*Order, error) {
	o := resolveOptions(opts)

	order := *l.slot(side)
	if order == nil || order.State().IsTerminal() {
		return order, nil
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := l.gw.QueryStatus(ctx, order.ID)
		if err != nil {
			return nil, l.fail(side, err, o)
		}
		l.apply(order, status)
		if order.State().IsTerminal() {
			return order, nil
		}

		if !time.Now().Before(deadline) {
			pre := status
			if _, err := l.Cancel(ctx, side, opts...); err != nil {
				return nil, err
			}
			if onTimeout != nil {
				onTimeout(pre)
			}
			return order, nil
		}

		select {
		case <-ctx.Done():
			return order, ctx.Err()
		case <-ticker.C:
		}
	}
}
