package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

// PriceFunc resolves the latest observed trade price for an instrument.
// In replay mode it is backed by the runtime's latest-tick snapshot, so
// fills are decided against the replayed market, not wall-clock data.
type PriceFunc func(instrument model.InstrumentCode) (price decimal.Decimal, tsMs int64, ok bool)

// FillSimulator is the replay substitute for the live order gateway.
//
// It fills deterministically: market orders execute immediately at the
// latest replayed price, limit orders execute at their limit price once
// the replayed price crosses it. Order ids are sequential so repeated
// backtests over the same data produce identical histories.
type FillSimulator struct {
	price     PriceFunc
	feeRate   decimal.Decimal
	minVolume decimal.Decimal

	mu     sync.Mutex
	seq    int64
	orders map[string]*simOrder
}

type simOrder struct {
	spec   Spec
	status model.OrderStatus
}

// NewFillSimulator creates a simulator resolving prices through price.
func NewFillSimulator(price PriceFunc, feeRate decimal.Decimal) *FillSimulator {
	return &FillSimulator{
		price:     price,
		feeRate:   feeRate,
		minVolume: decimal.New(1, -4),
		orders:    make(map[string]*simOrder),
	}
}

func (s *FillSimulator) Submit(ctx context.Context, spec Spec) (model.OrderStatus, error) {
	price, tsMs, ok := s.price(spec.Instrument)
	if !ok {
		return model.OrderStatus{}, fmt.Errorf("no replayed price for %s", spec.Instrument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	o := &simOrder{
		spec: spec,
		status: model.OrderStatus{
			ID:          fmt.Sprintf("sim-%d", s.seq),
			Instrument:  spec.Instrument,
			Side:        spec.Side,
			Type:        spec.Type,
			State:       enum.OrderStateWait,
			Price:       spec.Price,
			Volume:      spec.Volume,
			TimestampMs: tsMs,
		},
	}
	if spec.Type == enum.OrderTypeMarket {
		o.status.Price = price
		s.fill(o, price, tsMs)
	} else {
		s.tryFill(o, price, tsMs)
	}
	s.orders[o.status.ID] = o
	return o.status, nil
}

func (s *FillSimulator) Cancel(ctx context.Context, id string) (model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return model.OrderStatus{}, ErrUnknownOrder
	}
	if !o.status.State.IsTerminal() {
		o.status.State = enum.OrderStateCancel
		o.status.TimestampMs = s.nowMs(o.spec.Instrument, o.status.TimestampMs)
	}
	return o.status, nil
}

func (s *FillSimulator) QueryStatus(ctx context.Context, id string) (model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return model.OrderStatus{}, ErrUnknownOrder
	}
	if o.status.State == enum.OrderStateWait {
		if price, tsMs, ok := s.price(o.spec.Instrument); ok {
			s.tryFill(o, price, tsMs)
		}
	}
	return o.status, nil
}

func (s *FillSimulator) QueryChance(ctx context.Context, instrument model.InstrumentCode) (Chance, error) {
	return Chance{MinVolume: s.minVolume}, nil
}

// tryFill executes a waiting limit order when the replayed price
// crosses its limit. Fills happen at the limit price.
func (s *FillSimulator) tryFill(o *simOrder, price decimal.Decimal, tsMs int64) {
	if o.status.State != enum.OrderStateWait {
		return
	}
	crossed := (o.spec.Side == enum.OrderSideBid && price.LessThanOrEqual(o.spec.Price)) ||
		(o.spec.Side == enum.OrderSideAsk && price.GreaterThanOrEqual(o.spec.Price))
	if crossed {
		s.fill(o, o.spec.Price, tsMs)
	}
}

func (s *FillSimulator) fill(o *simOrder, price decimal.Decimal, tsMs int64) {
	o.status.State = enum.OrderStateDone
	o.status.Price = price
	o.status.ExecutedVolume = o.spec.Volume
	o.status.PaidFee = o.spec.Volume.Mul(price).Mul(s.feeRate)
	o.status.TimestampMs = tsMs
}

func (s *FillSimulator) nowMs(instrument model.InstrumentCode, fallback int64) int64 {
	if _, tsMs, ok := s.price(instrument); ok {
		return tsMs
	}
	if fallback > 0 {
		return fallback
	}
	return time.Now().UnixMilli()
}
