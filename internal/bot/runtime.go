package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/gateway"
	"main/internal/ledger"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/stream"
)

var ErrAlreadyStarted = errors.New("runtime already started")

// Runtime binds one strategy instance to one instrument code. It owns
// the subscription registry, the latest-value snapshot slots and, when
// an order gateway is attached, the order ledger.
type Runtime struct {
	strategy   Strategy
	instrument model.InstrumentCode
	subs       *Subscriptions
	book       *ledger.Ledger

	// Latest-value slots, one per event kind, nil until first arrival.
	latestTick  *model.Tick
	latestBook  *model.OrderbookSnapshot
	latestPrice *model.PriceSnapshot

	kinds    map[enum.EventKind]bool
	started  bool
	finished bool
}

// NewRuntime creates an unstarted runtime.
func NewRuntime(strategy Strategy, instrument model.InstrumentCode) *Runtime {
	return &Runtime{
		strategy:   strategy,
		instrument: instrument,
		subs:       newSubscriptions(instrument),
		kinds:      make(map[enum.EventKind]bool),
	}
}

// WithLedger attaches an order ledger backed by gw with the given
// starting balances. The ledger reads the runtime's latest tick for
// market-order pricing.
func (r *Runtime) WithLedger(gw gateway.OrderGateway, origin, destination decimal.Decimal, cfg ledger.Config) *Runtime {
	r.book = ledger.New(gw, r.instrument, origin, destination, func() (decimal.Decimal, bool) {
		if r.latestTick == nil {
			return decimal.Zero, false
		}
		return r.latestTick.Price, true
	}, cfg)
	return r
}

// Strategy returns the bound strategy instance.
func (r *Runtime) Strategy() Strategy { return r.strategy }

// Instrument returns the bound instrument code.
func (r *Runtime) Instrument() model.InstrumentCode { return r.instrument }

// Subscriptions exposes the listener registry for dynamic subscribing
// beyond the declaration table.
func (r *Runtime) Subscriptions() *Subscriptions { return r.subs }

// Ledger returns the attached order ledger, nil when no gateway was
// wired in.
func (r *Runtime) Ledger() *ledger.Ledger { return r.book }

// Interested reports whether the runtime wants kind. Candle interest
// implies trade interest since candles are derived from ticks.
func (r *Runtime) Interested(kind enum.EventKind) bool {
	if r.kinds[kind] {
		return true
	}
	return kind == enum.EventTrade && r.kinds[enum.EventCandle]
}

// Start resolves the strategy's declaration table and wires every
// declared handler into the registry. A malformed table is a
// programmer error and fails here, fast.
func (r *Runtime) Start(ctx context.Context) error {
	if r.started {
		return ErrAlreadyStarted
	}

	decls := r.strategy.Declarations()
	for _, decl := range decls {
		if err := r.wire(decl); err != nil {
			return err
		}
	}
	for _, kind := range decls.Kinds() {
		r.kinds[kind] = true
	}

	r.started = true
	logs.Infof("runtime started: strategy %s on %s", r.strategy.Name(), r.instrument)
	return nil
}

func (r *Runtime) wire(decl Declaration) error {
	switch decl.Kind {
	case enum.EventTrade:
		if decl.OnTick == nil {
			return fmt.Errorf("declaration %q: missing tick handler", decl.Name)
		}
		fn := decl.OnTick
		r.subs.SubscribeTicks(func(ctx context.Context, t model.Tick) error {
			return fn(ctx, r, t)
		})
	case enum.EventOrderbook:
		if decl.OnOrderbook == nil {
			return fmt.Errorf("declaration %q: missing orderbook handler", decl.Name)
		}
		fn := decl.OnOrderbook
		r.subs.SubscribeOrderbook(func(ctx context.Context, book model.OrderbookSnapshot) error {
			return fn(ctx, r, book)
		})
	case enum.EventPrice:
		if decl.OnPrice == nil {
			return fmt.Errorf("declaration %q: missing price handler", decl.Name)
		}
		fn := decl.OnPrice
		r.subs.SubscribePrice(func(ctx context.Context, price model.PriceSnapshot) error {
			return fn(ctx, r, price)
		})
	case enum.EventCandle:
		if decl.OnCandle == nil {
			return fmt.Errorf("declaration %q: missing candle handler", decl.Name)
		}
		fn := decl.OnCandle
		if _, err := r.subs.SubscribeCandles(decl.Resolution, decl.Depth, func(ctx context.Context, window []model.Candle) error {
			return fn(ctx, r, window)
		}); err != nil {
			return err
		}
	case enum.EventFinish:
		if decl.OnFinish == nil {
			return fmt.Errorf("declaration %q: missing finish handler", decl.Name)
		}
		fn := decl.OnFinish
		r.subs.SubscribeFinish(func(ctx context.Context, _ struct{}) error {
			return fn(ctx, r)
		})
	default:
		return fmt.Errorf("declaration %q: unknown event kind %d", decl.Name, decl.Kind)
	}
	return nil
}

// Dispatch routes one stream message through the runtime: the latest
// slot is overwritten first, then the registry fans the payload out and
// awaits every handler.
func (r *Runtime) Dispatch(ctx context.Context, msg stream.Message) error {
	if !r.started || r.finished {
		return nil
	}

	switch msg.Kind {
	case enum.EventTrade:
		if msg.Tick == nil {
			return nil
		}
		t := *msg.Tick
		r.latestTick = &t
		return r.subs.emitTick(ctx, t)
	case enum.EventOrderbook:
		if msg.Orderbook == nil {
			return nil
		}
		book := *msg.Orderbook
		r.latestBook = &book
		return r.subs.emitOrderbook(ctx, book)
	case enum.EventPrice:
		if msg.Price == nil {
			return nil
		}
		price := *msg.Price
		r.latestPrice = &price
		return r.subs.emitPrice(ctx, price)
	default:
		return nil
	}
}

// LatestTick returns a copy of the most recent trade, nil before the
// first arrival.
func (r *Runtime) LatestTick() *model.Tick {
	if r.latestTick == nil {
		return nil
	}
	t := *r.latestTick
	return &t
}

// LatestOrderbook returns a copy of the most recent orderbook snapshot.
func (r *Runtime) LatestOrderbook() *model.OrderbookSnapshot {
	if r.latestBook == nil {
		return nil
	}
	book := *r.latestBook
	book.Bids = append([]model.Level(nil), r.latestBook.Bids...)
	book.Asks = append([]model.Level(nil), r.latestBook.Asks...)
	return &book
}

// LatestPrice returns a copy of the most recent price snapshot.
func (r *Runtime) LatestPrice() *model.PriceSnapshot {
	if r.latestPrice == nil {
		return nil
	}
	price := *r.latestPrice
	return &price
}

// Finish emits the terminal lifecycle event to finish listeners and
// tears the registry down. All handles become invalid; late calls
// against them no-op.
func (r *Runtime) Finish(ctx context.Context) error {
	if !r.started || r.finished {
		return nil
	}
	r.finished = true

	err := r.subs.emitFinish(ctx)
	r.subs.teardown()
	logs.Infof("runtime finished: strategy %s on %s", r.strategy.Name(), r.instrument)
	return err
}
