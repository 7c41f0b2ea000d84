package bot

import (
	"context"
	"fmt"

	"main/internal/broadcast"
	"main/internal/candle"
	"main/internal/model"
)

// validResolutions is the candle subscription surface offered to
// strategy authors, in minutes.
var validResolutions = map[int]bool{
	1: true, 3: true, 5: true, 10: true, 15: true, 30: true, 60: true, 240: true,
}

type candleKey struct {
	resolution int
	depth      int
}

// Subscriptions is the per-runtime listener registry. Candle listeners
// are keyed by (resolution, depth) since two listeners may want
// different window depths of the same resolution; the aggregator is
// created lazily on the first candle subscription and its retention
// only ever grows.
type Subscriptions struct {
	instrument model.InstrumentCode

	trade     *broadcast.Topic[model.Tick]
	orderbook *broadcast.Topic[model.OrderbookSnapshot]
	price     *broadcast.Topic[model.PriceSnapshot]
	finish    *broadcast.Topic[struct{}]
	candles   map[candleKey]*broadcast.Topic[[]model.Candle]

	agg *candle.Aggregator
}

func newSubscriptions(instrument model.InstrumentCode) *Subscriptions {
	return &Subscriptions{
		instrument: instrument,
		trade:      broadcast.NewTopic[model.Tick](),
		orderbook:  broadcast.NewTopic[model.OrderbookSnapshot](),
		price:      broadcast.NewTopic[model.PriceSnapshot](),
		finish:     broadcast.NewTopic[struct{}](),
		candles:    make(map[candleKey]*broadcast.Topic[[]model.Candle]),
	}
}

// SubscribeTicks attaches a trade listener.
func (s *Subscriptions) SubscribeTicks(fn broadcast.Handler[model.Tick]) *broadcast.Handle[model.Tick] {
	return s.trade.Subscribe(fn)
}

// SubscribeOrderbook attaches an orderbook listener.
func (s *Subscriptions) SubscribeOrderbook(fn broadcast.Handler[model.OrderbookSnapshot]) *broadcast.Handle[model.OrderbookSnapshot] {
	return s.orderbook.Subscribe(fn)
}

// SubscribePrice attaches a price ticker listener.
func (s *Subscriptions) SubscribePrice(fn broadcast.Handler[model.PriceSnapshot]) *broadcast.Handle[model.PriceSnapshot] {
	return s.price.Subscribe(fn)
}

// SubscribeFinish attaches a lifecycle listener invoked once when the
// owning runtime finishes.
func (s *Subscriptions) SubscribeFinish(fn broadcast.Handler[struct{}]) *broadcast.Handle[struct{}] {
	return s.finish.Subscribe(fn)
}

// SubscribeCandles attaches a listener for the derived candle series.
// The first subscription wires the tick-forwarding aggregator; a later
// subscriber sharing the resolution may only widen the retained window,
// never shrink it.
func (s *Subscriptions) SubscribeCandles(resolution, depth int, fn broadcast.Handler[[]model.Candle]) (*broadcast.Handle[[]model.Candle], error) {
	if !validResolutions[resolution] {
		return nil, fmt.Errorf("%w: %d minutes", candle.ErrInvalidResolution, resolution)
	}
	if depth <= 0 {
		return nil, fmt.Errorf("invalid candle depth %d", depth)
	}

	// depth closed windows plus the forming one.
	minutes := resolution * (depth + 1)
	if s.agg == nil {
		s.agg = candle.New(s.instrument, minutes)
	} else {
		s.agg.Grow(minutes)
	}

	key := candleKey{resolution: resolution, depth: depth}
	topic, ok := s.candles[key]
	if !ok {
		topic = broadcast.NewTopic[[]model.Candle]()
		s.candles[key] = topic
	}
	return topic.Subscribe(fn), nil
}

// Aggregator exposes the lazily created aggregator, nil before the
// first candle subscription.
func (s *Subscriptions) Aggregator() *candle.Aggregator {
	return s.agg
}

// emitTick fans a trade out to tick listeners and folds it into the
// aggregator. Closing a 1-minute bucket recomputes every subscribed
// (resolution, depth) series and dispatches the ones that produced at
// least one window.
func (s *Subscriptions) emitTick(ctx context.Context, t model.Tick) error {
	if err := s.trade.Publish(ctx, t); err != nil {
		return err
	}
	if s.agg == nil {
		return nil
	}
	if closed := s.agg.Push(t); !closed {
		return nil
	}
	return s.fanOutCandles(ctx)
}

func (s *Subscriptions) fanOutCandles(ctx context.Context) error {
	for key, topic := range s.candles {
		if topic.Len() == 0 {
			continue
		}
		windows, err := s.agg.As(key.resolution)
		if err != nil {
			return err
		}
		if len(windows) == 0 {
			continue
		}
		if len(windows) > key.depth {
			windows = windows[:key.depth]
		}
		if err := topic.Publish(ctx, windows); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriptions) emitOrderbook(ctx context.Context, book model.OrderbookSnapshot) error {
	return s.orderbook.Publish(ctx, book)
}

func (s *Subscriptions) emitPrice(ctx context.Context, price model.PriceSnapshot) error {
	return s.price.Publish(ctx, price)
}

func (s *Subscriptions) emitFinish(ctx context.Context) error {
	return s.finish.Publish(ctx, struct{}{})
}

// teardown invalidates every handle; late operations on them no-op.
func (s *Subscriptions) teardown() {
	s.trade.Teardown()
	s.orderbook.Teardown()
	s.price.Teardown()
	s.finish.Teardown()
	for _, topic := range s.candles {
		topic.Teardown()
	}
}
