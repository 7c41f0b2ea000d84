// Package stream provides the message sources driving a run: a live
// exchange connection or a historical replay cursor. Both yield the
// same typed messages, so the supervisor and the strategy runtimes
// behave identically in either mode.
package stream

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"
)

// Message is one routed stream event. Exactly one payload pointer is
// set, matching Kind.
type Message struct {
	Kind       enum.EventKind
	Instrument model.InstrumentCode
	Tick       *model.Tick
	Orderbook  *model.OrderbookSnapshot
	Price      *model.PriceSnapshot
}

// Source is a stream of typed messages for one run. The message channel
// closes when the source ends: a replay cursor exhausting its window,
// or a live connection being closed explicitly.
type Source interface {
	Start(ctx context.Context) error
	Messages() <-chan Message
	Close()
}
