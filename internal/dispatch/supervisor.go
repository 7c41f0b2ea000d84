// Package dispatch runs the event loop of one trading session.
//
// # Module
//
// A Supervisor owns exactly one stream source and a set of strategy
// runtimes. Live runs flow source -> inbox -> routing table -> runtimes,
// with the inbox shedding on overflow so the reader never blocks. Replay
// runs skip the inbox and take messages straight off the source, keeping
// the cursor in lockstep with dispatch. The routing table maps
// (event kind, instrument) to the interested runtimes and is rebuilt
// lazily after registration.
//
// # Ordering
//
// Each message's fan-out is awaited before the next message is taken
// from the inbox, so every runtime observes events in source order. A
// strategy blocking on a gateway call only stalls its own dispatch
// turn within that fan-out.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yanun0323/logs"

	"main/internal/bot"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/stream"
)

var ErrAlreadyRegistered = errors.New("runtime already registered")

const defaultInboxCapacity = 1024

// Config tunes the supervisor's buffering behavior.
type Config struct {
	// InboxCapacity bounds the source-to-dispatch queue.
	InboxCapacity int
	// DropWhenFull sheds messages instead of blocking the source
	// reader. Live runs set this; replay runs leave it unset, which
	// bypasses the inbox entirely so the source cannot advance past
	// an undelivered message.
	DropWhenFull bool
}

func (c Config) withDefaults() Config {
	if c.InboxCapacity <= 0 {
		c.InboxCapacity = defaultInboxCapacity
	}
	return c
}

type routeKey struct {
	kind       enum.EventKind
	instrument model.InstrumentCode
}

// Supervisor drives one source's messages through the registered
// runtimes.
type Supervisor struct {
	source  stream.Source
	cfg     Config
	metrics *obs.Metrics

	mu       sync.Mutex
	runtimes []*bot.Runtime
	routes   map[routeKey][]*bot.Runtime
}

// NewSupervisor creates a supervisor over the given source.
func NewSupervisor(source stream.Source, cfg Config) *Supervisor {
	return &Supervisor{
		source:  source,
		cfg:     cfg.withDefaults(),
		metrics: obs.NewMetrics(),
	}
}

// Metrics exposes the dispatch counters.
func (s *Supervisor) Metrics() *obs.Metrics { return s.metrics }

// Register adds a runtime. Registering the same strategy name twice on
// the same instrument is a setup error.
func (s *Supervisor) Register(rt *bot.Runtime) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.runtimes {
		if existing.Instrument() == rt.Instrument() &&
			existing.Strategy().Name() == rt.Strategy().Name() {
			return fmt.Errorf("%w: %s on %s",
				ErrAlreadyRegistered, rt.Strategy().Name(), rt.Instrument())
		}
	}

	s.runtimes = append(s.runtimes, rt)
	s.routes = nil
	return nil
}

// route resolves the runtimes interested in (kind, instrument),
// rebuilding the table if registration invalidated it.
func (s *Supervisor) route(kind enum.EventKind, instrument model.InstrumentCode) []*bot.Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.routes == nil {
		s.routes = make(map[routeKey][]*bot.Runtime)
		for _, rt := range s.runtimes {
			for kind := _kindRouteBeg; kind <= _kindRouteEnd; kind++ {
				if rt.Interested(kind) {
					key := routeKey{kind: kind, instrument: rt.Instrument()}
					s.routes[key] = append(s.routes[key], rt)
				}
			}
		}
	}
	return s.routes[routeKey{kind: kind, instrument: instrument}]
}

const (
	_kindRouteBeg = enum.EventTrade
	_kindRouteEnd = enum.EventFinish
)

// Run starts every registered runtime, pumps the source until it ends
// or the context is canceled, then finishes every runtime. The source
// must have been started by the caller.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	runtimes := append([]*bot.Runtime(nil), s.runtimes...)
	s.mu.Unlock()

	for _, rt := range runtimes {
		if err := rt.Start(ctx); err != nil {
			return err
		}
	}

	if s.cfg.DropWhenFull {
		inbox := NewInbox(s.cfg.InboxCapacity)
		go s.pump(inbox)
		inbox.Drain(ctx, func(msg stream.Message) {
			s.deliver(ctx, msg)
		})
	} else {
		s.drainDirect(ctx)
	}

	var finishErr error
	for _, rt := range runtimes {
		if err := rt.Finish(ctx); err != nil {
			finishErr = err
		}
	}
	return finishErr
}

// pump copies source messages into the inbox, shedding on overflow,
// and closes the inbox when the source ends.
func (s *Supervisor) pump(inbox *Inbox) {
	defer inbox.Close()

	for msg := range s.source.Messages() {
		switch err := inbox.TryPush(msg); {
		case errors.Is(err, ErrInboxFull):
			s.metrics.IncInboxDrop()
		case errors.Is(err, ErrInboxClosed):
			s.metrics.IncInboxClosed()
			return
		}
	}
}

// drainDirect hands each source message to deliver without buffering.
// The next receive only happens after the previous fan-out returned,
// so a paced cursor on the far side of the channel stays at most one
// message ahead of the strategies.
func (s *Supervisor) drainDirect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.source.Messages():
			if !ok {
				return
			}
			s.deliver(ctx, msg)
		}
	}
}

// deliver fans one message out to every routed runtime in parallel and
// awaits all of them.
func (s *Supervisor) deliver(ctx context.Context, msg stream.Message) {
	targets := s.route(msg.Kind, msg.Instrument)
	if len(targets) == 0 {
		return
	}

	began := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)
	for _, rt := range targets {
		rt := rt
		eg.Go(func() error {
			return rt.Dispatch(egCtx, msg)
		})
	}
	if err := eg.Wait(); err != nil {
		s.metrics.IncHandlerFail()
		logs.Errorf("dispatch %s on %s, err: %+v", msg.Kind, msg.Instrument, err)
	}
	s.metrics.ObserveDispatch(msg.Kind, time.Since(began))
}

// Close tears the source down, which ends Run once the inbox drains.
func (s *Supervisor) Close() {
	s.source.Close()
}
