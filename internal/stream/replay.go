package stream

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
)

// TickCursor is the historical-store surface the replay source needs.
// An empty instrument means every instrument in the window.
type TickCursor interface {
	EachTicks(ctx context.Context, instrument model.InstrumentCode, fromMs, toMs int64, fn func(model.Tick) error) error
}

// Clock allows deterministic pacing control in tests.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReplayConfig bounds the historical window and its pacing.
type ReplayConfig struct {
	Instrument model.InstrumentCode
	FromMs     int64
	ToMs       int64
	// Speed scales inter-tick delays: 1 replays in real time, 0 runs
	// unpaced.
	Speed float64
}

// Replay drives a run from the historical store. Ticks are delivered in
// strictly increasing sequential-id order, tagged realtime: the start
// of the cursor is the stream's explicit live signal.
type Replay struct {
	cursor TickCursor
	cfg    ReplayConfig
	clock  Clock
	out    chan Message
	closed atomic.Bool
	lastID int64
}

// NewReplay creates a replay source over cursor.
func NewReplay(cursor TickCursor, cfg ReplayConfig) *Replay {
	return &Replay{
		cursor: cursor,
		cfg:    cfg,
		clock:  realClock{},
		out:    make(chan Message),
	}
}

// WithClock swaps the pacing clock.
func (r *Replay) WithClock(clock Clock) *Replay {
	if clock != nil {
		r.clock = clock
	}
	return r
}

// Messages returns the replayed message channel. It closes when the
// window is exhausted or the source is closed.
func (r *Replay) Messages() <-chan Message {
	return r.out
}

// Close stops the replay before the window ends.
func (r *Replay) Close() {
	r.closed.Store(true)
}

// Start launches the cursor walk. The channel is unbuffered, so the
// consumer's dispatch turn paces the cursor: a message is not advanced
// past until its full fan-out completed.
func (r *Replay) Start(ctx context.Context) error {
	go func() {
		defer close(r.out)

		var prevTS int64
		err := r.cursor.EachTicks(ctx, r.cfg.Instrument, r.cfg.FromMs, r.cfg.ToMs, func(t model.Tick) error {
			if r.closed.Load() {
				return context.Canceled
			}
			if t.SequentialID <= r.lastID {
				return fmt.Errorf("replay out of order: sequential id %d after %d", t.SequentialID, r.lastID)
			}
			r.lastID = t.SequentialID

			if err := r.pace(ctx, t.TimestampMs, &prevTS); err != nil {
				return err
			}

			t.Stream = enum.StreamRealtime
			msg := Message{Kind: enum.EventTrade, Instrument: t.Instrument, Tick: &t}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.out <- msg:
				return nil
			}
		})
		if err != nil && ctx.Err() == nil && !r.closed.Load() {
			logs.Errorf("replay cursor stopped, err: %+v", err)
		}
	}()
	return nil
}

func (r *Replay) pace(ctx context.Context, tsMs int64, prevTS *int64) error {
	if r.cfg.Speed > 0 && *prevTS > 0 {
		if delta := tsMs - *prevTS; delta > 0 {
			sleep := time.Duration(float64(delta)/r.cfg.Speed) * time.Millisecond
			if err := r.clock.Sleep(ctx, sleep); err != nil {
				return err
			}
		}
	}
	*prevTS = tsMs
	return nil
}
