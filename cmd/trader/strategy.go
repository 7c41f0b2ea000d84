package main

import (
	"context"

	"github.com/yanun0323/logs"

	"main/internal/bot"
	"main/internal/model"
	"main/internal/model/enum"
)

// quoteWatcher feeds the paper-trading price board and logs a quote
// summary once per closed 5-minute window.
type quoteWatcher struct {
	board *priceBoard
}

func (s *quoteWatcher) Name() string { return "quote-watcher" }

func (s *quoteWatcher) Declarations() bot.Declarations {
	return bot.Declarations{
		{Kind: enum.EventTrade, Name: "onTick", OnTick: func(ctx context.Context, r *bot.Runtime, t model.Tick) error {
			s.board.observe(t)
			return nil
		}},
		{Kind: enum.EventCandle, Resolution: 5, Depth: 1, Name: "onCandle", OnCandle: func(ctx context.Context, r *bot.Runtime, window []model.Candle) error {
			if len(window) == 0 {
				return nil
			}
			c := window[len(window)-1]
			logs.Infof("%s 5m close %s vol %s", c.Instrument, c.Close, c.Volume)
			return nil
		}},
	}
}

const recorderBatch = 500

// tickRecorder buffers live trades and flushes them to the historical
// store in batches.
type tickRecorder struct {
	sink   tickSink
	buffer []model.Tick
}

type tickSink interface {
	SaveTicks(ctx context.Context, ticks []model.Tick) error
}

func newTickRecorder(sink tickSink) *tickRecorder {
	return &tickRecorder{sink: sink, buffer: make([]model.Tick, 0, recorderBatch)}
}

func (s *tickRecorder) Name() string { return "tick-recorder" }

func (s *tickRecorder) Declarations() bot.Declarations {
	return bot.Declarations{
		{Kind: enum.EventTrade, Name: "onTick", OnTick: func(ctx context.Context, r *bot.Runtime, t model.Tick) error {
			s.buffer = append(s.buffer, t)
			if len(s.buffer) < recorderBatch {
				return nil
			}
			return s.flush(ctx)
		}},
		{Kind: enum.EventFinish, Name: "onFinish", OnFinish: func(ctx context.Context, r *bot.Runtime) error {
			return s.flush(ctx)
		}},
	}
}

func (s *tickRecorder) flush(ctx context.Context) error {
	if len(s.buffer) == 0 {
		return nil
	}
	if err := s.sink.SaveTicks(ctx, s.buffer); err != nil {
		return err
	}
	s.buffer = s.buffer[:0]
	return nil
}
