package main

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/bot"
	"main/internal/ledger"
	"main/internal/model"
	"main/internal/model/enum"
)

// smaCross trades a fast/slow moving-average crossover on 1-minute
// closes. A cross up spends a quarter of the origin balance; a cross
// down liquidates the whole position.
type smaCross struct {
	fast int
	slow int

	// above tracks whether the fast average sat above the slow one at
	// the previous closed bucket; nil until both averages exist.
	above *bool
}

func newSMACross(fast, slow int) *smaCross {
	return &smaCross{fast: fast, slow: slow}
}

func (s *smaCross) Name() string { return "sma-cross" }

func (s *smaCross) Declarations() bot.Declarations {
	return bot.Declarations{
		{Kind: enum.EventCandle, Resolution: 1, Depth: s.slow, Name: "onCandle", OnCandle: s.onCandle},
		{Kind: enum.EventFinish, Name: "onFinish", OnFinish: s.onFinish},
	}
}

func (s *smaCross) onCandle(ctx context.Context, r *bot.Runtime, window []model.Candle) error {
	if len(window) < s.slow {
		return nil
	}

	fast := average(window[:s.fast])
	slow := average(window[:s.slow])
	above := fast.GreaterThan(slow)

	prev := s.above
	s.above = &above
	if prev == nil || *prev == above {
		return nil
	}

	book := r.Ledger()
	reject := ledger.WithErrorCallback(func(err error) {
		logs.Warnf("order rejected, err: %+v", err)
	})

	if above {
		origin, _ := book.Balances()
		fund := origin.Div(decimal.NewFromInt(4))
		if fund.IsZero() {
			return nil
		}
		_, err := book.MarketBuy(ctx, fund, reject)
		return err
	}

	_, destination := book.Balances()
	if destination.IsZero() {
		return nil
	}
	_, err := book.MarketSell(ctx, destination, reject)
	return err
}

func (s *smaCross) onFinish(ctx context.Context, r *bot.Runtime) error {
	book := r.Ledger()
	for _, side := range []enum.OrderSide{enum.OrderSideBid, enum.OrderSideAsk} {
		if _, err := book.Cancel(ctx, side); err != nil {
			return err
		}
	}
	return nil
}

// average of the close prices, candles newest first.
func average(candles []model.Candle) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}
