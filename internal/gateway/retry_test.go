package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
)

type flakyGateway struct {
	rejections int
	calls      int
	err        error
}

func (g *flakyGateway) Submit(ctx context.Context, spec Spec) (model.OrderStatus, error) {
	g.calls++
	if g.err != nil {
		return model.OrderStatus{}, g.err
	}
	if g.calls <= g.rejections {
		return model.OrderStatus{}, ErrRateLimited
	}
	return model.OrderStatus{ID: "ok", State: enum.OrderStateWait}, nil
}

func (g *flakyGateway) Cancel(ctx context.Context, id string) (model.OrderStatus, error) {
	return model.OrderStatus{ID: id, State: enum.OrderStateCancel}, nil
}

func (g *flakyGateway) QueryStatus(ctx context.Context, id string) (model.OrderStatus, error) {
	return model.OrderStatus{ID: id, State: enum.OrderStateWait}, nil
}

func (g *flakyGateway) QueryChance(ctx context.Context, instrument model.InstrumentCode) (Chance, error) {
	return Chance{}, nil
}

func TestRetryAbsorbsRateLimits(t *testing.T) {
	inner := &flakyGateway{rejections: 2}
	r := NewRetry(inner).WithBackoff(time.Millisecond)

	status, err := r.Submit(context.Background(), Spec{})
	require.NoError(t, err)
	assert.Equal(t, "ok", status.ID)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryGivesUpAfterAttemptCap(t *testing.T) {
	inner := &flakyGateway{rejections: 100}
	r := NewRetry(inner).WithBackoff(time.Millisecond).WithAttempts(3)

	_, err := r.Submit(context.Background(), Spec{})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryPropagatesOtherErrors(t *testing.T) {
	rejected := errors.New("insufficient funds")
	inner := &flakyGateway{err: rejected}
	r := NewRetry(inner).WithBackoff(time.Millisecond)

	_, err := r.Submit(context.Background(), Spec{})
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, inner.calls, "non-transient errors must not be retried")
}

func fixedPrice(price float64, tsMs int64) PriceFunc {
	return func(model.InstrumentCode) (decimal.Decimal, int64, bool) {
		return decimal.NewFromFloat(price), tsMs, true
	}
}

func TestSimulatorMarketOrderFillsImmediately(t *testing.T) {
	sim := NewFillSimulator(fixedPrice(100, 42_000), decimal.NewFromFloat(0.0005))

	status, err := sim.Submit(context.Background(), Spec{
		Instrument: "BTC_JPY",
		Side:       enum.OrderSideBid,
		Type:       enum.OrderTypeMarket,
		Volume:     decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStateDone, status.State)
	assert.True(t, status.Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, status.ExecutedVolume.Equal(decimal.NewFromInt(2)))
	assert.True(t, status.PaidFee.Equal(decimal.NewFromFloat(0.1)), "fee: %s", status.PaidFee)
}

func TestSimulatorLimitOrderWaitsUntilCrossed(t *testing.T) {
	price := decimal.NewFromInt(100)
	sim := NewFillSimulator(func(model.InstrumentCode) (decimal.Decimal, int64, bool) {
		return price, 1_000, true
	}, decimal.NewFromFloat(0.0005))

	ctx := context.Background()
	status, err := sim.Submit(ctx, Spec{
		Instrument: "BTC_JPY",
		Side:       enum.OrderSideBid,
		Type:       enum.OrderTypeLimit,
		Price:      decimal.NewFromInt(90),
		Volume:     decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.Equal(t, enum.OrderStateWait, status.State)

	// Price has not crossed the bid yet.
	status, err = sim.QueryStatus(ctx, status.ID)
	require.NoError(t, err)
	require.Equal(t, enum.OrderStateWait, status.State)

	// The replayed market trades through the limit.
	price = decimal.NewFromInt(89)
	status, err = sim.QueryStatus(ctx, status.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStateDone, status.State)
	assert.True(t, status.Price.Equal(decimal.NewFromInt(90)), "limit orders fill at their limit price")
}

func TestSimulatorCancelIsIdempotent(t *testing.T) {
	sim := NewFillSimulator(fixedPrice(100, 1_000), decimal.Zero)

	ctx := context.Background()
	status, err := sim.Submit(ctx, Spec{
		Instrument: "BTC_JPY",
		Side:       enum.OrderSideAsk,
		Type:       enum.OrderTypeLimit,
		Price:      decimal.NewFromInt(110),
		Volume:     decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	first, err := sim.Cancel(ctx, status.ID)
	require.NoError(t, err)
	second, err := sim.Cancel(ctx, status.ID)
	require.NoError(t, err)

	assert.Equal(t, enum.OrderStateCancel, first.State)
	assert.Equal(t, first, second)
}

func TestSimulatorDeterministicIDs(t *testing.T) {
	run := func() []string {
		sim := NewFillSimulator(fixedPrice(100, 1_000), decimal.Zero)
		var ids []string
		for i := 0; i < 3; i++ {
			status, err := sim.Submit(context.Background(), Spec{
				Instrument: "BTC_JPY",
				Side:       enum.OrderSideBid,
				Type:       enum.OrderTypeMarket,
				Volume:     decimal.NewFromInt(1),
			})
			require.NoError(t, err)
			ids = append(ids, status.ID)
		}
		return ids
	}

	assert.Equal(t, run(), run(), "repeated runs must produce identical order ids")
}
