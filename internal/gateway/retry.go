package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model"
)

const (
	defaultRetryBackoff  = time.Second
	defaultRetryAttempts = 5
)

// Retry wraps an OrderGateway and transparently retries rate-limited
// calls with a fixed backoff. Any other error propagates unchanged.
type Retry struct {
	next     OrderGateway
	backoff  time.Duration
	attempts int
}

// NewRetry wraps next with the default 1s backoff.
func NewRetry(next OrderGateway) *Retry {
	return &Retry{next: next, backoff: defaultRetryBackoff, attempts: defaultRetryAttempts}
}

// WithBackoff overrides the fixed delay between attempts.
func (r *Retry) WithBackoff(d time.Duration) *Retry {
	if d > 0 {
		r.backoff = d
	}
	return r
}

// WithAttempts overrides the attempt cap.
func (r *Retry) WithAttempts(n int) *Retry {
	if n > 0 {
		r.attempts = n
	}
	return r
}

func (r *Retry) Submit(ctx context.Context, spec Spec) (model.OrderStatus, error) {
	return retryStatus(ctx, r, func() (model.OrderStatus, error) {
		return r.next.Submit(ctx, spec)
	})
}

func (r *Retry) Cancel(ctx context.Context, id string) (model.OrderStatus, error) {
	return retryStatus(ctx, r, func() (model.OrderStatus, error) {
		return r.next.Cancel(ctx, id)
	})
}

func (r *Retry) QueryStatus(ctx context.Context, id string) (model.OrderStatus, error) {
	return retryStatus(ctx, r, func() (model.OrderStatus, error) {
		return r.next.QueryStatus(ctx, id)
	})
}

func (r *Retry) QueryChance(ctx context.Context, instrument model.InstrumentCode) (Chance, error) {
	var chance Chance
	err := r.retry(ctx, func() error {
		var err error
		chance, err = r.next.QueryChance(ctx, instrument)
		return err
	})
	return chance, err
}

func retryStatus(ctx context.Context, r *Retry, call func() (model.OrderStatus, error)) (model.OrderStatus, error) {
	var status model.OrderStatus
	err := r.retry(ctx, func() error {
		var err error
		status, err = call()
		return err
	})
	return status, err
}

func (r *Retry) retry(ctx context.Context, call func() error) error {
	var last error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			logs.Warnf("gateway rate limited, retrying in %s", r.backoff)
			timer := time.NewTimer(r.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		last = call()
		if last == nil || !errors.Is(last, ErrRateLimited) {
			return last
		}
	}
	return last
}
