package dispatch

import (
	"context"
	"errors"
	"sync/atomic"

	"main/internal/stream"
)

var (
	ErrInboxFull   = errors.New("dispatch inbox full")
	ErrInboxClosed = errors.New("dispatch inbox closed")
)

// Inbox is a bounded queue decoupling a live source reader from the
// dispatch loop.
type Inbox struct {
	ch     chan stream.Message
	closed uint32
}

// NewInbox allocates an inbox with the given capacity.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &Inbox{ch: make(chan stream.Message, capacity)}
}

// TryPush enqueues a message without blocking. A full inbox sheds the
// message so a slow strategy cannot stall the source reader.
func (q *Inbox) TryPush(msg stream.Message) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrInboxClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrInboxFull
	}
}

// Close stops the inbox from accepting new messages.
func (q *Inbox) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Drain consumes messages until the context is done or the inbox is
// closed and empty.
func (q *Inbox) Drain(ctx context.Context, handler func(stream.Message)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-q.ch:
			if !ok {
				return
			}
			handler(msg)
		}
	}
}
