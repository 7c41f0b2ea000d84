package obs

import (
	"sync/atomic"
	"time"

	"main/internal/model/enum"
)

const maxEventKind = int(enum.EventFinish)

// Metrics collects lightweight counters and latency stats for the
// dispatch path. All methods are nil-safe so callers can run without
// instrumentation.
type Metrics struct {
	eventCounts  [maxEventKind + 1]uint64
	handlerFails uint64
	inboxDrops   uint64
	inboxClosed  uint64

	dispatchLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts     map[enum.EventKind]uint64
	HandlerFails    uint64
	InboxDrops      uint64
	InboxClosed     uint64
	DispatchLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveDispatch counts one routed event and tracks how long the
// fan-out across runtimes took.
func (m *Metrics) ObserveDispatch(kind enum.EventKind, d time.Duration) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	m.dispatchLatency.Observe(d)
}

// IncHandlerFail records one failed strategy handler.
func (m *Metrics) IncHandlerFail() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.handlerFails, 1)
}

// IncInboxDrop records a message dropped on a full inbox.
func (m *Metrics) IncInboxDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.inboxDrops, 1)
}

// IncInboxClosed records a publish attempt against a closed inbox.
func (m *Metrics) IncInboxClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.inboxClosed, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[enum.EventKind]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[enum.EventKind(i)] = v
		}
	}
	return Snapshot{
		EventCounts:     eventCounts,
		HandlerFails:    atomic.LoadUint64(&m.handlerFails),
		InboxDrops:      atomic.LoadUint64(&m.inboxDrops),
		InboxClosed:     atomic.LoadUint64(&m.inboxClosed),
		DispatchLatency: m.dispatchLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
