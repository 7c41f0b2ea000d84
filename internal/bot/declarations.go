package bot

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"
)

// Handler signatures for each event kind. Handlers receive the owning
// runtime so strategy code can reach snapshots and the ledger.
type (
	TickHandler      func(ctx context.Context, r *Runtime, t model.Tick) error
	OrderbookHandler func(ctx context.Context, r *Runtime, book model.OrderbookSnapshot) error
	PriceHandler     func(ctx context.Context, r *Runtime, price model.PriceSnapshot) error
	CandleHandler    func(ctx context.Context, r *Runtime, window []model.Candle) error
	FinishHandler    func(ctx context.Context, r *Runtime) error
)

// Declaration maps one event kind to one named handler. For candle
// declarations Resolution and Depth select the derived series.
//
// The declaration is data, not introspected methods: a strategy type
// lists its handlers explicitly and composes its parent's table, so no
// reflection is involved in resolving inherited subscriptions.
type Declaration struct {
	Kind       enum.EventKind
	Resolution int
	Depth      int
	Name       string

	OnTick      TickHandler
	OnOrderbook OrderbookHandler
	OnPrice     PriceHandler
	OnCandle    CandleHandler
	OnFinish    FinishHandler
}

type declKey struct {
	kind       enum.EventKind
	resolution int
	depth      int
	name       string
}

func (d Declaration) key() declKey {
	return declKey{kind: d.Kind, resolution: d.Resolution, depth: d.Depth, name: d.Name}
}

// Declarations is one strategy type's subscription table.
type Declarations []Declaration

// Merge composes a child table over this one. A child entry with the
// same kind, resolution, depth and name replaces the parent's entry;
// everything else is appended in declaration order.
func (d Declarations) Merge(child Declarations) Declarations {
	out := make(Declarations, 0, len(d)+len(child))
	replaced := make(map[declKey]int, len(d))

	for _, decl := range d {
		replaced[decl.key()] = len(out)
		out = append(out, decl)
	}
	for _, decl := range child {
		if i, ok := replaced[decl.key()]; ok {
			out[i] = decl
			continue
		}
		out = append(out, decl)
	}
	return out
}

// Kinds returns the distinct event kinds the table subscribes to.
func (d Declarations) Kinds() []enum.EventKind {
	seen := make(map[enum.EventKind]bool, len(d))
	var out []enum.EventKind
	for _, decl := range d {
		if !seen[decl.Kind] {
			seen[decl.Kind] = true
			out = append(out, decl.Kind)
		}
	}
	return out
}

// Strategy is one algorithmic trading strategy type. Declarations is
// resolved once at runtime construction; implementations embed their
// parent and return parent.Declarations().Merge(own).
type Strategy interface {
	Name() string
	Declarations() Declarations
}
