package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/bot"
	"main/internal/dispatch"
	"main/internal/gateway"
	"main/internal/ledger"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/ops"
	"main/internal/store"
	"main/internal/stream"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	instrument := flag.String("instrument", "", "Instrument to replay (default: first configured)")
	fast := flag.Int("fast", 5, "Fast moving-average length in minutes")
	slow := flag.Int("slow", 20, "Slow moving-average length in minutes")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	code := model.InstrumentCode(*instrument)
	if code == "" {
		code = loaded.Instruments[0]
	}
	if *fast <= 0 || *slow <= *fast {
		log.Fatalf("moving-average lengths must satisfy 0 < fast < slow")
	}

	if err := run(context.Background(), loaded, code, *fast, *slow); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
}

func run(ctx context.Context, loaded ops.Loaded, instrument model.InstrumentCode, fast, slow int) error {
	db, err := conn.OpenPostgres(loaded.Postgres)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.ClosePostgres(db)
	}()
	st, err := store.New(db)
	if err != nil {
		return err
	}

	meta, err := st.Meta(ctx, instrument)
	if err != nil {
		return err
	}
	if meta == nil || meta.FromMs > loaded.ReplayFromMs || meta.ToMs < loaded.ReplayToMs {
		logs.Warnf("store may not cover %s window, results can be partial", instrument)
	}

	source := stream.NewReplay(st, stream.ReplayConfig{
		Instrument: instrument,
		FromMs:     loaded.ReplayFromMs,
		ToMs:       loaded.ReplayToMs,
		Speed:      loaded.ReplaySpeed,
	})
	if err := source.Start(ctx); err != nil {
		return err
	}

	strategy := newSMACross(fast, slow)
	rt := bot.NewRuntime(strategy, instrument)
	sim := gateway.NewFillSimulator(func(code model.InstrumentCode) (decimal.Decimal, int64, bool) {
		t := rt.LatestTick()
		if t == nil || t.Instrument != code {
			return decimal.Zero, 0, false
		}
		return t.Price, t.TimestampMs, true
	}, loaded.Ledger.FeeRate)
	rt.WithLedger(gateway.NewRetry(sim), loaded.Origin, loaded.Destination, loaded.Ledger)

	supervisor := dispatch.NewSupervisor(source, dispatch.Config{
		InboxCapacity: loaded.InboxCapacity,
	})
	if err := supervisor.Register(rt); err != nil {
		return err
	}
	if err := supervisor.Run(ctx); err != nil {
		return err
	}

	report(rt, supervisor, loaded)
	return nil
}

func report(rt *bot.Runtime, supervisor *dispatch.Supervisor, loaded ops.Loaded) {
	book := rt.Ledger()
	origin, destination := book.Balances()
	snap := supervisor.Metrics().Snapshot()

	var done, canceled int
	fees := decimal.Zero
	for _, side := range []enum.OrderSide{enum.OrderSideBid, enum.OrderSideAsk} {
		orders := book.Archive(side)
		if current := currentOrder(book, side); current != nil {
			orders = append(orders, current)
		}
		for _, o := range orders {
			switch o.State() {
			case enum.OrderStateDone:
				done++
			case enum.OrderStateCancel:
				canceled++
			}
			fees = fees.Add(o.PaidFee)
		}
	}

	pnl := origin.Sub(loaded.Origin)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("backtest %s", rt.Instrument())
	t.AppendRows([]table.Row{
		{"ticks", snap.EventCounts[enum.EventTrade]},
		{"dispatch avg", snap.DispatchLatency.Avg},
		{"orders done", done},
		{"orders canceled", canceled},
		{"fees paid", fees},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"origin balance", origin},
		{"destination balance", destination},
		{"origin pnl", pnl},
	})
	t.Render()
}

func currentOrder(book *ledger.Ledger, side enum.OrderSide) *ledger.Order {
	if side == enum.OrderSideBid {
		return book.Bid()
	}
	return book.Ask()
}
