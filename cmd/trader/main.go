package main

import (
	"context"
	"flag"
	"log"
	"sync"

	"github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/bot"
	"main/internal/dispatch"
	"main/internal/gateway"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/ops"
	"main/internal/store"
	"main/internal/stream"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	pyroscopeURL := flag.String("pyroscope-url", "", "Pyroscope server address (empty=disabled)")
	record := flag.Bool("record", false, "Persist live ticks to the historical store")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *pyroscopeURL != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trader",
			ServerAddress:   *pyroscopeURL,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, loaded, *record); err != nil {
		log.Fatalf("trader failed: %v", err)
	}
}

func run(ctx context.Context, loaded ops.Loaded, record bool) error {
	source := stream.NewLive(ctx, stream.LiveConfig{
		URL:         loaded.WebsocketURL,
		Instruments: loaded.Instruments,
		Keepalive:   loaded.Keepalive,
	})
	if err := source.Start(ctx); err != nil {
		return err
	}

	supervisor := dispatch.NewSupervisor(source, dispatch.Config{
		InboxCapacity: loaded.InboxCapacity,
		DropWhenFull:  true,
	})

	// Paper trading: orders fill against a simulator priced off the
	// live feed, while balances move through the real ledger path.
	board := newPriceBoard()
	sim := gateway.NewFillSimulator(board.price, loaded.Ledger.FeeRate)
	gw := gateway.NewRetry(sim)

	for _, instrument := range loaded.Instruments {
		rt := bot.NewRuntime(&quoteWatcher{board: board}, instrument).
			WithLedger(gw, loaded.Origin, loaded.Destination, loaded.Ledger)
		if err := supervisor.Register(rt); err != nil {
			return err
		}
	}

	if record {
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
		for _, instrument := range loaded.Instruments {
			rt := bot.NewRuntime(newTickRecorder(st), instrument)
			if err := supervisor.Register(rt); err != nil {
				return err
			}
		}
	}

	go func() {
		<-sys.Shutdown()
		logs.Info("shutting down")
		source.Close()
	}()

	err := supervisor.Run(ctx)

	snap := supervisor.Metrics().Snapshot()
	logs.Infof("session closed: %d trades, %d drops, dispatch avg %s",
		snap.EventCounts[enum.EventTrade], snap.InboxDrops, snap.DispatchLatency.Avg)
	return err
}

// priceBoard shares the latest trade price per instrument between the
// watcher runtimes and the fill simulator.
type priceBoard struct {
	mu     sync.RWMutex
	latest map[model.InstrumentCode]model.Tick
}

func newPriceBoard() *priceBoard {
	return &priceBoard{latest: make(map[model.InstrumentCode]model.Tick)}
}

func (b *priceBoard) observe(t model.Tick) {
	b.mu.Lock()
	b.latest[t.Instrument] = t
	b.mu.Unlock()
}

func (b *priceBoard) price(instrument model.InstrumentCode) (decimal.Decimal, int64, bool) {
	b.mu.RLock()
	t, ok := b.latest[instrument]
	b.mu.RUnlock()
	if !ok {
		return decimal.Zero, 0, false
	}
	return t.Price, t.TimestampMs, true
}

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...any)  {}
func (emptyLogger) Debugf(string, ...any) {}
func (emptyLogger) Errorf(string, ...any) {}
