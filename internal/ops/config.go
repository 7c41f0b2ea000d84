package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/ledger"
	"main/internal/model"
	"main/pkg/conn"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Exchange ExchangeConfig      `json:"exchange"`
	Book     BookConfig          `json:"book"`
	Postgres conn.PostgresOption `json:"postgres"`
	Replay   ReplayConfig        `json:"replay"`
	Dispatch DispatchConfig      `json:"dispatch"`
}

// ExchangeConfig describes the live venue connection.
type ExchangeConfig struct {
	WebsocketURL string   `json:"websocketUrl"`
	APIKey       string   `json:"apiKey"`
	APISecret    string   `json:"apiSecret"`
	Instruments  []string `json:"instruments"`
	KeepaliveSec int      `json:"keepaliveSec"`
}

// BookConfig describes order-ledger parameters and starting balances.
type BookConfig struct {
	FeeRate           float64 `json:"feeRate"`
	VolumePrecision   int32   `json:"volumePrecision"`
	NotionalPrecision int32   `json:"notionalPrecision"`
	PollIntervalSec   int     `json:"pollIntervalSec"`
	OriginBalance     string  `json:"originBalance"`
	Destination       string  `json:"destinationBalance"`
}

// ReplayConfig bounds a backtest window. Times are RFC 3339.
type ReplayConfig struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Speed float64 `json:"speed"`
}

// DispatchConfig tunes the supervisor queue.
type DispatchConfig struct {
	InboxCapacity int `json:"inboxCapacity"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	WebsocketURL  string
	APIKey        string
	APISecret     string
	Instruments   []model.InstrumentCode
	Keepalive     time.Duration
	Ledger        ledger.Config
	Origin        decimal.Decimal
	Destination   decimal.Decimal
	Postgres      conn.PostgresOption
	ReplayFromMs  int64
	ReplayToMs    int64
	ReplaySpeed   float64
	InboxCapacity int
}

// Load reads a JSON config file and resolves it, failing fast on
// anything malformed.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if len(cfg.Exchange.Instruments) == 0 {
		return Loaded{}, fmt.Errorf("no instruments configured")
	}
	instruments := make([]model.InstrumentCode, 0, len(cfg.Exchange.Instruments))
	for _, raw := range cfg.Exchange.Instruments {
		if raw == "" {
			return Loaded{}, fmt.Errorf("empty instrument code")
		}
		instruments = append(instruments, model.InstrumentCode(raw))
	}

	if cfg.Book.FeeRate < 0 || cfg.Book.FeeRate >= 1 {
		return Loaded{}, fmt.Errorf("fee rate out of range: %v", cfg.Book.FeeRate)
	}
	if cfg.Book.VolumePrecision < 0 || cfg.Book.NotionalPrecision < 0 {
		return Loaded{}, fmt.Errorf("precision must be >= 0")
	}

	origin, err := balance(cfg.Book.OriginBalance)
	if err != nil {
		return Loaded{}, fmt.Errorf("origin balance: %w", err)
	}
	destination, err := balance(cfg.Book.Destination)
	if err != nil {
		return Loaded{}, fmt.Errorf("destination balance: %w", err)
	}

	fromMs, toMs, err := window(cfg.Replay)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		WebsocketURL: cfg.Exchange.WebsocketURL,
		APIKey:       cfg.Exchange.APIKey,
		APISecret:    cfg.Exchange.APISecret,
		Instruments:  instruments,
		Keepalive:    time.Duration(cfg.Exchange.KeepaliveSec) * time.Second,
		Ledger: ledger.Config{
			FeeRate:           decimal.NewFromFloat(cfg.Book.FeeRate),
			VolumePrecision:   cfg.Book.VolumePrecision,
			NotionalPrecision: cfg.Book.NotionalPrecision,
			PollInterval:      time.Duration(cfg.Book.PollIntervalSec) * time.Second,
		},
		Origin:        origin,
		Destination:   destination,
		Postgres:      cfg.Postgres,
		ReplayFromMs:  fromMs,
		ReplayToMs:    toMs,
		ReplaySpeed:   cfg.Replay.Speed,
		InboxCapacity: cfg.Dispatch.InboxCapacity,
	}, nil
}

func balance(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("balance must be >= 0: %s", raw)
	}
	return v, nil
}

func window(cfg ReplayConfig) (int64, int64, error) {
	if cfg.From == "" && cfg.To == "" {
		return 0, 0, nil
	}
	from, err := time.Parse(time.RFC3339, cfg.From)
	if err != nil {
		return 0, 0, fmt.Errorf("replay from: %w", err)
	}
	to, err := time.Parse(time.RFC3339, cfg.To)
	if err != nil {
		return 0, 0, fmt.Errorf("replay to: %w", err)
	}
	if !to.After(from) {
		return 0, 0, fmt.Errorf("replay window is empty: %s .. %s", cfg.From, cfg.To)
	}
	return from.UnixMilli(), to.UnixMilli(), nil
}
