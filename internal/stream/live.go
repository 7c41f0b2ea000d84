package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/model"
	"main/internal/model/enum"
)

const (
	defaultKeepalive = 30 * time.Second

	channelTrades    = "trades"
	channelOrderbook = "orderbook"
	channelTicker    = "ticker"
)

// LiveConfig describes the live connection.
type LiveConfig struct {
	URL         string
	Instruments []model.InstrumentCode
	Keepalive   time.Duration
}

// Live streams messages from the exchange websocket. The underlying
// connection reconnects on unexpected drops; an explicit Close tears it
// down for good.
type Live struct {
	wss    *ws.WebSocket
	cfg    LiveConfig
	out    chan Message
	seq    int64
	closed atomic.Bool
}

// NewLive creates a live source for the configured instruments.
func NewLive(ctx context.Context, cfg LiveConfig) *Live {
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = defaultKeepalive
	}
	return &Live{
		wss: ws.New(ctx, cfg.URL),
		cfg: cfg,
		out: make(chan Message),
	}
}

// Messages returns the inbound message channel.
func (l *Live) Messages() <-chan Message {
	return l.out
}

// Close tears the connection down deliberately, suppressing reconnect.
func (l *Live) Close() {
	if l.closed.CompareAndSwap(false, true) {
		l.wss.Close()
	}
}

// Start opens the connection, subscribes every instrument's channels
// and launches the read and keepalive loops.
func (l *Live) Start(ctx context.Context) error {
	if err := l.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}

	for _, instrument := range l.cfg.Instruments {
		for _, channel := range []string{channelTrades, channelOrderbook, channelTicker} {
			if err := l.subscribe(ctx, channel, instrument); err != nil {
				return errors.Wrap(err, "subscribe "+channel)
			}
		}
	}

	go l.observe(ctx)
	go l.keepalive(ctx)
	return nil
}

type subscribeRequest struct {
	ID     int64    `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type subscribeResponse struct {
	ID     int64  `json:"id"`
	Result string `json:"result"`
}

func (l *Live) subscribe(ctx context.Context, channel string, instrument model.InstrumentCode) error {
	l.seq++
	id := l.seq
	if err := l.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			if err := client.WriteJSON(subscribeRequest{
				ID:     id,
				Method: "subscribe",
				Params: []string{channel, string(instrument)},
			}); err != nil {
				return errors.Wrap(err, "write subscribe payload")
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[subscribeResponse](m)
			if !ok || resp.ID != id {
				return false, nil
			}
			return resp.Result == "success", nil
		},
	}); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

type wireTrade struct {
	ID        int64           `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Side      string          `json:"side"`
	Timestamp int64           `json:"timestamp"`
}

type wireLevel struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

type wireEnvelope struct {
	Channel    string          `json:"channel"`
	Instrument string          `json:"instrument"`
	Snapshot   bool            `json:"snapshot"`
	Timestamp  int64           `json:"timestamp"`
	Trades     []wireTrade     `json:"trades,omitempty"`
	Bids       []wireLevel     `json:"bids,omitempty"`
	Asks       []wireLevel     `json:"asks,omitempty"`
	Last       decimal.Decimal `json:"last,omitempty"`
	High       decimal.Decimal `json:"high,omitempty"`
	Low        decimal.Decimal `json:"low,omitempty"`
	Volume     decimal.Decimal `json:"vol,omitempty"`
}

func (l *Live) observe(ctx context.Context) {
	ch, cancel := l.wss.Subscribe()
	defer cancel()
	defer close(l.out)

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}

			env, ok := ws.ReadMessage[wireEnvelope](m)
			if !ok || env.Instrument == "" {
				continue
			}
			for _, msg := range l.convert(env) {
				select {
				case <-ctx.Done():
					return
				case l.out <- msg:
				}
			}
		}
	}
}

func (l *Live) convert(env wireEnvelope) []Message {
	instrument := model.InstrumentCode(env.Instrument)
	switch env.Channel {
	case channelTrades:
		kind := enum.StreamRealtime
		if env.Snapshot {
			kind = enum.StreamSnapshot
		}
		out := make([]Message, 0, len(env.Trades))
		for _, t := range env.Trades {
			side := enum.OrderSideBid
			if t.Side == "sell" {
				side = enum.OrderSideAsk
			}
			tick := &model.Tick{
				Instrument:   instrument,
				Price:        t.Price,
				Volume:       t.Volume,
				Side:         side,
				TimestampMs:  t.Timestamp,
				SequentialID: t.ID,
				Stream:       kind,
			}
			out = append(out, Message{Kind: enum.EventTrade, Instrument: instrument, Tick: tick})
		}
		return out

	case channelOrderbook:
		book := &model.OrderbookSnapshot{
			Instrument:  instrument,
			TimestampMs: env.Timestamp,
			Bids:        levels(env.Bids),
			Asks:        levels(env.Asks),
		}
		return []Message{{Kind: enum.EventOrderbook, Instrument: instrument, Orderbook: book}}

	case channelTicker:
		price := &model.PriceSnapshot{
			Instrument:  instrument,
			TimestampMs: env.Timestamp,
			Last:        env.Last,
			High:        env.High,
			Low:         env.Low,
			Volume:      env.Volume,
		}
		return []Message{{Kind: enum.EventPrice, Instrument: instrument, Price: price}}
	}
	return nil
}

func levels(in []wireLevel) []model.Level {
	out := make([]model.Level, 0, len(in))
	for _, l := range in {
		out = append(out, model.Level{Price: l.Price, Volume: l.Volume})
	}
	return out
}

func (l *Live) keepalive(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.closed.Load() {
				return
			}
			if err := l.wss.WriteJSON(map[string]any{"method": "ping"}); err != nil {
				logs.Warnf("keepalive ping, err: %+v", err)
			}
		}
	}
}
