package enum

// EventKind describes which kind of stream message a payload carries.
type EventKind uint8

const (
	_event_kind_beg EventKind = iota
	EventTrade
	EventOrderbook
	EventPrice
	EventCandle
	EventFinish
	_event_kind_end
)

func (k EventKind) IsAvailable() bool {
	return k > _event_kind_beg && k < _event_kind_end
}

func (k EventKind) String() string {
	switch k {
	case EventTrade:
		return "trade"
	case EventOrderbook:
		return "orderbook"
	case EventPrice:
		return "price"
	case EventCandle:
		return "candle"
	case EventFinish:
		return "finish"
	default:
		return "unknown"
	}
}
