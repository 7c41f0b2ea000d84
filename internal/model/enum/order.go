package enum

// OrderSide is the side of an order slot.
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBid
	OrderSideAsk
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBid:
		return "bid"
	case OrderSideAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBid:
		return OrderSideAsk
	case OrderSideAsk:
		return OrderSideBid
	default:
		return s
	}
}

// OrderType distinguishes limit from market orders.
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeMarket:
		return "market"
	default:
		return "unknown"
	}
}

// OrderState is the lifecycle state of one order instance.
//
// Valid transitions: none -> wait -> {done, cancel}.
// done and cancel are terminal for that instance.
type OrderState uint8

const (
	OrderStateNone OrderState = iota
	OrderStateWait
	OrderStateDone
	OrderStateCancel
)

func (s OrderState) String() string {
	switch s {
	case OrderStateWait:
		return "wait"
	case OrderStateDone:
		return "done"
	case OrderStateCancel:
		return "cancel"
	default:
		return "none"
	}
}

// IsTerminal reports whether no further transition may happen.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateDone || s == OrderStateCancel
}
