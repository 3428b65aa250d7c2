package orderbook

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Side uint8
type OrderType uint8

const (
	Buy Side = iota
	Sell
)

const (
	Limit OrderType = iota
	Market
	Stop
)

// MarketPrice is the sentinel carried by market orders. It is never compared.
const MarketPrice = -1.0

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNDEFINED"
	}
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	case Stop:
		return "STOP"
	default:
		return "UNDEFINED"
	}
}

// ParseOrderType accepts LIMIT, MARKET or STOP in any case.
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(s) {
	case "LIMIT":
		return Limit, nil
	case "MARKET":
		return Market, nil
	case "STOP":
		return Stop, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Order is a resting or incoming order. Quantity is the remaining quantity
// and is the only field the book mutates.
type Order struct {
	ID         uint64
	Instrument string
	Price      float64
	Quantity   int64
	Side       Side
	Type       OrderType
	Timestamp  time.Time
}

func (o *Order) IsBuy() bool {
	return o.Side == Buy
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s %d@%g #%d", o.Instrument, o.Type, o.Side, o.Quantity, o.Price, o.ID)
}

// ---- factories ----

func NewLimitOrder(id uint64, instrument string, price float64, qty int64, side Side) (*Order, error) {
	return newOrder(id, instrument, price, qty, side, Limit)
}

func NewMarketOrder(id uint64, instrument string, qty int64, side Side) (*Order, error) {
	return newOrder(id, instrument, MarketPrice, qty, side, Market)
}

func NewStopOrder(id uint64, instrument string, price float64, qty int64, side Side) (*Order, error) {
	return newOrder(id, instrument, price, qty, side, Stop)
}

// NewOrder dispatches to the factory for typ. Price is ignored for market orders.
func NewOrder(id uint64, instrument string, price float64, qty int64, side Side, typ OrderType) (*Order, error) {
	switch typ {
	case Limit:
		return NewLimitOrder(id, instrument, price, qty, side)
	case Market:
		return NewMarketOrder(id, instrument, qty, side)
	case Stop:
		return NewStopOrder(id, instrument, price, qty, side)
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidType, typ)
}

func newOrder(id uint64, instrument string, price float64, qty int64, side Side, typ OrderType) (*Order, error) {
	o := &Order{
		ID:         id,
		Instrument: instrument,
		Price:      price,
		Quantity:   qty,
		Side:       side,
		Type:       typ,
		Timestamp:  time.Now(),
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the fields a new order must carry before it may touch a
// book. Market orders ignore Price.
func (o *Order) Validate() error {
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("%w: %d", ErrInvalidSide, o.Side)
	}
	switch o.Type {
	case Limit, Stop:
		if !validPrice(o.Price) {
			return fmt.Errorf("%w: got %g", ErrInvalidPrice, o.Price)
		}
	case Market:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidType, o.Type)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, o.Quantity)
	}
	return nil
}

// validPrice accepts only finite prices above zero.
func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 1)
}
