package matching

import (
	"fmt"
	"time"
)

// TradeStatus is the fill state of one side of a trade.
type TradeStatus uint8

const (
	Undefined TradeStatus = iota
	Success
	PartiallyFilled
	Failed
)

func (s TradeStatus) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Failed:
		return "FAILED"
	default:
		return "UNDEFINED"
	}
}

// ParseTradeStatus is the inverse of String. Unknown names map to Undefined.
func ParseTradeStatus(s string) TradeStatus {
	switch s {
	case "SUCCESS":
		return Success
	case "PARTIALLY_FILLED":
		return PartiallyFilled
	case "FAILED":
		return Failed
	default:
		return Undefined
	}
}

// Trade is one execution between a buy and a sell order. Only the two
// status fields change after creation, once, when the matching pass that
// produced the trade completes.
type Trade struct {
	ID          uint64
	BuyOrderID  uint64
	SellOrderID uint64
	Instrument  string
	Price       float64
	Quantity    int64
	Timestamp   time.Time
	BuyStatus   TradeStatus
	SellStatus  TradeStatus
}

// Value is price times quantity.
func (t Trade) Value() float64 {
	return t.Price * float64(t.Quantity)
}

func (t Trade) String() string {
	return fmt.Sprintf("trade #%d %s %d@%g buy=%d(%s) sell=%d(%s)",
		t.ID, t.Instrument, t.Quantity, t.Price,
		t.BuyOrderID, t.BuyStatus, t.SellOrderID, t.SellStatus)
}
