package service

import (
	"time"

	"matchbook/domain/intent"
	"matchbook/domain/matching"
)

type Status uint8

const (
	StatusUnknown Status = iota
	// StatusAccepted is used for book admin intents.
	StatusAccepted
	StatusFilled
	StatusPartiallyFilled
	StatusResting
	StatusCancelled
	StatusModified
	// StatusIgnored marks a tolerated no-op, e.g. cancel of an order that
	// already left the book.
	StatusIgnored
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "ACCEPTED"
	case StatusFilled:
		return "FILLED"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusResting:
		return "RESTING"
	case StatusCancelled:
		return "CANCELLED"
	case StatusModified:
		return "MODIFIED"
	case StatusIgnored:
		return "IGNORED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Result is what applying one message produced.
type Result struct {
	// Seq numbers applied messages, starting at 1.
	Seq        uint64
	Kind       intent.Kind
	ClientID   string
	Instrument string
	OrderID    uint64
	Status     Status
	Trades     []matching.Trade
	// Remaining is the quantity left resting after the message.
	Remaining int64
	// Unfilled is the market order quantity that found no liquidity.
	Unfilled int64
	Err      error

	Received time.Time
	Applied  time.Time
}

// Filled is the quantity traded by the message.
func (r Result) Filled() int64 {
	var n int64
	for _, t := range r.Trades {
		n += t.Quantity
	}
	return n
}

// Listener receives every Result on the consumer goroutine. It must not
// block and must not call back into the manager synchronously.
type Listener interface {
	OnResult(Result)
}

type ListenerFunc func(Result)

func (f ListenerFunc) OnResult(r Result) { f(r) }
