// Package intent defines the requests producers hand to the order manager.
// Intents carry no engine state; ids are resolved by the consumer.
package intent

import (
	"fmt"

	"matchbook/domain/orderbook"
)

type Kind uint8

const (
	KindAdd Kind = iota + 1
	KindModify
	KindCancel
	KindCreateBook
	KindRemoveBook
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "ADD_ORDER"
	case KindModify:
		return "MODIFY_ORDER"
	case KindCancel:
		return "CANCEL_ORDER"
	case KindCreateBook:
		return "CREATE_BOOK"
	case KindRemoveBook:
		return "REMOVE_BOOK"
	default:
		return "UNKNOWN"
	}
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	for k := KindAdd; k <= KindRemoveBook; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown intent kind %q", s)
}

type AddOrder struct {
	Instrument string
	Price      float64
	Quantity   int64
	Side       orderbook.Side
	Type       orderbook.OrderType
}

type ModifyOrder struct {
	OrderID     uint64
	Instrument  string
	NewPrice    float64
	NewQuantity int64
}

type CancelOrder struct {
	OrderID    uint64
	Instrument string
}

// Intent is one request. Exactly one payload matching Kind is set; book
// admin kinds use Instrument only.
type Intent struct {
	Kind Kind
	// ClientID is opaque to the engine and echoed in results.
	ClientID string

	Add    *AddOrder
	Modify *ModifyOrder
	Cancel *CancelOrder

	Instrument string
}

func NewAdd(clientID string, a AddOrder) Intent {
	return Intent{Kind: KindAdd, ClientID: clientID, Add: &a}
}

func NewModify(clientID string, m ModifyOrder) Intent {
	return Intent{Kind: KindModify, ClientID: clientID, Modify: &m}
}

func NewCancel(clientID string, c CancelOrder) Intent {
	return Intent{Kind: KindCancel, ClientID: clientID, Cancel: &c}
}

func NewCreateBook(clientID, instrument string) Intent {
	return Intent{Kind: KindCreateBook, ClientID: clientID, Instrument: instrument}
}

func NewRemoveBook(clientID, instrument string) Intent {
	return Intent{Kind: KindRemoveBook, ClientID: clientID, Instrument: instrument}
}

// InstrumentName returns the instrument the intent targets.
func (in Intent) InstrumentName() string {
	switch in.Kind {
	case KindAdd:
		if in.Add != nil {
			return in.Add.Instrument
		}
	case KindModify:
		if in.Modify != nil {
			return in.Modify.Instrument
		}
	case KindCancel:
		if in.Cancel != nil {
			return in.Cancel.Instrument
		}
	}
	return in.Instrument
}

// Validate checks shape only: that the payload matching Kind is present.
// Value checks belong to the order factories and the engine.
func (in Intent) Validate() error {
	var ok bool
	switch in.Kind {
	case KindAdd:
		ok = in.Add != nil
	case KindModify:
		ok = in.Modify != nil
	case KindCancel:
		ok = in.Cancel != nil
	case KindCreateBook, KindRemoveBook:
		ok = in.Instrument != ""
	default:
		return fmt.Errorf("%w: intent kind %d", orderbook.ErrInvalidArgument, in.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: %s intent without payload", orderbook.ErrInvalidArgument, in.Kind)
	}
	return nil
}
