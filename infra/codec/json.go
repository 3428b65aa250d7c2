package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"matchbook/domain/intent"
	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
)

// JSON is the text form. Intents use the gateway message layout:
//
//	{"type":"ADD_ORDER","instrument":"AAPL","price":150.0,"quantity":100,"isBuy":true,"orderType":"LIMIT"}
//	{"type":"MODIFY_ORDER","orderId":7,"instrument":"AAPL","newPrice":151.0,"newQuantity":50}
//	{"type":"CANCEL_ORDER","orderId":7,"instrument":"AAPL"}
type JSON struct{}

func (JSON) Name() string { return "json" }

type tradeJSON struct {
	TradeID     uint64    `json:"tradeId"`
	BuyOrderID  uint64    `json:"buyOrderId"`
	SellOrderID uint64    `json:"sellOrderId"`
	Instrument  string    `json:"instrument"`
	Price       float64   `json:"price"`
	Quantity    int64     `json:"quantity"`
	Timestamp   time.Time `json:"timestamp"`
	BuyStatus   string    `json:"buyOrderStatus"`
	SellStatus  string    `json:"sellOrderStatus"`
}

// TradeJSON converts t to its JSON layout.
func TradeJSON(t matching.Trade) any {
	return tradeJSON{
		TradeID:     t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Instrument:  t.Instrument,
		Price:       t.Price,
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp,
		BuyStatus:   t.BuyStatus.String(),
		SellStatus:  t.SellStatus.String(),
	}
}

func (JSON) EncodeTrade(t matching.Trade) ([]byte, error) {
	return json.Marshal(TradeJSON(t))
}

func (JSON) DecodeTrade(b []byte) (matching.Trade, error) {
	var w tradeJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return matching.Trade{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return matching.Trade{
		ID:          w.TradeID,
		BuyOrderID:  w.BuyOrderID,
		SellOrderID: w.SellOrderID,
		Instrument:  w.Instrument,
		Price:       w.Price,
		Quantity:    w.Quantity,
		Timestamp:   w.Timestamp,
		BuyStatus:   matching.ParseTradeStatus(w.BuyStatus),
		SellStatus:  matching.ParseTradeStatus(w.SellStatus),
	}, nil
}

// intentJSON uses pointers so missing fields can be told from zero values.
type intentJSON struct {
	Type        string   `json:"type"`
	ClientID    string   `json:"clientId,omitempty"`
	Instrument  *string  `json:"instrument,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Quantity    *int64   `json:"quantity,omitempty"`
	IsBuy       *bool    `json:"isBuy,omitempty"`
	OrderType   *string  `json:"orderType,omitempty"`
	OrderID     *uint64  `json:"orderId,omitempty"`
	NewPrice    *float64 `json:"newPrice,omitempty"`
	NewQuantity *int64   `json:"newQuantity,omitempty"`
}

func (JSON) EncodeIntent(in intent.Intent) ([]byte, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	instr := in.InstrumentName()
	w := intentJSON{Type: in.Kind.String(), ClientID: in.ClientID, Instrument: &instr}

	switch in.Kind {
	case intent.KindAdd:
		a := in.Add
		isBuy := a.Side == orderbook.Buy
		typ := a.Type.String()
		w.Price, w.Quantity, w.IsBuy, w.OrderType = &a.Price, &a.Quantity, &isBuy, &typ
	case intent.KindModify:
		m := in.Modify
		w.OrderID, w.NewPrice, w.NewQuantity = &m.OrderID, &m.NewPrice, &m.NewQuantity
	case intent.KindCancel:
		w.OrderID = &in.Cancel.OrderID
	}
	return json.Marshal(w)
}

// DecodeIntent rejects messages that miss a field their type requires.
func (JSON) DecodeIntent(b []byte) (intent.Intent, error) {
	var w intentJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return intent.Intent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == "" {
		return intent.Intent{}, fmt.Errorf("%w: missing or invalid 'type' field", ErrMalformed)
	}
	kind, err := intent.ParseKind(w.Type)
	if err != nil {
		return intent.Intent{}, fmt.Errorf("%w: unsupported message type %q", ErrMalformed, w.Type)
	}
	if w.Instrument == nil || *w.Instrument == "" {
		return intent.Intent{}, fmt.Errorf("%w: %s requires instrument", ErrMalformed, kind)
	}
	instr := *w.Instrument

	switch kind {
	case intent.KindAdd:
		if w.Price == nil || w.Quantity == nil || w.IsBuy == nil || w.OrderType == nil {
			return intent.Intent{}, fmt.Errorf("%w: missing required fields for ADD_ORDER", ErrMalformed)
		}
		typ, err := orderbook.ParseOrderType(*w.OrderType)
		if err != nil {
			return intent.Intent{}, err
		}
		side := orderbook.Sell
		if *w.IsBuy {
			side = orderbook.Buy
		}
		return intent.NewAdd(w.ClientID, intent.AddOrder{
			Instrument: instr, Price: *w.Price, Quantity: *w.Quantity, Side: side, Type: typ,
		}), nil
	case intent.KindModify:
		if w.OrderID == nil || w.NewPrice == nil || w.NewQuantity == nil {
			return intent.Intent{}, fmt.Errorf("%w: missing required fields for MODIFY_ORDER", ErrMalformed)
		}
		return intent.NewModify(w.ClientID, intent.ModifyOrder{
			OrderID: *w.OrderID, Instrument: instr, NewPrice: *w.NewPrice, NewQuantity: *w.NewQuantity,
		}), nil
	case intent.KindCancel:
		if w.OrderID == nil {
			return intent.Intent{}, fmt.Errorf("%w: missing required fields for CANCEL_ORDER", ErrMalformed)
		}
		return intent.NewCancel(w.ClientID, intent.CancelOrder{OrderID: *w.OrderID, Instrument: instr}), nil
	case intent.KindCreateBook:
		return intent.NewCreateBook(w.ClientID, instr), nil
	default:
		return intent.NewRemoveBook(w.ClientID, instr), nil
	}
}
