package codec

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"matchbook/domain/intent"
	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
)

// Trade field numbers.
const (
	tradeID protowire.Number = iota + 1
	tradeBuyOrder
	tradeSellOrder
	tradeInstrument
	tradePrice
	tradeQuantity
	tradeTime
	tradeBuyStatus
	tradeSellStatus
)

// Intent field numbers.
const (
	intentKind protowire.Number = iota + 1
	intentClient
	intentInstrument
	intentOrderID
	intentPrice
	intentQuantity
	intentSide
	intentType
)

// Proto writes the protobuf wire format by hand.
type Proto struct{}

func (Proto) Name() string { return "proto" }

func (Proto) EncodeTrade(t matching.Trade) ([]byte, error) {
	b := make([]byte, 0, 64+len(t.Instrument))
	b = appendVarint(b, tradeID, t.ID)
	b = appendVarint(b, tradeBuyOrder, t.BuyOrderID)
	b = appendVarint(b, tradeSellOrder, t.SellOrderID)
	b = appendString(b, tradeInstrument, t.Instrument)
	b = appendDouble(b, tradePrice, t.Price)
	b = appendVarint(b, tradeQuantity, protowire.EncodeZigZag(t.Quantity))
	b = appendVarint(b, tradeTime, protowire.EncodeZigZag(t.Timestamp.UnixNano()))
	b = appendVarint(b, tradeBuyStatus, uint64(t.BuyStatus))
	b = appendVarint(b, tradeSellStatus, uint64(t.SellStatus))
	return b, nil
}

func (Proto) DecodeTrade(b []byte) (matching.Trade, error) {
	var t matching.Trade
	err := consumeFields(b, func(num protowire.Number, v field) error {
		switch num {
		case tradeID:
			t.ID = v.u
		case tradeBuyOrder:
			t.BuyOrderID = v.u
		case tradeSellOrder:
			t.SellOrderID = v.u
		case tradeInstrument:
			t.Instrument = string(v.b)
		case tradePrice:
			t.Price = math.Float64frombits(v.u)
		case tradeQuantity:
			t.Quantity = protowire.DecodeZigZag(v.u)
		case tradeTime:
			t.Timestamp = time.Unix(0, protowire.DecodeZigZag(v.u))
		case tradeBuyStatus:
			t.BuyStatus = matching.TradeStatus(v.u)
		case tradeSellStatus:
			t.SellStatus = matching.TradeStatus(v.u)
		}
		return nil
	})
	return t, err
}

func (Proto) EncodeIntent(in intent.Intent) ([]byte, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	b := make([]byte, 0, 64)
	b = appendVarint(b, intentKind, uint64(in.Kind))
	if in.ClientID != "" {
		b = appendString(b, intentClient, in.ClientID)
	}
	b = appendString(b, intentInstrument, in.InstrumentName())

	switch in.Kind {
	case intent.KindAdd:
		b = appendDouble(b, intentPrice, in.Add.Price)
		b = appendVarint(b, intentQuantity, protowire.EncodeZigZag(in.Add.Quantity))
		b = appendVarint(b, intentSide, uint64(in.Add.Side))
		b = appendVarint(b, intentType, uint64(in.Add.Type))
	case intent.KindModify:
		b = appendVarint(b, intentOrderID, in.Modify.OrderID)
		b = appendDouble(b, intentPrice, in.Modify.NewPrice)
		b = appendVarint(b, intentQuantity, protowire.EncodeZigZag(in.Modify.NewQuantity))
	case intent.KindCancel:
		b = appendVarint(b, intentOrderID, in.Cancel.OrderID)
	}
	return b, nil
}

func (Proto) DecodeIntent(b []byte) (intent.Intent, error) {
	var (
		kind          intent.Kind
		client, instr string
		orderID       uint64
		price         float64
		qty           int64
		side          orderbook.Side
		typ           orderbook.OrderType
	)
	err := consumeFields(b, func(num protowire.Number, v field) error {
		switch num {
		case intentKind:
			kind = intent.Kind(v.u)
		case intentClient:
			client = string(v.b)
		case intentInstrument:
			instr = string(v.b)
		case intentOrderID:
			orderID = v.u
		case intentPrice:
			price = math.Float64frombits(v.u)
		case intentQuantity:
			qty = protowire.DecodeZigZag(v.u)
		case intentSide:
			side = orderbook.Side(v.u)
		case intentType:
			typ = orderbook.OrderType(v.u)
		}
		return nil
	})
	if err != nil {
		return intent.Intent{}, err
	}

	switch kind {
	case intent.KindAdd:
		return intent.NewAdd(client, intent.AddOrder{
			Instrument: instr, Price: price, Quantity: qty, Side: side, Type: typ,
		}), nil
	case intent.KindModify:
		return intent.NewModify(client, intent.ModifyOrder{
			OrderID: orderID, Instrument: instr, NewPrice: price, NewQuantity: qty,
		}), nil
	case intent.KindCancel:
		return intent.NewCancel(client, intent.CancelOrder{OrderID: orderID, Instrument: instr}), nil
	case intent.KindCreateBook:
		return intent.NewCreateBook(client, instr), nil
	case intent.KindRemoveBook:
		return intent.NewRemoveBook(client, instr), nil
	}
	return intent.Intent{}, fmt.Errorf("%w: intent kind %d", ErrMalformed, kind)
}

// ---------------- wire helpers ----------------

// field holds a decoded scalar (u) or length-delimited value (b).
type field struct {
	u uint64
	b []byte
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// consumeFields walks b and calls fn for every varint, fixed64 and bytes
// field. Unknown wire types are skipped.
func consumeFields(b []byte, fn func(protowire.Number, field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		var f field
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, f); err != nil {
			return err
		}
	}
	return nil
}
