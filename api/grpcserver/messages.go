package grpcserver

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"

	"matchbook/domain/orderbook"
)

// codecName is the content subtype both ends use: application/grpc+json.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

// -------------------- Requests --------------------

type PlaceOrderRequest struct {
	ClientID   string  `json:"clientId,omitempty"`
	Instrument string  `json:"instrument"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Price      float64 `json:"price,omitempty"`
	Quantity   int64   `json:"quantity"`
}

type ModifyOrderRequest struct {
	ClientID    string  `json:"clientId,omitempty"`
	OrderID     uint64  `json:"orderId"`
	Instrument  string  `json:"instrument"`
	NewPrice    float64 `json:"newPrice"`
	NewQuantity int64   `json:"newQuantity"`
}

type CancelOrderRequest struct {
	ClientID   string `json:"clientId,omitempty"`
	OrderID    uint64 `json:"orderId"`
	Instrument string `json:"instrument"`
}

type GetBookRequest struct {
	Instrument string `json:"instrument"`
	// Depth limits levels per side. 0 returns what was published.
	Depth int `json:"depth,omitempty"`
}

type CreateBookRequest struct {
	Instrument string `json:"instrument"`
}

// -------------------- Replies --------------------

type Trade struct {
	ID          uint64  `json:"tradeId"`
	BuyOrderID  uint64  `json:"buyOrderId"`
	SellOrderID uint64  `json:"sellOrderId"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
	BuyStatus   string  `json:"buyOrderStatus"`
	SellStatus  string  `json:"sellOrderStatus"`
}

type OrderReply struct {
	Seq       uint64  `json:"seq"`
	OrderID   uint64  `json:"orderId,omitempty"`
	Status    string  `json:"status"`
	Remaining int64   `json:"remaining,omitempty"`
	Unfilled  int64   `json:"unfilled,omitempty"`
	Trades    []Trade `json:"trades,omitempty"`
}

type BookReply struct {
	Seq            uint64                `json:"seq"`
	Instrument     string                `json:"instrument"`
	Bids           []orderbook.LevelView `json:"bids"`
	Asks           []orderbook.LevelView `json:"asks"`
	LastTradePrice float64               `json:"lastTradePrice,omitempty"`
	HasLastTrade   bool                  `json:"hasLastTrade,omitempty"`
}
