package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/intent"
	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
)

func sampleTrade() matching.Trade {
	return matching.Trade{
		ID:          42,
		BuyOrderID:  7,
		SellOrderID: 9,
		Instrument:  "AAPL",
		Price:       150.25,
		Quantity:    100,
		Timestamp:   time.Unix(1700000000, 123456789).UTC(),
		BuyStatus:   matching.Success,
		SellStatus:  matching.PartiallyFilled,
	}
}

func TestTradeSurvivesBothCodecs(t *testing.T) {
	for _, c := range []Codec{Proto{}, JSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.EncodeTrade(sampleTrade())
			require.NoError(t, err)
			got, err := c.DecodeTrade(b)
			require.NoError(t, err)
			assert.True(t, sampleTrade().Timestamp.Equal(got.Timestamp))
			got.Timestamp = sampleTrade().Timestamp
			assert.Equal(t, sampleTrade(), got)
		})
	}
}

func TestIntentsSurviveBothCodecs(t *testing.T) {
	intents := []intent.Intent{
		intent.NewAdd("c1", intent.AddOrder{Instrument: "AAPL", Price: 150, Quantity: 100, Side: orderbook.Sell, Type: orderbook.Market}),
		intent.NewModify("c2", intent.ModifyOrder{OrderID: 3, Instrument: "AAPL", NewPrice: 151.5, NewQuantity: 0}),
		intent.NewCancel("", intent.CancelOrder{OrderID: 3, Instrument: "AAPL"}),
		intent.NewCreateBook("console", "MSFT"),
	}
	for _, c := range []Codec{Proto{}, JSON{}} {
		for _, in := range intents {
			b, err := c.EncodeIntent(in)
			require.NoError(t, err)
			got, err := c.DecodeIntent(b)
			require.NoError(t, err, "%s %s", c.Name(), in.Kind)
			assert.Equal(t, in, got, "%s %s", c.Name(), in.Kind)
		}
	}
}

func TestProtoSkipsUnknownFields(t *testing.T) {
	b, err := Proto{}.EncodeTrade(sampleTrade())
	require.NoError(t, err)
	// field 15, varint 1
	b = append(b, 0x78, 0x01)
	got, err := Proto{}.DecodeTrade(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.ID)

	_, err = Proto{}.DecodeTrade([]byte{0x08})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestJSONIntentRequiresFields(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"no type":       `{"instrument":"AAPL"}`,
		"unknown type":  `{"type":"FLY","instrument":"AAPL"}`,
		"add missing":   `{"type":"ADD_ORDER","instrument":"AAPL","price":1}`,
		"modify no id":  `{"type":"MODIFY_ORDER","instrument":"AAPL","newPrice":1,"newQuantity":1}`,
		"cancel no id":  `{"type":"CANCEL_ORDER","instrument":"AAPL"}`,
		"no instrument": `{"type":"CANCEL_ORDER","orderId":1}`,
	}
	for name, raw := range cases {
		_, err := JSON{}.DecodeIntent([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, name)
	}

	_, err := JSON{}.DecodeIntent([]byte(`{"type":"ADD_ORDER","instrument":"AAPL","price":1,"quantity":1,"isBuy":true,"orderType":"ICEBERG"}`))
	assert.ErrorIs(t, err, orderbook.ErrInvalidType)
}

func TestJSONAddOrderLayout(t *testing.T) {
	raw := `{"type":"ADD_ORDER","instrument":"AAPL","price":150.0,"quantity":100,"isBuy":true,"orderType":"limit"}`
	in, err := JSON{}.DecodeIntent([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, intent.KindAdd, in.Kind)
	assert.Equal(t, orderbook.Buy, in.Add.Side)
	assert.Equal(t, orderbook.Limit, in.Add.Type)
	assert.Equal(t, int64(100), in.Add.Quantity)
}

func TestByName(t *testing.T) {
	c, err := ByName("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())
	c, err = ByName("")
	require.NoError(t, err)
	assert.Equal(t, "proto", c.Name())
	_, err = ByName("xml")
	assert.Error(t, err)
}
