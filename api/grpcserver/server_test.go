package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"matchbook/domain/matching"
	"matchbook/infra/queue"
	"matchbook/infra/sequence"
	"matchbook/service"
	"matchbook/snapshot"
)

func newClient(t *testing.T) *Client {
	t.Helper()

	ids := sequence.NewIDGenerator()
	engine := matching.New(ids)
	require.NoError(t, engine.CreateOrderBook("AAPL"))
	store := snapshot.NewStore()
	manager := service.NewOrderManager(engine, queue.New[service.Message](), ids, service.WithSnapshots(store, 0))
	require.NoError(t, manager.Start(context.Background()))
	t.Cleanup(manager.Stop)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(manager, store, nil).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestPlaceMatchAndReadBook(t *testing.T) {
	c := newClient(t)

	bid, err := c.PlaceOrder(ctx(t), &PlaceOrderRequest{Instrument: "AAPL", Side: "BUY", Type: "LIMIT", Price: 150, Quantity: 100})
	require.NoError(t, err)
	assert.Equal(t, "RESTING", bid.Status)
	assert.NotZero(t, bid.OrderID)

	ask, err := c.PlaceOrder(ctx(t), &PlaceOrderRequest{Instrument: "AAPL", Side: "sell", Type: "limit", Price: 149, Quantity: 40})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", ask.Status)
	require.Len(t, ask.Trades, 1)
	assert.Equal(t, 150.0, ask.Trades[0].Price)
	assert.Equal(t, bid.OrderID, ask.Trades[0].BuyOrderID)
	assert.Equal(t, "PARTIALLY_FILLED", ask.Trades[0].BuyStatus)
	assert.Equal(t, "SUCCESS", ask.Trades[0].SellStatus)

	book, err := c.GetBook(ctx(t), &GetBookRequest{Instrument: "AAPL", Depth: 1})
	require.NoError(t, err)
	assert.Equal(t, ask.Seq, book.Seq)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, int64(60), book.Bids[0].TotalQuantity)
	assert.Empty(t, book.Asks)
	assert.True(t, book.HasLastTrade)
	assert.Equal(t, 150.0, book.LastTradePrice)

	mod, err := c.ModifyOrder(ctx(t), &ModifyOrderRequest{OrderID: bid.OrderID, Instrument: "AAPL", NewPrice: 150, NewQuantity: 10})
	require.NoError(t, err)
	assert.Equal(t, "MODIFIED", mod.Status)
	assert.Equal(t, int64(10), mod.Remaining)

	cxl, err := c.CancelOrder(ctx(t), &CancelOrderRequest{OrderID: bid.OrderID, Instrument: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", cxl.Status)
}

func TestStatusCodes(t *testing.T) {
	c := newClient(t)

	code := func(err error) codes.Code {
		require.Error(t, err)
		return status.Code(err)
	}

	_, err := c.PlaceOrder(ctx(t), &PlaceOrderRequest{Instrument: "AAPL", Side: "UP", Type: "LIMIT", Price: 1, Quantity: 1})
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = c.PlaceOrder(ctx(t), &PlaceOrderRequest{Instrument: "AAPL", Side: "BUY", Type: "LIMIT", Price: 1, Quantity: 0})
	assert.Equal(t, codes.InvalidArgument, code(err))

	_, err = c.PlaceOrder(ctx(t), &PlaceOrderRequest{Instrument: "MSFT", Side: "BUY", Type: "LIMIT", Price: 1, Quantity: 1})
	assert.Equal(t, codes.NotFound, code(err))

	_, err = c.PlaceOrder(ctx(t), &PlaceOrderRequest{Instrument: "AAPL", Side: "BUY", Type: "STOP", Price: 1, Quantity: 1})
	assert.Equal(t, codes.Unimplemented, code(err))

	_, err = c.CancelOrder(ctx(t), &CancelOrderRequest{OrderID: 12345, Instrument: "AAPL"})
	assert.Equal(t, codes.NotFound, code(err))

	_, err = c.CreateBook(ctx(t), &CreateBookRequest{Instrument: "AAPL"})
	assert.Equal(t, codes.FailedPrecondition, code(err))

	_, err = c.GetBook(ctx(t), &GetBookRequest{Instrument: "MSFT"})
	assert.Equal(t, codes.NotFound, code(err))
}

func TestCreateBookThenTrade(t *testing.T) {
	c := newClient(t)

	r, err := c.CreateBook(ctx(t), &CreateBookRequest{Instrument: "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", r.Status)

	_, err = c.PlaceOrder(ctx(t), &PlaceOrderRequest{Instrument: "MSFT", Side: "SELL", Type: "LIMIT", Price: 300, Quantity: 5})
	require.NoError(t, err)
	mkt, err := c.PlaceOrder(ctx(t), &PlaceOrderRequest{Instrument: "MSFT", Side: "BUY", Type: "MARKET", Quantity: 8})
	require.NoError(t, err)
	assert.Equal(t, "PARTIALLY_FILLED", mkt.Status)
	assert.Equal(t, int64(3), mkt.Unfilled)
}
