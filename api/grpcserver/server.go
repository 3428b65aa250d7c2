// Package grpcserver exposes the order manager over gRPC. Messages are
// plain structs carried by a JSON codec, so no generated code is needed.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"matchbook/domain/intent"
	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/service"
	"matchbook/snapshot"
)

// Dispatcher is the order manager as seen by the server.
type Dispatcher interface {
	SubmitAndWait(ctx context.Context, in intent.Intent) (service.Result, error)
}

// OrderServiceServer is the handler type of ServiceDesc.
type OrderServiceServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*OrderReply, error)
	ModifyOrder(context.Context, *ModifyOrderRequest) (*OrderReply, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*OrderReply, error)
	GetBook(context.Context, *GetBookRequest) (*BookReply, error)
	CreateBook(context.Context, *CreateBookRequest) (*OrderReply, error)
}

// Server adapts the order manager to gRPC.
type Server struct {
	dispatcher Dispatcher
	books      *snapshot.Store
	log        *zap.Logger
}

var _ OrderServiceServer = (*Server)(nil)

func NewServer(d Dispatcher, books *snapshot.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{dispatcher: d, books: books, log: log}
}

// Register attaches s to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// -------------------- Commands --------------------

func (s *Server) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderReply, error) {
	side, err := toSide(req.Side)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	typ, err := orderbook.ParseOrderType(req.Type)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	price := req.Price
	if typ == orderbook.Market {
		price = orderbook.MarketPrice
	}

	s.log.Debug("PlaceOrder",
		zap.String("instrument", req.Instrument),
		zap.Stringer("side", side),
		zap.Stringer("type", typ),
		zap.Float64("price", price),
		zap.Int64("qty", req.Quantity))

	return s.dispatch(ctx, intent.NewAdd(req.ClientID, intent.AddOrder{
		Instrument: req.Instrument,
		Price:      price,
		Quantity:   req.Quantity,
		Side:       side,
		Type:       typ,
	}))
}

func (s *Server) ModifyOrder(ctx context.Context, req *ModifyOrderRequest) (*OrderReply, error) {
	s.log.Debug("ModifyOrder", zap.Uint64("order_id", req.OrderID), zap.String("instrument", req.Instrument))
	return s.dispatch(ctx, intent.NewModify(req.ClientID, intent.ModifyOrder{
		OrderID:     req.OrderID,
		Instrument:  req.Instrument,
		NewPrice:    req.NewPrice,
		NewQuantity: req.NewQuantity,
	}))
}

func (s *Server) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*OrderReply, error) {
	s.log.Debug("CancelOrder", zap.Uint64("order_id", req.OrderID), zap.String("instrument", req.Instrument))
	return s.dispatch(ctx, intent.NewCancel(req.ClientID, intent.CancelOrder{
		OrderID:    req.OrderID,
		Instrument: req.Instrument,
	}))
}

func (s *Server) CreateBook(ctx context.Context, req *CreateBookRequest) (*OrderReply, error) {
	if req.Instrument == "" {
		return nil, status.Error(codes.InvalidArgument, "instrument required")
	}
	return s.dispatch(ctx, intent.NewCreateBook("grpc", req.Instrument))
}

func (s *Server) dispatch(ctx context.Context, in intent.Intent) (*OrderReply, error) {
	res, err := s.dispatcher.SubmitAndWait(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	if res.Err != nil {
		return nil, toStatus(res.Err)
	}

	reply := &OrderReply{
		Seq:       res.Seq,
		OrderID:   res.OrderID,
		Status:    res.Status.String(),
		Remaining: res.Remaining,
		Unfilled:  res.Unfilled,
	}
	for _, t := range res.Trades {
		reply.Trades = append(reply.Trades, Trade{
			ID:          t.ID,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Price:       t.Price,
			Quantity:    t.Quantity,
			BuyStatus:   t.BuyStatus.String(),
			SellStatus:  t.SellStatus.String(),
		})
	}
	return reply, nil
}

// -------------------- Queries --------------------

// GetBook reads the latest published snapshot and never touches the engine.
func (s *Server) GetBook(_ context.Context, req *GetBookRequest) (*BookReply, error) {
	snap, ok := s.books.Load(req.Instrument)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no book for %q", req.Instrument)
	}
	v := snap.View
	return &BookReply{
		Seq:            snap.Seq,
		Instrument:     v.Instrument,
		Bids:           top(v.Bids, req.Depth),
		Asks:           top(v.Asks, req.Depth),
		LastTradePrice: v.LastTradePrice,
		HasLastTrade:   v.HasLastTrade,
	}, nil
}

// -------------------- Converters --------------------

func top(levels []orderbook.LevelView, depth int) []orderbook.LevelView {
	if depth > 0 && len(levels) > depth {
		return levels[:depth]
	}
	return levels
}

func toSide(s string) (orderbook.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY", "BID":
		return orderbook.Buy, nil
	case "SELL", "ASK":
		return orderbook.Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, orderbook.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, orderbook.ErrOrderNotFound),
		errors.Is(err, matching.ErrUnknownInstrument):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, matching.ErrBookExists),
		errors.Is(err, matching.ErrDuplicateOrderID),
		errors.Is(err, matching.ErrMarketOrderImmutable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, matching.ErrUnsupportedOrderType):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, service.ErrStopped), errors.Is(err, service.ErrJournal):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
