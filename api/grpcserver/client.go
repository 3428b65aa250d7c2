package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls OrderService over conn using the JSON codec.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) PlaceOrder(ctx context.Context, req *PlaceOrderRequest, opts ...grpc.CallOption) (*OrderReply, error) {
	return invoke[OrderReply](ctx, c.conn, "PlaceOrder", req, opts)
}

func (c *Client) ModifyOrder(ctx context.Context, req *ModifyOrderRequest, opts ...grpc.CallOption) (*OrderReply, error) {
	return invoke[OrderReply](ctx, c.conn, "ModifyOrder", req, opts)
}

func (c *Client) CancelOrder(ctx context.Context, req *CancelOrderRequest, opts ...grpc.CallOption) (*OrderReply, error) {
	return invoke[OrderReply](ctx, c.conn, "CancelOrder", req, opts)
}

func (c *Client) GetBook(ctx context.Context, req *GetBookRequest, opts ...grpc.CallOption) (*BookReply, error) {
	return invoke[BookReply](ctx, c.conn, "GetBook", req, opts)
}

func (c *Client) CreateBook(ctx context.Context, req *CreateBookRequest, opts ...grpc.CallOption) (*OrderReply, error) {
	return invoke[OrderReply](ctx, c.conn, "CreateBook", req, opts)
}

func invoke[Resp any](ctx context.Context, conn grpc.ClientConnInterface, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := conn.Invoke(ctx, "/"+serviceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
