package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "matchbook.v1.OrderService"

// ServiceDesc is declared by hand in place of protoc output.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method("PlaceOrder", OrderServiceServer.PlaceOrder),
		method("ModifyOrder", OrderServiceServer.ModifyOrder),
		method("CancelOrder", OrderServiceServer.CancelOrder),
		method("GetBook", OrderServiceServer.GetBook),
		method("CreateBook", OrderServiceServer.CreateBook),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matchbook/v1/order_service",
}

// method builds the decode, intercept and call boilerplate of one unary
// method from its interface method expression.
func method[Req, Resp any](name string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	handler := func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(OrderServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		})
	}
	return grpc.MethodDesc{MethodName: name, Handler: handler}
}
