package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "matchbook.v1.OrderBookService"

// Full method names
const (
	MethodSubmitOrder      = "/" + ServiceName + "/SubmitOrder"
	MethodCancelOrder      = "/" + ServiceName + "/CancelOrder"
	MethodGetBBO           = "/" + ServiceName + "/GetBBO"
	MethodGetDepth         = "/" + ServiceName + "/GetDepth"
	MethodListBooks        = "/" + ServiceName + "/ListBooks"
	MethodStreamMarketData = "/" + ServiceName + "/StreamMarketData"
)

// OrderBookServiceServer is the server API of the order book service
type OrderBookServiceServer interface {
	SubmitOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	CancelOrder(context.Context, *CancelRequest) (*OrderResponse, error)
	GetBBO(context.Context, *BookRequest) (*BBO, error)
	GetDepth(context.Context, *BookRequest) (*Depth, error)
	ListBooks(context.Context, *ListBooksRequest) (*ListBooksResponse, error)
	// StreamMarketData sends the current book followed by every committed event
	StreamMarketData(*BookRequest, grpc.ServerStreamingServer[Event]) error
}

// RegisterOrderBookServiceServer registers srv with s
func RegisterOrderBookServiceServer(s grpc.ServiceRegistrar, srv OrderBookServiceServer) {
	s.RegisterService(&OrderBookServiceDesc, srv)
}

func unaryHandler[Req, Res any](method string, call func(OrderBookServiceServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderBookServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderBookServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamMarketDataHandler(srv any, stream grpc.ServerStream) error {
	in := new(BookRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(OrderBookServiceServer).StreamMarketData(in, &grpc.GenericServerStream[BookRequest, Event]{ServerStream: stream})
}

// OrderBookServiceDesc describes the order book service for grpc.Server
var OrderBookServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderBookServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitOrder", Handler: unaryHandler(MethodSubmitOrder, OrderBookServiceServer.SubmitOrder)},
		{MethodName: "CancelOrder", Handler: unaryHandler(MethodCancelOrder, OrderBookServiceServer.CancelOrder)},
		{MethodName: "GetBBO", Handler: unaryHandler(MethodGetBBO, OrderBookServiceServer.GetBBO)},
		{MethodName: "GetDepth", Handler: unaryHandler(MethodGetDepth, OrderBookServiceServer.GetDepth)},
		{MethodName: "ListBooks", Handler: unaryHandler(MethodListBooks, OrderBookServiceServer.ListBooks)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamMarketData",
			Handler:       streamMarketDataHandler,
			ServerStreams: true,
		},
	},
	Metadata: "matchbook/v1/orderbook.proto",
}

// OrderBookServiceClient is the client API of the order book service
type OrderBookServiceClient interface {
	SubmitOrder(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	CancelOrder(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	GetBBO(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (*BBO, error)
	GetDepth(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (*Depth, error)
	ListBooks(ctx context.Context, in *ListBooksRequest, opts ...grpc.CallOption) (*ListBooksResponse, error)
	StreamMarketData(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Event], error)
}

type orderBookServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderBookServiceClient creates a client on cc. Every call is sent with
// the JSON codec.
func NewOrderBookServiceClient(cc grpc.ClientConnInterface) OrderBookServiceClient {
	return &orderBookServiceClient{cc: cc}
}

func invoke[Req, Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderBookServiceClient) SubmitOrder(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderRequest, OrderResponse](ctx, c.cc, MethodSubmitOrder, in, opts)
}

func (c *orderBookServiceClient) CancelOrder(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[CancelRequest, OrderResponse](ctx, c.cc, MethodCancelOrder, in, opts)
}

func (c *orderBookServiceClient) GetBBO(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (*BBO, error) {
	return invoke[BookRequest, BBO](ctx, c.cc, MethodGetBBO, in, opts)
}

func (c *orderBookServiceClient) GetDepth(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (*Depth, error) {
	return invoke[BookRequest, Depth](ctx, c.cc, MethodGetDepth, in, opts)
}

func (c *orderBookServiceClient) ListBooks(ctx context.Context, in *ListBooksRequest, opts ...grpc.CallOption) (*ListBooksResponse, error) {
	return invoke[ListBooksRequest, ListBooksResponse](ctx, c.cc, MethodListBooks, in, opts)
}

func (c *orderBookServiceClient) StreamMarketData(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Event], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &OrderBookServiceDesc.Streams[0], MethodStreamMarketData, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[BookRequest, Event]{ClientStream: stream}
	if err := x.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
