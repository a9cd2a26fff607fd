package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lobsim.Simulator"

// SimulatorServer is the RPC surface. Requests and responses are
// protobuf well-known types so no generated code is needed.
type SimulatorServer interface {
	Initialise(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Step(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	PlaceOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarketOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearInventory(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetBook(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func Register(s grpc.ServiceRegistrar, srv SimulatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req any](
	name string,
	call func(SimulatorServer, context.Context, *Req) (*structpb.Struct, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SimulatorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(SimulatorServer), ctx, req.(*Req))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulatorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Initialise", SimulatorServer.Initialise),
		unary("Step", SimulatorServer.Step),
		unary("PlaceOrder", SimulatorServer.PlaceOrder),
		unary("CancelOrder", SimulatorServer.CancelOrder),
		unary("MarketOrder", SimulatorServer.MarketOrder),
		unary("ClearInventory", SimulatorServer.ClearInventory),
		unary("GetBook", SimulatorServer.GetBook),
	},
	Metadata: "lobsim/simulator",
}

// -------------------- Client --------------------

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Initialise(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, "Initialise", &emptypb.Empty{})
}

func (c *Client) Step(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, "Step", &emptypb.Empty{})
}

func (c *Client) PlaceOrder(ctx context.Context, side string, price float64, size int64) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"side": side, "price": price, "size": size})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "PlaceOrder", in)
}

func (c *Client) CancelOrder(ctx context.Context, side string, price float64) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"side": side, "price": price})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "CancelOrder", in)
}

func (c *Client) MarketOrder(ctx context.Context, size int64) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"size": size})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "MarketOrder", in)
}

func (c *Client) ClearInventory(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, "ClearInventory", &emptypb.Empty{})
}

func (c *Client) GetBook(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetBook", &emptypb.Empty{})
}
