package arenav1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls ArenaService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes a unary method by name.
func (c *Client) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscribeClient receives notifications from a Subscribe stream.
type SubscribeClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type subscribeClient struct {
	grpc.ClientStream
}

func (x *subscribeClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Subscribe opens a notification stream.
func (c *Client) Subscribe(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod(MethodSubscribe), opts...)
	if err != nil {
		return nil, err
	}
	x := &subscribeClient{stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
