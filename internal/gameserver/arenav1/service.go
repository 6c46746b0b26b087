// Package arenav1 describes the arena.v1.ArenaService gRPC contract. Requests
// and responses are google.protobuf.Struct messages so the service needs no
// generated code.
package arenav1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "arena.v1.ArenaService"

// Method names.
const (
	MethodCreateMint        = "CreateMint"
	MethodCreateFeed        = "CreateFeed"
	MethodInitPlayer        = "InitPlayer"
	MethodRequestRandomness = "RequestRandomness"
	MethodKillEnemy         = "KillEnemy"
	MethodHeal              = "Heal"
	MethodTransfer          = "Transfer"
	MethodGetPlayer         = "GetPlayer"
	MethodGetClient         = "GetClient"
	MethodGetBalance        = "GetBalance"
	MethodSubscribe         = "Subscribe"
)

// FullMethod returns "/arena.v1.ArenaService/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ArenaServiceServer is the server API for ArenaService.
type ArenaServiceServer interface {
	CreateMint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateFeed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InitPlayer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestRandomness(context.Context, *structpb.Struct) (*structpb.Struct, error)
	KillEnemy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Heal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPlayer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetClient(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Subscribe(*structpb.Struct, SubscribeServer) error
}

// SubscribeServer is the server side of the Subscribe stream.
type SubscribeServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type subscribeServer struct {
	grpc.ServerStream
}

func (s *subscribeServer) Send(m *structpb.Struct) error { return s.ServerStream.SendMsg(m) }

type unaryCall func(ArenaServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ArenaServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ArenaServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ArenaServiceServer).Subscribe(in, &subscribeServer{stream})
}

// ServiceDesc is the grpc.ServiceDesc for ArenaService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ArenaServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreateMint, ArenaServiceServer.CreateMint),
		unary(MethodCreateFeed, ArenaServiceServer.CreateFeed),
		unary(MethodInitPlayer, ArenaServiceServer.InitPlayer),
		unary(MethodRequestRandomness, ArenaServiceServer.RequestRandomness),
		unary(MethodKillEnemy, ArenaServiceServer.KillEnemy),
		unary(MethodHeal, ArenaServiceServer.Heal),
		unary(MethodTransfer, ArenaServiceServer.Transfer),
		unary(MethodGetPlayer, ArenaServiceServer.GetPlayer),
		unary(MethodGetClient, ArenaServiceServer.GetClient),
		unary(MethodGetBalance, ArenaServiceServer.GetBalance),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodSubscribe,
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "arena/v1/arena.proto",
}

// Register registers srv on s.
func Register(s grpc.ServiceRegistrar, srv ArenaServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
