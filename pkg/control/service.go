package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "hsu.uplink.UplinkAgent"

const (
	methodStatus              = "/" + serviceName + "/Status"
	methodUpdateConfiguration = "/" + serviceName + "/UpdateConfiguration"
	methodStop                = "/" + serviceName + "/Stop"
	methodIsChildHealthy      = "/" + serviceName + "/IsChildHealthy"
	methodPushData            = "/" + serviceName + "/PushData"
)

// uplinkAgentServer is the server side of the UplinkAgent service. Messages
// are protobuf well-known types so no generated code is needed.
type uplinkAgentServer interface {
	Status(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	UpdateConfiguration(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	Stop(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
	IsChildHealthy(ctx context.Context, in *emptypb.Empty) (*wrapperspb.BoolValue, error)
	PushData(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
}

// unaryHandler returns an unnamed func type so it assigns to grpc.MethodDesc.Handler
func unaryHandler[Req any](fullMethod string, call func(server uplinkAgentServer, ctx context.Context, in *Req) (interface{}, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(uplinkAgentServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(uplinkAgentServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var uplinkAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*uplinkAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Status",
			Handler: unaryHandler(methodStatus, func(s uplinkAgentServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
				return s.Status(ctx, in)
			}),
		},
		{
			MethodName: "UpdateConfiguration",
			Handler: unaryHandler(methodUpdateConfiguration, func(s uplinkAgentServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.UpdateConfiguration(ctx, in)
			}),
		},
		{
			MethodName: "Stop",
			Handler: unaryHandler(methodStop, func(s uplinkAgentServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
				return s.Stop(ctx, in)
			}),
		},
		{
			MethodName: "IsChildHealthy",
			Handler: unaryHandler(methodIsChildHealthy, func(s uplinkAgentServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
				return s.IsChildHealthy(ctx, in)
			}),
		},
		{
			MethodName: "PushData",
			Handler: unaryHandler(methodPushData, func(s uplinkAgentServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.PushData(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hsu/uplink/agent.proto",
}
