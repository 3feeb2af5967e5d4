// Package kernelgrpc exposes kernels over gRPC on a Unix socket and consumes
// them as a core.KernelProvider. Payloads are google.protobuf.Struct values
// so the service needs no generated stubs.
package kernelgrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName       = "cellbook.kernel.v1.KernelGateway"
	executeMethod     = "/" + serviceName + "/Execute"
	listKernelsMethod = "/" + serviceName + "/ListKernels"
	pingMethod        = "/" + serviceName + "/Ping"
	// RemotePrefix is prepended to kernel ids served by a remote gateway.
	RemotePrefix = "remote/"
)

type gatewayServer interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListKernels(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(srv gatewayServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, fn unaryFunc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(gatewayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(srv.(gatewayServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*gatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler: unaryHandler(executeMethod, func(srv gatewayServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.Execute(ctx, req)
			}),
		},
		{
			MethodName: "ListKernels",
			Handler: unaryHandler(listKernelsMethod, func(srv gatewayServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.ListKernels(ctx, req)
			}),
		},
		{
			MethodName: "Ping",
			Handler: unaryHandler(pingMethod, func(srv gatewayServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.Ping(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cellbook/kernel/v1/gateway.proto",
}
