package handlers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully-qualified names of the relation order service and its methods
const (
	RelationOrderServiceName = "junban.v1.RelationOrderService"

	RelationOrderService_Reorder_FullMethodName      = "/junban.v1.RelationOrderService/Reorder"
	RelationOrderService_ReadOrder_FullMethodName    = "/junban.v1.RelationOrderService/ReadOrder"
	RelationOrderService_PreviewOrder_FullMethodName = "/junban.v1.RelationOrderService/PreviewOrder"
)

// RelationOrderServiceServer is the server API for the relation order service.
// Requests and responses are google.protobuf.Struct documents.
type RelationOrderServiceServer interface {
	Reorder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReadOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PreviewOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRelationOrderServiceServer registers srv on s
func RegisterRelationOrderServiceServer(s grpc.ServiceRegistrar, srv RelationOrderServiceServer) {
	s.RegisterService(&RelationOrderService_ServiceDesc, srv)
}

type relationOrderCall func(srv RelationOrderServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call relationOrderCall) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RelationOrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(RelationOrderServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RelationOrderService_ServiceDesc is the grpc.ServiceDesc for the relation order service
var RelationOrderService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: RelationOrderServiceName,
	HandlerType: (*RelationOrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Reorder",
			Handler: unaryHandler(RelationOrderService_Reorder_FullMethodName,
				func(srv RelationOrderServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
					return srv.Reorder(ctx, in)
				}),
		},
		{
			MethodName: "ReadOrder",
			Handler: unaryHandler(RelationOrderService_ReadOrder_FullMethodName,
				func(srv RelationOrderServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
					return srv.ReadOrder(ctx, in)
				}),
		},
		{
			MethodName: "PreviewOrder",
			Handler: unaryHandler(RelationOrderService_PreviewOrder_FullMethodName,
				func(srv RelationOrderServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
					return srv.PreviewOrder(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "junban/v1/relation_order.proto",
}

// RelationOrderServiceClient calls the relation order service
type RelationOrderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRelationOrderServiceClient creates a client on cc
func NewRelationOrderServiceClient(cc grpc.ClientConnInterface) *RelationOrderServiceClient {
	return &RelationOrderServiceClient{cc: cc}
}

// Reorder applies a connect/disconnect batch
func (c *RelationOrderServiceClient) Reorder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RelationOrderService_Reorder_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadOrder returns the persisted order of a relation
func (c *RelationOrderServiceClient) ReadOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RelationOrderService_ReadOrder_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PreviewOrder computes a batch without writing it
func (c *RelationOrderServiceClient) PreviewOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RelationOrderService_PreviewOrder_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
