package extractsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ExtractorServer is the server API for the Extractor gRPC service.
//
// We intentionally use protobuf well-known types so this package does not
// require a protoc/codegen toolchain.
//
// Proto definition: extractor.proto.
type ExtractorServer interface {
	Extract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Inspect(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// UnimplementedExtractorServer can be embedded to have forward compatible implementations.
type UnimplementedExtractorServer struct{}

func (UnimplementedExtractorServer) Extract(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Extract not implemented")
}
func (UnimplementedExtractorServer) Inspect(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Inspect not implemented")
}

// RegisterExtractorServer registers the Extractor service on a gRPC server.
func RegisterExtractorServer(s grpc.ServiceRegistrar, srv ExtractorServer) {
	s.RegisterService(&Extractor_ServiceDesc, srv)
}

// ExtractorClient is the client API for the Extractor gRPC service.
type ExtractorClient interface {
	Extract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Inspect(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type extractorClient struct{ cc grpc.ClientConnInterface }

func NewExtractorClient(cc grpc.ClientConnInterface) ExtractorClient { return &extractorClient{cc: cc} }

func (c *extractorClient) Extract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/adbx.extractsvc.v1.Extractor/Extract", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *extractorClient) Inspect(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/adbx.extractsvc.v1.Extractor/Inspect", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func _Extractor_Extract_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractorServer).Extract(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/adbx.extractsvc.v1.Extractor/Extract"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExtractorServer).Extract(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Extractor_Inspect_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractorServer).Inspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/adbx.extractsvc.v1.Extractor/Inspect"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExtractorServer).Inspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Extractor_ServiceDesc is the grpc.ServiceDesc for the Extractor service.
var Extractor_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "adbx.extractsvc.v1.Extractor",
	HandlerType: (*ExtractorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: _Extractor_Extract_Handler},
		{MethodName: "Inspect", Handler: _Extractor_Inspect_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "extractor.proto",
}
