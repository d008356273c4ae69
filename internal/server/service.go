package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "labreport.v1.AnalysisService"

// Full method names.
const (
	AnalyzeMethod        = "/" + ServiceName + "/Analyze"
	GetAnalysisMethod    = "/" + ServiceName + "/GetAnalysis"
	ListAnalysesMethod   = "/" + ServiceName + "/ListAnalyses"
	ExportAnalysesMethod = "/" + ServiceName + "/ExportAnalyses"
)

// AnalysisServiceServer is the server API. Messages are google.protobuf.Struct so the
// service needs no generated code.
type AnalysisServiceServer interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAnalysis(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAnalyses(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportAnalyses(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterAnalysisServiceServer(s grpc.ServiceRegistrar, srv AnalysisServiceServer) {
	s.RegisterService(&AnalysisServiceDesc, srv)
}

func unaryHandler(method string, call func(AnalysisServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AnalysisServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AnalysisServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var AnalysisServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalysisServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: unaryHandler(AnalyzeMethod, AnalysisServiceServer.Analyze)},
		{MethodName: "GetAnalysis", Handler: unaryHandler(GetAnalysisMethod, AnalysisServiceServer.GetAnalysis)},
		{MethodName: "ListAnalyses", Handler: unaryHandler(ListAnalysesMethod, AnalysisServiceServer.ListAnalyses)},
		{MethodName: "ExportAnalyses", Handler: unaryHandler(ExportAnalysesMethod, AnalysisServiceServer.ExportAnalyses)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "labreport/v1/analysis.proto",
}

// AnalysisClient calls the service over any client connection.
type AnalysisClient struct {
	cc grpc.ClientConnInterface
}

func NewAnalysisClient(cc grpc.ClientConnInterface) *AnalysisClient {
	return &AnalysisClient{cc: cc}
}

func (c *AnalysisClient) call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AnalysisClient) Analyze(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, AnalyzeMethod, in, opts...)
}

func (c *AnalysisClient) GetAnalysis(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, GetAnalysisMethod, in, opts...)
}

func (c *AnalysisClient) ListAnalyses(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, ListAnalysesMethod, in, opts...)
}

func (c *AnalysisClient) ExportAnalyses(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, ExportAnalysesMethod, in, opts...)
}
