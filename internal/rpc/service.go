// Package rpc exposes event ingestion over gRPC using google.protobuf.Struct
// messages, so no generated code is needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName  = "commercesync.v1.IngestService"
	IngestMethod = "/" + ServiceName + "/Ingest"
)

type IngestServer interface {
	Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: ingestHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "commercesync/v1/ingest.proto",
}

func Register(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func ingestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Ingest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IngestMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IngestServer).Ingest(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type IngestClient struct {
	cc grpc.ClientConnInterface
}

func NewIngestClient(cc grpc.ClientConnInterface) *IngestClient {
	return &IngestClient{cc: cc}
}

func (c *IngestClient) Ingest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, IngestMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
