package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the full gRPC name of the header service.
const ServiceName = "compressedheaders.v1.HeaderService"

const (
	getInfoMethod   = "/" + ServiceName + "/GetInfo"
	getRangeMethod  = "/" + ServiceName + "/GetRange"
	getHeaderMethod = "/" + ServiceName + "/GetHeader"
)

// Keys of the GetInfo struct.
const (
	InfoStoreBytes    = "store_bytes"
	InfoSyncedHeaders = "synced_headers"
	InfoTipHeight     = "tip_height"
)

// HeaderServiceServer is the server API of the header service. Messages are
// protobuf well-known types so the service needs no generated code.
type HeaderServiceServer interface {
	// GetInfo reports the store length, the number of committed headers and
	// the height of the node's tip.
	GetInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetRange returns store bytes for a Range header value such as
	// "bytes=0-80".
	GetRange(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	// GetHeader returns the 80 byte header at a height.
	GetHeader(context.Context, *wrapperspb.UInt64Value) (*wrapperspb.BytesValue, error)
}

// RegisterHeaderServiceServer registers srv with s.
func RegisterHeaderServiceServer(s grpc.ServiceRegistrar, srv HeaderServiceServer) {
	s.RegisterService(&HeaderServiceDesc, srv)
}

// HeaderServiceDesc describes the header service to grpc.
var HeaderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HeaderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetInfo", Handler: getInfoHandler},
		{MethodName: "GetRange", Handler: getRangeHandler},
		{MethodName: "GetHeader", Handler: getHeaderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "compressedheaders/v1/header_service.proto",
}

func getInfoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeaderServiceServer).GetInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getInfoMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HeaderServiceServer).GetInfo(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getRangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeaderServiceServer).GetRange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getRangeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HeaderServiceServer).GetRange(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getHeaderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeaderServiceServer).GetHeader(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getHeaderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HeaderServiceServer).GetHeader(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}
