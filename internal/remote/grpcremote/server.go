package grpcremote

import (
	"context"
	"errors"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// handler serves the protocol from a backing store.
type handler struct {
	remote.Client
	logger logging.Logger
}

// Register exposes backend on s under ServiceName.
func Register(s grpc.ServiceRegistrar, backend remote.Client, l logging.Logger) {
	s.RegisterService(&serviceDesc, &handler{Client: backend, logger: l.With("module", "grpc_remote")})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*remote.Client)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Upsert", Handler: unary(MethodUpsert, newStruct, (*handler).upsert)},
		{MethodName: "Delete", Handler: unary(MethodDelete, newStruct, (*handler).delete)},
		{MethodName: "Fetch", Handler: unary(MethodFetch, newStruct, (*handler).fetch)},
		{MethodName: "Ping", Handler: unary(MethodPing, newEmpty, (*handler).ping)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vplm/remote/v1/remote.proto",
}

func newStruct() *structpb.Struct { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty    { return &emptypb.Empty{} }

// unary adapts a typed method to grpc.MethodHandler, running the server's
// interceptor chain the way generated code does.
func unary[Req proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(*handler, context.Context, Req) (proto.Message, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		h := func(ctx context.Context, req any) (any, error) {
			return call(srv.(*handler), ctx, req.(Req))
		}
		if interceptor == nil {
			return h(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, h)
	}
}

func (h *handler) upsert(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	collection, err := stringField(in, "collection")
	if err != nil {
		return nil, toStatus(err)
	}
	rowStruct := in.GetFields()["row"].GetStructValue()
	if rowStruct == nil {
		return nil, status.Error(codes.InvalidArgument, "row must be an object")
	}
	row, err := decodeRow(rowStruct)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := h.Client.Upsert(ctx, collection, row); err != nil {
		h.logger.Error(ctx, "upsert failed", "collection", collection, "error", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (h *handler) delete(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	collection, err := stringField(in, "collection")
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := stringField(in, "id")
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.Client.Delete(ctx, collection, id); err != nil {
		h.logger.Error(ctx, "delete failed", "collection", collection, "id", id, "error", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (h *handler) fetch(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	collection, err := stringField(in, "collection")
	if err != nil {
		return nil, toStatus(err)
	}
	limit := int(in.GetFields()["limit"].GetNumberValue())

	rows, err := h.Client.Fetch(ctx, collection, limit)
	if err != nil {
		h.logger.Error(ctx, "fetch failed", "collection", collection, "error", err)
		return nil, toStatus(err)
	}
	out, err := fetchResponse(rows)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (h *handler) ping(ctx context.Context, _ *emptypb.Empty) (proto.Message, error) {
	if err := h.Client.Ping(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// toStatus is the inverse of mapError.
func toStatus(err error) error {
	switch {
	case errors.Is(err, errBadRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	case errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
