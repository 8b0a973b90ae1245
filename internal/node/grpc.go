package node

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jmerrifield20/disco/internal/ledger"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/wire"
)

// NodeServiceServer is the server-side interface of the node gRPC service.
type NodeServiceServer interface {
	Submit(context.Context, *wire.SubmitRequest) (*wire.SubmitResponse, error)
	TxStatus(context.Context, *wire.TxStatusRequest) (*wire.TxStatusResponse, error)
	ListEntries(context.Context, *wire.ListEntriesRequest) (*wire.ListEntriesResponse, error)
	GetEntry(context.Context, *wire.GetEntryRequest) (*wire.GetEntryResponse, error)
	Account(context.Context, *wire.AccountRequest) (*wire.AccountResponse, error)
	Status(context.Context, *wire.StatusRequest) (*wire.StatusResponse, error)
}

// Compile-time interface check.
var _ NodeServiceServer = (*GRPCServer)(nil)

// GRPCServer exposes the node over gRPC. Messages are the wire types,
// serialized with the cramberry codec registered by package wire.
type GRPCServer struct {
	node *Node
}

// NewGRPCServer wraps n.
func NewGRPCServer(n *Node) *GRPCServer {
	return &GRPCServer{node: n}
}

// Register adds the node service to gs.
func (s *GRPCServer) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *GRPCServer) Submit(ctx context.Context, req *wire.SubmitRequest) (*wire.SubmitResponse, error) {
	resp, err := s.node.CheckTx(ctx, req.Tx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &resp, nil
}

func (s *GRPCServer) TxStatus(ctx context.Context, req *wire.TxStatusRequest) (*wire.TxStatusResponse, error) {
	resp, err := s.node.TxStatus(ctx, req.Hash)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) ListEntries(ctx context.Context, req *wire.ListEntriesRequest) (*wire.ListEntriesResponse, error) {
	resp, err := s.node.ListEntries(ctx, *req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) GetEntry(ctx context.Context, req *wire.GetEntryRequest) (*wire.GetEntryResponse, error) {
	resp, err := s.node.GetEntry(ctx, *req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) Account(ctx context.Context, req *wire.AccountRequest) (*wire.AccountResponse, error) {
	resp, err := s.node.Account(ctx, req.Address)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) Status(ctx context.Context, _ *wire.StatusRequest) (*wire.StatusResponse, error) {
	resp, err := s.node.Status(ctx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return resp, nil
}

// toStatus maps node errors onto gRPC status codes. Stale reads attach the
// heights as trailers so clients can rebuild the typed error.
func toStatus(ctx context.Context, err error) error {
	var stale *discoerrors.StaleReadError
	switch {
	case errors.As(err, &stale):
		_ = grpc.SetTrailer(ctx, metadata.Pairs(
			wire.TrailerHeight, strconv.FormatUint(stale.Height, 10),
			wire.TrailerMinHeight, strconv.FormatUint(stale.MinHeight, 10),
		))
		return status.Error(codes.FailedPrecondition, err.Error())
	case discoerrors.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ── Service descriptor ──────────────────────────────────────────────────────

var serviceDesc = grpc.ServiceDesc{
	ServiceName: wire.ServiceName,
	HandlerType: (*NodeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: wire.MethodSubmit, Handler: handlerSubmit},
		{MethodName: wire.MethodTxStatus, Handler: handlerTxStatus},
		{MethodName: wire.MethodListEntries, Handler: handlerListEntries},
		{MethodName: wire.MethodGetEntry, Handler: handlerGetEntry},
		{MethodName: wire.MethodAccount, Handler: handlerAccount},
		{MethodName: wire.MethodStatus, Handler: handlerStatus},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "disco/node/v1/node.cram",
}

func handlerSubmit(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(wire.SubmitRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return intercept(ctx, req, interceptor, wire.MethodSubmit, func(ctx context.Context, req any) (any, error) {
		return srv.(NodeServiceServer).Submit(ctx, req.(*wire.SubmitRequest))
	})
}

func handlerTxStatus(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(wire.TxStatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return intercept(ctx, req, interceptor, wire.MethodTxStatus, func(ctx context.Context, req any) (any, error) {
		return srv.(NodeServiceServer).TxStatus(ctx, req.(*wire.TxStatusRequest))
	})
}

func handlerListEntries(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(wire.ListEntriesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return intercept(ctx, req, interceptor, wire.MethodListEntries, func(ctx context.Context, req any) (any, error) {
		return srv.(NodeServiceServer).ListEntries(ctx, req.(*wire.ListEntriesRequest))
	})
}

func handlerGetEntry(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(wire.GetEntryRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return intercept(ctx, req, interceptor, wire.MethodGetEntry, func(ctx context.Context, req any) (any, error) {
		return srv.(NodeServiceServer).GetEntry(ctx, req.(*wire.GetEntryRequest))
	})
}

func handlerAccount(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(wire.AccountRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return intercept(ctx, req, interceptor, wire.MethodAccount, func(ctx context.Context, req any) (any, error) {
		return srv.(NodeServiceServer).Account(ctx, req.(*wire.AccountRequest))
	})
}

func handlerStatus(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(wire.StatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return intercept(ctx, req, interceptor, wire.MethodStatus, func(ctx context.Context, req any) (any, error) {
		return srv.(NodeServiceServer).Status(ctx, req.(*wire.StatusRequest))
	})
}

// intercept runs h through the server's unary interceptor chain, if any.
func intercept(ctx context.Context, req any, interceptor grpc.UnaryServerInterceptor, method string, h grpc.UnaryHandler) (any, error) {
	if interceptor == nil {
		return h(ctx, req)
	}
	info := &grpc.UnaryServerInfo{FullMethod: wire.FullMethod(method)}
	return interceptor(ctx, req, info, h)
}
