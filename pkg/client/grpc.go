package client

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/wire"
)

// Compile-time interface check.
var _ Network = (*GRPCNetwork)(nil)

// GRPCNetwork talks to a node over gRPC using the cramberry codec. No
// protobuf types are involved.
type GRPCNetwork struct {
	cc *grpc.ClientConn
}

// DialGRPCNetwork connects to the node gRPC endpoint at addr. Without extra
// options the connection is plaintext.
func DialGRPCNetwork(addr string, opts ...grpc.DialOption) (*GRPCNetwork, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.Codec{})))

	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &GRPCNetwork{cc: cc}, nil
}

func (g *GRPCNetwork) Close() error {
	return g.cc.Close()
}

func (g *GRPCNetwork) Submit(ctx context.Context, raw []byte) (*wire.SubmitResponse, error) {
	resp := new(wire.SubmitResponse)
	if err := g.invoke(ctx, wire.MethodSubmit, &wire.SubmitRequest{Tx: raw}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCNetwork) TxStatus(ctx context.Context, hash string) (*wire.TxStatusResponse, error) {
	resp := new(wire.TxStatusResponse)
	if err := g.invoke(ctx, wire.MethodTxStatus, &wire.TxStatusRequest{Hash: hash}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCNetwork) ListEntries(ctx context.Context, req wire.ListEntriesRequest) (*wire.ListEntriesResponse, error) {
	resp := new(wire.ListEntriesResponse)
	if err := g.invoke(ctx, wire.MethodListEntries, &req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCNetwork) GetEntry(ctx context.Context, req wire.GetEntryRequest) (*wire.GetEntryResponse, error) {
	resp := new(wire.GetEntryResponse)
	if err := g.invoke(ctx, wire.MethodGetEntry, &req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCNetwork) Account(ctx context.Context, addr string) (*wire.AccountResponse, error) {
	resp := new(wire.AccountResponse)
	if err := g.invoke(ctx, wire.MethodAccount, &wire.AccountRequest{Address: addr}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCNetwork) Status(ctx context.Context) (*wire.StatusResponse, error) {
	resp := new(wire.StatusResponse)
	if err := g.invoke(ctx, wire.MethodStatus, &wire.StatusRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *GRPCNetwork) invoke(ctx context.Context, method string, req, resp any) error {
	var trailer metadata.MD
	err := g.cc.Invoke(ctx, wire.FullMethod(method), req, resp, grpc.Trailer(&trailer))
	if err == nil {
		return nil
	}

	st := status.Convert(err)
	switch st.Code() {
	case codes.FailedPrecondition:
		return &discoerrors.StaleReadError{
			MinHeight: trailerUint(trailer, wire.TrailerMinHeight),
			Height:    trailerUint(trailer, wire.TrailerHeight),
		}
	case codes.NotFound:
		return fmt.Errorf("%s: %s: %w", method, st.Message(), discoerrors.ErrNotFound)
	case codes.InvalidArgument:
		return &discoerrors.ValidationError{Reason: st.Message()}
	case codes.Canceled, codes.DeadlineExceeded:
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", method, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", method, err)
}

func trailerUint(md metadata.MD, key string) uint64 {
	v := md.Get(key)
	if len(v) == 0 {
		return 0
	}
	n, _ := strconv.ParseUint(v[0], 10, 64)
	return n
}
