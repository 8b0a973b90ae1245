package client

import (
	"context"

	"github.com/jmerrifield20/disco/pkg/wire"
)

// Network is the transport a Client talks to a node through. Implementations
// translate transport failures into the discoerrors taxonomy: a stale read is
// a *discoerrors.StaleReadError, an unknown object wraps
// discoerrors.ErrNotFound and a rejected request is a
// *discoerrors.ValidationError.
//
// Submit returns the node's intake verdict. A non-zero Code is a rejection,
// not a transport error.
type Network interface {
	Submit(ctx context.Context, raw []byte) (*wire.SubmitResponse, error)
	TxStatus(ctx context.Context, hash string) (*wire.TxStatusResponse, error)
	ListEntries(ctx context.Context, req wire.ListEntriesRequest) (*wire.ListEntriesResponse, error)
	GetEntry(ctx context.Context, req wire.GetEntryRequest) (*wire.GetEntryResponse, error)
	Account(ctx context.Context, addr string) (*wire.AccountResponse, error)
	Status(ctx context.Context) (*wire.StatusResponse, error)
}
