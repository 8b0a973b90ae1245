package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmerrifield20/disco/internal/ledger"
	"github.com/jmerrifield20/disco/pkg/address"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/entry"
	"github.com/jmerrifield20/disco/pkg/wire"
)

// snapshot returns the committed tip, failing with a *discoerrors.StaleReadError
// when it is below minHeight.
func (n *Node) snapshot(ctx context.Context, minHeight uint64) (*ledger.Block, error) {
	tip, err := n.store.LastBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	if minHeight > tip.Height {
		return nil, &discoerrors.StaleReadError{MinHeight: minHeight, Height: tip.Height}
	}
	return tip, nil
}

// TxStatus reports whether hash is pending, committed or unknown.
func (n *Node) TxStatus(ctx context.Context, hash string) (*wire.TxStatusResponse, error) {
	resp := &wire.TxStatusResponse{Hash: hash}
	// The mempool is consulted first: a transaction leaves it only after its
	// block has been committed.
	if n.isPending(hash) {
		resp.Status = wire.StatusPending
		return resp, nil
	}
	res, err := n.store.Tx(ctx, hash)
	if errors.Is(err, ledger.ErrNotFound) {
		resp.Status = wire.StatusNotFound
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tx: %w", err)
	}
	resp.Status = wire.StatusCommitted
	resp.Height = res.Height
	resp.Code = res.Code
	resp.Log = res.Log
	return resp, nil
}

// ListEntries returns one page of entries in creation order. Every page is
// read at a single committed height, reported in the response.
func (n *Node) ListEntries(ctx context.Context, req wire.ListEntriesRequest) (*wire.ListEntriesResponse, error) {
	var after uint64
	if k := req.Pagination.Key; k != "" {
		v, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, discoerrors.Invalid("pagination.key", "malformed cursor %q", k)
		}
		after = v
	}
	limit := int(req.Pagination.Limit)
	switch {
	case limit <= 0:
		limit = wire.DefaultPageLimit
	case limit > wire.MaxPageLimit:
		limit = wire.MaxPageLimit
	}

	tip, err := n.snapshot(ctx, req.MinHeight)
	if err != nil {
		return nil, err
	}

	recs, err := n.store.Entries(ctx, ledger.EntryQuery{After: after, Limit: limit + 1, AtHeight: tip.Height})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	resp := &wire.ListEntriesResponse{Entries: []entry.Entry{}, Height: tip.Height, Status: wire.QueryStatusOK}
	if len(recs) > limit {
		recs = recs[:limit]
		resp.Pagination.NextKey = strconv.FormatUint(recs[len(recs)-1].Seq, 10)
	}
	for _, r := range recs {
		resp.Entries = append(resp.Entries, r.Entry)
	}
	if req.Pagination.CountTotal {
		total, err := n.store.EntryCount(ctx, tip.Height)
		if err != nil {
			return nil, fmt.Errorf("count entries: %w", err)
		}
		resp.Pagination.Total = total
	}
	return resp, nil
}

// GetEntry returns a single entry by id.
func (n *Node) GetEntry(ctx context.Context, req wire.GetEntryRequest) (*wire.GetEntryResponse, error) {
	if err := entry.ValidateID(req.ID, false); err != nil {
		return nil, err
	}
	tip, err := n.snapshot(ctx, req.MinHeight)
	if err != nil {
		return nil, err
	}
	rec, err := n.store.Entry(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if rec.Height > tip.Height {
		return nil, fmt.Errorf("entry %q: %w", req.ID, ledger.ErrNotFound)
	}
	return &wire.GetEntryResponse{Entry: rec.Entry, Height: tip.Height}, nil
}

// Account returns the next sequence addr must sign with.
func (n *Node) Account(ctx context.Context, addr string) (*wire.AccountResponse, error) {
	if err := address.Validate(addr); err != nil {
		return nil, discoerrors.Invalid("address", "%v", err)
	}
	tip, err := n.snapshot(ctx, 0)
	if err != nil {
		return nil, err
	}
	seq, err := n.committedSequence(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &wire.AccountResponse{Address: addr, Sequence: seq, Height: tip.Height}, nil
}

// Status reports the chain id, tip and admission parameters.
func (n *Node) Status(ctx context.Context) (*wire.StatusResponse, error) {
	tip, err := n.snapshot(ctx, 0)
	if err != nil {
		return nil, err
	}
	return &wire.StatusResponse{
		ChainID: n.cfg.ChainID,
		Height:  tip.Height,
		AppHash: tip.AppHash,
		MinFee:  n.cfg.MinFee,
		Mempool: uint32(n.MempoolSize()),
	}, nil
}
