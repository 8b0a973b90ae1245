package client

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/entry"
	"github.com/jmerrifield20/disco/pkg/wire"
)

// maxPages bounds QueryEntryAll against a node that never ends a cursor chain.
const maxPages = 1 << 20

// QueryOptions selects a page of entries.
type QueryOptions struct {
	// Key is the cursor returned as NextKey by the previous page. Empty
	// starts from the first entry.
	Key   string
	Limit uint32
	// MinHeight, when set, makes the query fail with a
	// *discoerrors.StaleReadError unless the node has reached it.
	MinHeight  uint64
	CountTotal bool
}

// EntryPage is one page of the entry collection in creation order.
type EntryPage struct {
	Entries []entry.Entry
	// NextKey is empty on the last page.
	NextKey string
	// Total is only set when CountTotal was requested.
	Total uint64
	// Height is the committed height the page was read at.
	Height uint64
	// Status is wire.QueryStatusOK for a consistent page.
	Status string
}

// ListEntries fetches one page of entries.
func (c *Client) ListEntries(ctx context.Context, opts QueryOptions) (*EntryPage, error) {
	resp, err := c.network.ListEntries(ctx, wire.ListEntriesRequest{
		Pagination: wire.PageRequest{Key: opts.Key, Limit: opts.Limit, CountTotal: opts.CountTotal},
		MinHeight:  opts.MinHeight,
	})
	if err != nil {
		return nil, err
	}
	if resp.Height < opts.MinHeight {
		return nil, &discoerrors.StaleReadError{MinHeight: opts.MinHeight, Height: resp.Height}
	}
	if resp.Status != wire.QueryStatusOK {
		return nil, fmt.Errorf("list entries: node reported status %q", resp.Status)
	}
	return &EntryPage{
		Entries: resp.Entries,
		NextKey: resp.Pagination.NextKey,
		Total:   resp.Pagination.Total,
		Height:  resp.Height,
		Status:  resp.Status,
	}, nil
}

// QueryEntryAll follows the cursor from opts.Key until the last page and
// returns every entry in creation order. Later pages are read with
// MinHeight raised to the height of the first page, so the result never
// mixes in an older view of the collection.
func (c *Client) QueryEntryAll(ctx context.Context, opts QueryOptions) ([]entry.Entry, error) {
	var all []entry.Entry
	for pages := 0; ; pages++ {
		if pages == maxPages {
			return nil, fmt.Errorf("query entries: gave up after %d pages", maxPages)
		}
		page, err := c.ListEntries(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Entries...)
		if page.NextKey == "" {
			return all, nil
		}
		if page.NextKey == opts.Key {
			return nil, fmt.Errorf("query entries: cursor %q did not advance", page.NextKey)
		}
		opts.Key = page.NextKey
		opts.CountTotal = false
		if page.Height > opts.MinHeight {
			opts.MinHeight = page.Height
		}
	}
}

// GetEntry fetches a single entry by id. An unknown id wraps
// discoerrors.ErrNotFound.
func (c *Client) GetEntry(ctx context.Context, id string, minHeight uint64) (*entry.Entry, error) {
	if err := entry.ValidateID(id, false); err != nil {
		return nil, err
	}
	resp, err := c.network.GetEntry(ctx, wire.GetEntryRequest{ID: id, MinHeight: minHeight})
	if err != nil {
		return nil, err
	}
	if resp.Height < minHeight {
		return nil, &discoerrors.StaleReadError{MinHeight: minHeight, Height: resp.Height}
	}
	e := resp.Entry
	return &e, nil
}
