// Package wire holds the request and response types exchanged between the
// disco client and a node, over either the REST API (JSON) or gRPC
// (cramberry).
package wire

import "github.com/jmerrifield20/disco/pkg/entry"

// Transaction status values reported by TxStatusResponse.
const (
	StatusPending   = "pending"
	StatusCommitted = "committed"
	StatusNotFound  = "not_found"
)

// DefaultPageLimit and MaxPageLimit bound ListEntriesRequest.Limit.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// SubmitRequest carries encoded transaction bytes.
type SubmitRequest struct {
	Tx []byte `json:"tx" cramberry:"1"`
}

// SubmitResponse is the node's intake verdict. Code zero means the
// transaction entered the mempool; it has not been applied yet.
type SubmitResponse struct {
	Hash string `json:"hash"          cramberry:"1"`
	Code uint32 `json:"code"          cramberry:"2"`
	Log  string `json:"log,omitempty" cramberry:"3"`
}

type TxStatusRequest struct {
	Hash string `json:"hash" cramberry:"1"`
}

// TxStatusResponse reports where a transaction is. Height, Code and Log are
// only meaningful when Status is StatusCommitted.
type TxStatusResponse struct {
	Hash   string `json:"hash"          cramberry:"1"`
	Status string `json:"status"        cramberry:"2"`
	Height uint64 `json:"height"        cramberry:"3"`
	Code   uint32 `json:"code"          cramberry:"4"`
	Log    string `json:"log,omitempty" cramberry:"5"`
}

// PageRequest selects a page of a collection. Key is the opaque cursor
// returned as NextKey by the previous page; empty starts at the beginning.
type PageRequest struct {
	Key        string `json:"key,omitempty"        cramberry:"1"`
	Limit      uint32 `json:"limit,omitempty"      cramberry:"2"`
	CountTotal bool   `json:"count_total,omitempty" cramberry:"3"`
}

// PageResponse carries the cursor for the next page. An empty NextKey means
// the collection has been exhausted.
type PageResponse struct {
	NextKey string `json:"next_key"        cramberry:"1"`
	Total   uint64 `json:"total,omitempty" cramberry:"2"`
}

type ListEntriesRequest struct {
	Pagination PageRequest `json:"pagination"           cramberry:"1"`
	MinHeight  uint64      `json:"min_height,omitempty" cramberry:"2"`
}

// QueryStatusOK marks a page read in full at a single committed height.
const QueryStatusOK = "ok"

// ListEntriesResponse is one page of entries in creation order, read at
// Height.
type ListEntriesResponse struct {
	Entries    []entry.Entry `json:"entries"    cramberry:"1"`
	Pagination PageResponse  `json:"pagination" cramberry:"2"`
	Height     uint64        `json:"height"     cramberry:"3"`
	Status     string        `json:"status"     cramberry:"4"`
}

type GetEntryRequest struct {
	ID        string `json:"id"                   cramberry:"1"`
	MinHeight uint64 `json:"min_height,omitempty" cramberry:"2"`
}

type GetEntryResponse struct {
	Entry  entry.Entry `json:"entry"  cramberry:"1"`
	Height uint64      `json:"height" cramberry:"2"`
}

type AccountRequest struct {
	Address string `json:"address" cramberry:"1"`
}

// AccountResponse reports the next sequence the account must sign with.
// Unknown accounts report sequence zero.
type AccountResponse struct {
	Address  string `json:"address"  cramberry:"1"`
	Sequence uint64 `json:"sequence" cramberry:"2"`
	Height   uint64 `json:"height"   cramberry:"3"`
}

type StatusRequest struct{}

type StatusResponse struct {
	ChainID string `json:"chain_id" cramberry:"1"`
	Height  uint64 `json:"height"   cramberry:"2"`
	AppHash string `json:"app_hash" cramberry:"3"`
	MinFee  uint64 `json:"min_fee"  cramberry:"4"`
	Mempool uint32 `json:"mempool"  cramberry:"5"`
}

// ErrorResponse is the JSON body of every non-2xx REST response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Height    uint64 `json:"height,omitempty"`
	MinHeight uint64 `json:"min_height,omitempty"`
}
