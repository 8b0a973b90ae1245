package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/wire"
)

// Compile-time interface check.
var _ Network = (*HTTPNetwork)(nil)

// HTTPNetwork talks to a node's REST API under /api/v1.
type HTTPNetwork struct {
	base       string
	httpClient *http.Client
}

// NewHTTPNetwork returns a Network for the node at baseURL, e.g.
// "http://localhost:26657". A nil hc uses a client with a 10 second timeout.
func NewHTTPNetwork(baseURL string, hc *http.Client) *HTTPNetwork {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPNetwork{base: strings.TrimRight(baseURL, "/") + "/api/v1", httpClient: hc}
}

func (h *HTTPNetwork) Submit(ctx context.Context, raw []byte) (*wire.SubmitResponse, error) {
	b, err := json.Marshal(wire.SubmitRequest{Tx: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+"/txs", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp wire.SubmitResponse
	if err := h.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *HTTPNetwork) TxStatus(ctx context.Context, hash string) (*wire.TxStatusResponse, error) {
	var resp wire.TxStatusResponse
	if err := h.get(ctx, "/txs/"+url.PathEscape(hash), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *HTTPNetwork) ListEntries(ctx context.Context, r wire.ListEntriesRequest) (*wire.ListEntriesResponse, error) {
	q := url.Values{}
	if r.Pagination.Key != "" {
		q.Set("pagination.key", r.Pagination.Key)
	}
	if r.Pagination.Limit > 0 {
		q.Set("pagination.limit", strconv.FormatUint(uint64(r.Pagination.Limit), 10))
	}
	if r.Pagination.CountTotal {
		q.Set("pagination.count_total", "true")
	}
	if r.MinHeight > 0 {
		q.Set("min_height", strconv.FormatUint(r.MinHeight, 10))
	}

	var resp wire.ListEntriesResponse
	if err := h.get(ctx, "/entries", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *HTTPNetwork) GetEntry(ctx context.Context, r wire.GetEntryRequest) (*wire.GetEntryResponse, error) {
	q := url.Values{}
	if r.MinHeight > 0 {
		q.Set("min_height", strconv.FormatUint(r.MinHeight, 10))
	}
	var resp wire.GetEntryResponse
	if err := h.get(ctx, "/entries/"+url.PathEscape(r.ID), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *HTTPNetwork) Account(ctx context.Context, addr string) (*wire.AccountResponse, error) {
	var resp wire.AccountResponse
	if err := h.get(ctx, "/accounts/"+url.PathEscape(addr), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *HTTPNetwork) Status(ctx context.Context) (*wire.StatusResponse, error) {
	var resp wire.StatusResponse
	if err := h.get(ctx, "/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *HTTPNetwork) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := h.base + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return h.do(req, out)
}

// do executes req and decodes a 200 body into out. Error statuses are
// mapped onto the discoerrors taxonomy.
func (h *HTTPNetwork) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e wire.ErrorResponse
		_ = json.Unmarshal(body, &e)
		if e.Error == "" {
			e.Error = strings.TrimSpace(string(body))
		}
		switch resp.StatusCode {
		case http.StatusPreconditionFailed:
			return &discoerrors.StaleReadError{MinHeight: e.MinHeight, Height: e.Height}
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", req.URL.Path, discoerrors.ErrNotFound)
		case http.StatusBadRequest:
			return &discoerrors.ValidationError{Reason: e.Error}
		default:
			return fmt.Errorf("server error %d: %s", resp.StatusCode, e.Error)
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
