package node_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/disco/internal/node"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/wire"
)

func setupRouter(t *testing.T, f *fixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := node.NewHandler(f.node, zap.NewNop())
	h.Register(r.Group("/api/v1"))
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmit_200(t *testing.T) {
	f := newFixture(t)
	router := setupRouter(t, f)

	w := do(t, router, http.MethodPost, "/api/v1/txs", wire.SubmitRequest{Tx: f.create(t, f.alice, 0, "0", "test")})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp wire.SubmitResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != 0 || resp.Hash == "" {
		t.Errorf("unexpected response %+v", resp)
	}
	f.produce(t)

	w = do(t, router, http.MethodGet, "/api/v1/txs/"+resp.Hash, nil)
	var st wire.TxStatusResponse
	json.Unmarshal(w.Body.Bytes(), &st)
	if st.Status != wire.StatusCommitted || st.Height != 1 {
		t.Errorf("status = %+v", st)
	}

	w = do(t, router, http.MethodGet, "/api/v1/entries/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got wire.GetEntryResponse
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.Entry.Name != "test" || got.Entry.Creator != f.alice.Address {
		t.Errorf("entry = %+v", got.Entry)
	}
}

func TestSubmit_RejectedStill200(t *testing.T) {
	f := newFixture(t)
	router := setupRouter(t, f)

	w := do(t, router, http.MethodPost, "/api/v1/txs", wire.SubmitRequest{Tx: f.create(t, f.alice, 0, "", "x", withChain("elsewhere"))})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp wire.SubmitResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if discoerrors.Code(resp.Code) != discoerrors.CodeWrongChainID {
		t.Errorf("code = %s, want wrong_chain_id", discoerrors.Code(resp.Code))
	}
}

func TestSubmit_400_badBody(t *testing.T) {
	router := setupRouter(t, newFixture(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/txs", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetEntry_404(t *testing.T) {
	router := setupRouter(t, newFixture(t))

	w := do(t, router, http.MethodGet, "/api/v1/entries/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListEntries_412_stale(t *testing.T) {
	router := setupRouter(t, newFixture(t))

	w := do(t, router, http.MethodGet, "/api/v1/entries?min_height=9", nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d: %s", w.Code, w.Body.String())
	}
	var resp wire.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.MinHeight != 9 || resp.Height != 0 {
		t.Errorf("error response = %+v", resp)
	}
}

func TestListEntries_400(t *testing.T) {
	router := setupRouter(t, newFixture(t))

	for _, q := range []string{
		"pagination.limit=-1",
		"pagination.key=xyz",
		"pagination.count_total=maybe",
		"min_height=abc",
	} {
		t.Run(q, func(t *testing.T) {
			w := do(t, router, http.MethodGet, "/api/v1/entries?"+q, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestListEntries_200_paged(t *testing.T) {
	f := newFixture(t)
	router := setupRouter(t, f)
	for seq := uint64(0); seq < 3; seq++ {
		f.checkOK(t, f.create(t, f.alice, seq, "", "e"))
	}
	f.produce(t)

	w := do(t, router, http.MethodGet, "/api/v1/entries?pagination.limit=2&pagination.count_total=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp wire.ListEntriesResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Entries) != 2 || resp.Pagination.NextKey == "" || resp.Pagination.Total != 3 || resp.Height != 1 {
		t.Errorf("first page = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/api/v1/entries?pagination.limit=2&pagination.key="+resp.Pagination.NextKey, nil)
	var next wire.ListEntriesResponse
	json.Unmarshal(w.Body.Bytes(), &next)
	if len(next.Entries) != 1 || next.Pagination.NextKey != "" || next.Entries[0].ID != "2" {
		t.Errorf("second page = %+v", next)
	}
}

func TestAccount_400_badAddress(t *testing.T) {
	router := setupRouter(t, newFixture(t))

	w := do(t, router, http.MethodGet, "/api/v1/accounts/nope", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestBlocks(t *testing.T) {
	f := newFixture(t)
	router := setupRouter(t, f)
	f.produce(t)

	if w := do(t, router, http.MethodGet, "/api/v1/blocks/1", nil); w.Code != http.StatusOK {
		t.Errorf("block 1: expected 200, got %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/v1/blocks/7", nil); w.Code != http.StatusNotFound {
		t.Errorf("block 7: expected 404, got %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/v1/blocks/x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("block x: expected 400, got %d", w.Code)
	}

	w := do(t, router, http.MethodGet, "/api/v1/chain/verify", nil)
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp)
	}
}

func TestRateLimiter_429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(node.RateLimiter(1, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 3)
	var last *httptest.ResponseRecorder
	for i := range codes {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes[i] = last.Code
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent {
		t.Errorf("burst requests = %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}
	if got := last.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}

	// A different client has its own bucket.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "192.0.2.7:4000"
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("other client = %d, want 204", w.Code)
	}
}

func TestMetrics_ExposesNodeSeries(t *testing.T) {
	f := newFixture(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(node.PrometheusMiddleware())
	r.GET("/metrics", node.MetricsHandler())
	node.NewHandler(f.node, zap.NewNop()).Register(r.Group("/api/v1"))

	f.checkOK(t, f.create(t, f.alice, 0, "", "m"))
	f.produce(t)
	do(t, r, http.MethodGet, "/api/v1/status", nil)

	w := do(t, r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, series := range []string{
		"disco_blocks_total",
		"disco_block_height",
		`disco_checktx_total{code="ok"}`,
		`disco_txs_total{code="ok"}`,
		`disco_requests_total{method="GET",path="/api/v1/status",status="200"}`,
	} {
		if !strings.Contains(body, series) {
			t.Errorf("metrics output missing %s", series)
		}
	}
}
