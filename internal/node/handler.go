package node

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/disco/internal/ledger"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/wire"
)

// Handler exposes the node over a JSON REST API.
type Handler struct {
	node   *Node
	logger *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(n *Node, logger *zap.Logger) *Handler {
	return &Handler{node: n, logger: logger}
}

// Register mounts the node routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/txs", h.Submit)
	rg.GET("/txs/:hash", h.TxStatus)

	rg.GET("/entries", h.ListEntries)
	rg.GET("/entries/:id", h.GetEntry)

	rg.GET("/accounts/:address", h.Account)
	rg.GET("/status", h.Status)

	rg.GET("/blocks/:height", h.GetBlock)
	rg.GET("/chain/verify", h.VerifyChain)
}

// Submit handles POST /txs. A 200 response carries the intake verdict; a
// non-zero code means the transaction was not admitted.
func (h *Handler) Submit(c *gin.Context) {
	var req wire.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	resp, err := h.node.CheckTx(c.Request.Context(), req.Tx)
	if err != nil {
		h.logger.Error("check tx", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check transaction"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// TxStatus handles GET /txs/:hash.
func (h *Handler) TxStatus(c *gin.Context) {
	resp, err := h.node.TxStatus(c.Request.Context(), c.Param("hash"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListEntries handles GET /entries?pagination.key=&pagination.limit=&pagination.count_total=&min_height=.
func (h *Handler) ListEntries(c *gin.Context) {
	req := wire.ListEntriesRequest{
		Pagination: wire.PageRequest{Key: c.Query("pagination.key")},
	}
	var ok bool
	if req.Pagination.Limit, ok = h.uint32Query(c, "pagination.limit"); !ok {
		return
	}
	if req.MinHeight, ok = h.minHeight(c); !ok {
		return
	}
	if v := c.Query("pagination.count_total"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pagination.count_total must be a boolean"})
			return
		}
		req.Pagination.CountTotal = b
	}

	resp, err := h.node.ListEntries(c.Request.Context(), req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetEntry handles GET /entries/:id.
func (h *Handler) GetEntry(c *gin.Context) {
	minHeight, ok := h.minHeight(c)
	if !ok {
		return
	}
	resp, err := h.node.GetEntry(c.Request.Context(), wire.GetEntryRequest{ID: c.Param("id"), MinHeight: minHeight})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Account handles GET /accounts/:address.
func (h *Handler) Account(c *gin.Context) {
	resp, err := h.node.Account(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Status handles GET /status.
func (h *Handler) Status(c *gin.Context) {
	resp, err := h.node.Status(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetBlock handles GET /blocks/:height.
func (h *Handler) GetBlock(c *gin.Context) {
	height, err := strconv.ParseUint(c.Param("height"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "height must be a non-negative integer"})
		return
	}
	b, err := h.node.Store().Block(c.Request.Context(), height)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// VerifyChain handles GET /chain/verify: walks the full chain and reports integrity.
func (h *Handler) VerifyChain(c *gin.Context) {
	if err := h.node.Store().Verify(c.Request.Context()); err != nil {
		h.logger.Warn("chain integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (h *Handler) minHeight(c *gin.Context) (uint64, bool) {
	return h.uint64Query(c, "min_height")
}

func (h *Handler) uint64Query(c *gin.Context, key string) (uint64, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func (h *Handler) uint32Query(c *gin.Context, key string) (uint32, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return uint32(n), true
}

func (h *Handler) renderError(c *gin.Context, err error) {
	var stale *discoerrors.StaleReadError
	var invalid *discoerrors.ValidationError
	switch {
	case errors.As(err, &stale):
		c.JSON(http.StatusPreconditionFailed, wire.ErrorResponse{
			Error:     err.Error(),
			Height:    stale.Height,
			MinHeight: stale.MinHeight,
		})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
