package node

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/disco/internal/ledger"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
)

var (
	blocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "disco_blocks_total",
		Help: "Total blocks committed.",
	})

	blockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "disco_block_height",
		Help: "Height of the latest committed block.",
	})

	mempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "disco_mempool_size",
		Help: "Transactions admitted but not yet committed.",
	})

	checkTxTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "disco_checktx_total",
		Help: "Transactions submitted for admission by result code.",
	}, []string{"code"})

	deliverTxTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "disco_txs_total",
		Help: "Transactions applied in blocks by result code.",
	}, []string{"code"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "disco_rate_limited_total",
		Help: "HTTP requests rejected by the per-client rate limiter.",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "disco_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "disco_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func recordCheckTx(code discoerrors.Code) {
	checkTxTotal.WithLabelValues(code.String()).Inc()
}

func recordBlock(b *ledger.Block, codes []discoerrors.Code, pool int) {
	blocksTotal.Inc()
	blockHeight.Set(float64(b.Height))
	mempoolSize.Set(float64(pool))
	for _, c := range codes {
		deliverTxTotal.WithLabelValues(c.String()).Inc()
	}
}
