// Package node is a single-process disco node. It admits signed transactions
// into a mempool, applies them in blocks on a fixed interval and serves
// read-only queries from the committed ledger.
//
// Writes and reads are decoupled: CheckTx and ProduceBlock serialise on the
// node's execution lock, while queries read the ledger store directly and
// never wait for a block to finish.
package node

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/disco/internal/ledger"
	"github.com/jmerrifield20/disco/pkg/tx"
)

// Config holds node configuration.
type Config struct {
	ChainID       string
	BlockInterval time.Duration
	MaxBlockTxs   int
	MaxMempoolTxs int
	MinFee        uint64
}

func (c *Config) setDefaults() {
	if c.ChainID == "" {
		c.ChainID = "disco"
	}
	if c.BlockInterval == 0 {
		c.BlockInterval = time.Second
	}
	if c.MaxBlockTxs == 0 {
		c.MaxBlockTxs = 100
	}
	if c.MaxMempoolTxs == 0 {
		c.MaxMempoolTxs = 5000
	}
}

type pendingTx struct {
	hash string
	env  *tx.SignedEnvelope
}

// Node is the development State Keeper.
type Node struct {
	store  ledger.Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	// execMu serialises admission against block execution.
	execMu sync.Mutex

	// poolMu guards the mempool. It is held only briefly so status queries
	// never wait on block execution.
	poolMu     sync.RWMutex
	mempool    []*pendingTx
	pending    map[string]struct{} // hashes admitted but not yet committed
	pendingSeq map[string]uint64   // signer -> admitted, uncommitted count
}

// New creates a Node over store.
func New(store ledger.Store, cfg Config, logger *zap.Logger) *Node {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Node{
		store:      store,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		pending:    make(map[string]struct{}),
		pendingSeq: make(map[string]uint64),
	}
}

// ChainID returns the chain id transactions must be signed for.
func (n *Node) ChainID() string { return n.cfg.ChainID }

// Store returns the ledger the node commits to.
func (n *Node) Store() ledger.Store { return n.store }

// MempoolSize returns the number of admitted, uncommitted transactions.
func (n *Node) MempoolSize() int {
	n.poolMu.RLock()
	defer n.poolMu.RUnlock()
	return len(n.mempool)
}

// Run produces a block every BlockInterval until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.BlockInterval)
	defer ticker.Stop()

	n.logger.Info("block producer started",
		zap.String("chain_id", n.cfg.ChainID),
		zap.Duration("interval", n.cfg.BlockInterval),
	)
	for {
		select {
		case <-ticker.C:
			bctx, cancel := context.WithTimeout(ctx, 10*n.cfg.BlockInterval)
			if _, err := n.ProduceBlock(bctx); err != nil && ctx.Err() == nil {
				n.logger.Error("produce block", zap.Error(err))
			}
			cancel()
		case <-ctx.Done():
			n.logger.Info("block producer stopped")
			return nil
		}
	}
}

func (n *Node) isPending(hash string) bool {
	n.poolMu.RLock()
	defer n.poolMu.RUnlock()
	_, ok := n.pending[hash]
	return ok
}
