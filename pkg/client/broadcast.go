package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/tx"
	"github.com/jmerrifield20/disco/pkg/wire"
)

// Outcome is the terminal state of a broadcast.
type Outcome int

const (
	// OutcomeCommitted means the transaction is in a block. Code tells
	// whether its messages were applied.
	OutcomeCommitted Outcome = iota + 1
	// OutcomeRejected means the node refused the transaction at intake.
	OutcomeRejected
	// OutcomeTimedOut means polling gave up; the transaction may still commit.
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// BroadcastResult describes what happened to a broadcast transaction.
type BroadcastResult struct {
	Outcome Outcome
	TxHash  string
	Height  uint64
	Code    discoerrors.Code
	Log     string
}

// Succeeded reports whether the transaction committed and every message
// was applied.
func (r *BroadcastResult) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeCommitted && r.Code.OK()
}

// Broadcast submits se and blocks until it commits, is rejected or the
// broadcast timeout expires.
//
// An intake rejection returns the result together with a
// *discoerrors.SubmissionError or *discoerrors.DuplicateTransactionError. A
// timeout returns the result together with a *discoerrors.BroadcastTimeoutError.
// A transaction that commits but fails to apply is not an error; check
// Succeeded. Cancelling ctx stops the wait only; the transaction may still
// commit and can be checked with TxStatus.
func (c *Client) Broadcast(ctx context.Context, se *tx.SignedEnvelope) (*BroadcastResult, error) {
	raw, hash, err := tx.EncodeAndHash(se)
	if err != nil {
		return nil, err
	}

	resp, err := c.network.Submit(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("submit tx %s: %w", hash, err)
	}
	if resp.Hash != "" && resp.Hash != hash {
		c.logger.Warn("node reported a different tx hash",
			zap.String("hash", hash),
			zap.String("node_hash", resp.Hash),
		)
	}

	code := discoerrors.Code(resp.Code)
	if !code.OK() {
		c.logger.Info("tx rejected at intake",
			zap.String("hash", hash),
			zap.Stringer("code", code),
			zap.String("log", resp.Log),
		)
		res := &BroadcastResult{Outcome: OutcomeRejected, TxHash: hash, Code: code, Log: resp.Log}
		return res, discoerrors.FromCode(code, resp.Log, hash)
	}

	c.logger.Debug("tx accepted, waiting for commit", zap.String("hash", hash))
	return c.waitForCommit(ctx, hash)
}

func (c *Client) waitForCommit(ctx context.Context, hash string) (*BroadcastResult, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return &BroadcastResult{Outcome: OutcomeTimedOut, TxHash: hash},
					fmt.Errorf("wait for tx %s: %w", hash, err)
			}
			c.logger.Warn("tx not committed before timeout",
				zap.String("hash", hash),
				zap.Duration("timeout", c.timeout),
			)
			return &BroadcastResult{Outcome: OutcomeTimedOut, TxHash: hash},
				&discoerrors.BroadcastTimeoutError{Hash: hash, Timeout: c.timeout}
		}

		st, err := c.network.TxStatus(pollCtx, hash)
		switch {
		case err != nil:
			if pollCtx.Err() == nil && !errors.Is(err, discoerrors.ErrNotFound) {
				c.logger.Debug("tx status poll failed", zap.String("hash", hash), zap.Error(err))
			}
		case st.Status == wire.StatusCommitted:
			res := &BroadcastResult{
				Outcome: OutcomeCommitted,
				TxHash:  hash,
				Height:  st.Height,
				Code:    discoerrors.Code(st.Code),
				Log:     st.Log,
			}
			c.logger.Info("tx committed",
				zap.String("hash", hash),
				zap.Uint64("height", st.Height),
				zap.Stringer("code", res.Code),
			)
			return res, nil
		}
	}
}
