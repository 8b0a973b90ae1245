package node

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmerrifield20/disco/internal/ledger"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/tx"
	"github.com/jmerrifield20/disco/pkg/wire"
)

// CheckTx validates raw transaction bytes and, when they pass, admits them
// to the mempool. A zero Code means admitted; the transaction is applied by
// a later ProduceBlock. The returned error is reserved for storage failures.
func (n *Node) CheckTx(ctx context.Context, raw []byte) (wire.SubmitResponse, error) {
	hash := tx.Hash(raw)
	resp := wire.SubmitResponse{Hash: hash}
	reject := func(code discoerrors.Code, format string, args ...any) (wire.SubmitResponse, error) {
		resp.Code = uint32(code)
		resp.Log = fmt.Sprintf(format, args...)
		recordCheckTx(code)
		n.logger.Debug("tx rejected",
			zap.String("hash", hash),
			zap.Stringer("code", code),
			zap.String("log", resp.Log),
		)
		return resp, nil
	}

	se, err := tx.Decode(raw)
	if err != nil {
		return reject(discoerrors.CodeEncoding, "%v", err)
	}

	n.execMu.Lock()
	defer n.execMu.Unlock()

	if n.isPending(hash) {
		return reject(discoerrors.CodeDuplicateTx, "tx already in mempool")
	}
	if _, err := n.store.Tx(ctx, hash); err == nil {
		return reject(discoerrors.CodeDuplicateTx, "tx already committed")
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return resp, fmt.Errorf("lookup tx: %w", err)
	}

	env := &se.Envelope
	if env.ChainID != n.cfg.ChainID {
		return reject(discoerrors.CodeWrongChainID, "chain id %q, want %q", env.ChainID, n.cfg.ChainID)
	}
	if err := tx.Verify(se); err != nil {
		return reject(discoerrors.CodeInvalidSignature, "%v", err)
	}
	if len(env.Body.Messages) == 0 {
		return reject(discoerrors.CodeInvalidMsg, "%v", discoerrors.ErrEmptyTransaction)
	}
	msgs, err := env.Msgs()
	if err != nil {
		if discoerrors.IsDecode(err) {
			return reject(discoerrors.CodeEncoding, "%v", err)
		}
		return reject(discoerrors.CodeInvalidMsg, "%v", err)
	}
	for i, m := range msgs {
		if m.Signer() != env.AuthInfo.Signer {
			return reject(discoerrors.CodeInvalidMsg, "message %d requires signature from %s", i, m.Signer())
		}
	}
	if env.AuthInfo.Fee.Amount < n.cfg.MinFee {
		return reject(discoerrors.CodeInsufficientFee, "fee %d below minimum %d", env.AuthInfo.Fee.Amount, n.cfg.MinFee)
	}

	tip, err := n.store.LastBlock(ctx)
	if err != nil {
		return resp, fmt.Errorf("read chain tip: %w", err)
	}
	if th := env.Body.TimeoutHeight; th != 0 && th <= tip.Height {
		return reject(discoerrors.CodeTxExpired, "timeout height %d reached (current height %d)", th, tip.Height)
	}

	committed, err := n.committedSequence(ctx, env.AuthInfo.Signer)
	if err != nil {
		return resp, err
	}

	n.poolMu.Lock()
	defer n.poolMu.Unlock()

	want := committed + n.pendingSeq[env.AuthInfo.Signer]
	if env.AuthInfo.Sequence != want {
		return reject(discoerrors.CodeWrongSequence, "account sequence mismatch, expected %d, got %d", want, env.AuthInfo.Sequence)
	}
	if len(n.mempool) >= n.cfg.MaxMempoolTxs {
		return reject(discoerrors.CodeMempoolFull, "mempool is full (%d txs)", len(n.mempool))
	}

	n.mempool = append(n.mempool, &pendingTx{hash: hash, env: se})
	n.pending[hash] = struct{}{}
	n.pendingSeq[env.AuthInfo.Signer]++
	mempoolSize.Set(float64(len(n.mempool)))
	recordCheckTx(discoerrors.CodeOK)

	n.logger.Debug("tx admitted",
		zap.String("hash", hash),
		zap.String("signer", env.AuthInfo.Signer),
		zap.Uint64("sequence", env.AuthInfo.Sequence),
	)
	return resp, nil
}

func (n *Node) committedSequence(ctx context.Context, addr string) (uint64, error) {
	acct, err := n.store.Account(ctx, addr)
	if errors.Is(err, ledger.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup account: %w", err)
	}
	return acct.Sequence, nil
}
