package node

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/jmerrifield20/disco/internal/ledger"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/entry"
	"github.com/jmerrifield20/disco/pkg/tx"
)

// blockState stages the writes of one block on top of the committed store.
type blockState struct {
	store    ledger.Store
	height   uint64
	accounts map[string]*ledger.Account
	entries  []ledger.Record
	usedIDs  map[string]bool
	baseSeq  uint64 // entries committed before this block
}

func (s *blockState) account(ctx context.Context, se *tx.SignedEnvelope) (*ledger.Account, error) {
	addr := se.Envelope.AuthInfo.Signer
	if a, ok := s.accounts[addr]; ok {
		return a, nil
	}
	a, err := s.store.Account(ctx, addr)
	if errors.Is(err, ledger.ErrNotFound) {
		a = &ledger.Account{Address: addr}
	} else if err != nil {
		return nil, fmt.Errorf("load account %s: %w", addr, err)
	}
	a.PublicKey = append([]byte(nil), se.Envelope.AuthInfo.PublicKey...)
	s.accounts[addr] = a
	return a, nil
}

func (s *blockState) idUsed(ctx context.Context, id string, local map[string]bool) (bool, error) {
	if local[id] || s.usedIDs[id] {
		return true, nil
	}
	return s.store.EntryIDUsed(ctx, id)
}

// txEffects are the writes of one transaction, merged into the block only
// when every message succeeds.
type txEffects struct {
	entries []ledger.Record
	ids     map[string]bool
}

// apply runs the messages of one transaction. A failure discards every
// message effect; the sequence bump performed by the caller still stands.
func (s *blockState) apply(ctx context.Context, se *tx.SignedEnvelope) (discoerrors.Code, string, error) {
	msgs, err := se.Envelope.Msgs()
	if err != nil {
		return discoerrors.CodeInvalidMsg, err.Error(), nil
	}

	fx := txEffects{ids: make(map[string]bool)}
	for i, m := range msgs {
		switch m := m.(type) {
		case *entry.MsgCreateEntry:
			id := m.ID
			if id != "" {
				used, err := s.idUsed(ctx, id, fx.ids)
				if err != nil {
					return 0, "", err
				}
				if used {
					return discoerrors.CodeEntryExists, fmt.Sprintf("message %d: entry %q already exists", i, id), nil
				}
			} else {
				id, err = s.nextID(ctx, len(fx.entries), fx.ids)
				if err != nil {
					return 0, "", err
				}
			}
			fx.ids[id] = true
			fx.entries = append(fx.entries, ledger.Record{
				Seq:    s.baseSeq + uint64(len(s.entries)+len(fx.entries)) + 1,
				Entry:  entry.FromCreate(m, id),
				Height: s.height,
			})
		default:
			return discoerrors.CodeInvalidMsg, fmt.Sprintf("message %d: unsupported type %s", i, m.TypeURL()), nil
		}
	}

	s.entries = append(s.entries, fx.entries...)
	for id := range fx.ids {
		s.usedIDs[id] = true
	}
	return discoerrors.CodeOK, "", nil
}

// nextID assigns the decimal position of the new entry in the collection,
// skipping any value already taken by a caller-chosen id.
func (s *blockState) nextID(ctx context.Context, localCount int, local map[string]bool) (string, error) {
	for n := s.baseSeq + uint64(len(s.entries)+localCount); ; n++ {
		id := strconv.FormatUint(n, 10)
		used, err := s.idUsed(ctx, id, local)
		if err != nil {
			return "", err
		}
		if !used {
			return id, nil
		}
	}
}

// ProduceBlock drains up to MaxBlockTxs transactions from the mempool in
// arrival order, applies each one atomically and commits the block. It
// returns the committed block, which may contain no transactions.
func (n *Node) ProduceBlock(ctx context.Context) (*ledger.Block, error) {
	n.execMu.Lock()
	defer n.execMu.Unlock()

	n.poolMu.RLock()
	batch := n.mempool
	if len(batch) > n.cfg.MaxBlockTxs {
		batch = batch[:n.cfg.MaxBlockTxs]
	}
	batch = append([]*pendingTx(nil), batch...)
	n.poolMu.RUnlock()

	tip, err := n.store.LastBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	base, err := n.store.EntryCount(ctx, ledger.Tip)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	st := &blockState{
		store:    n.store,
		height:   tip.Height + 1,
		accounts: make(map[string]*ledger.Account),
		usedIDs:  make(map[string]bool),
		baseSeq:  base,
	}
	cs := &ledger.Changeset{}
	codes := make([]discoerrors.Code, 0, len(batch))

	for i, p := range batch {
		code, log, err := n.deliver(ctx, st, p.env)
		if err != nil {
			return nil, fmt.Errorf("deliver tx %s: %w", p.hash, err)
		}
		codes = append(codes, code)
		cs.Txs = append(cs.Txs, ledger.TxResult{
			Hash:   p.hash,
			Height: st.height,
			Index:  i,
			Code:   uint32(code),
			Log:    log,
		})
	}

	cs.Entries = st.entries
	for _, a := range st.accounts {
		cs.Accounts = append(cs.Accounts, *a)
	}
	sort.Slice(cs.Accounts, func(i, j int) bool { return cs.Accounts[i].Address < cs.Accounts[j].Address })

	b := ledger.NewBlock(tip, n.now(), cs)
	if err := n.store.Commit(ctx, b, cs); err != nil {
		return nil, fmt.Errorf("commit block %d: %w", b.Height, err)
	}

	n.poolMu.Lock()
	n.mempool = n.mempool[len(batch):]
	for _, p := range batch {
		delete(n.pending, p.hash)
		signer := p.env.Envelope.AuthInfo.Signer
		if n.pendingSeq[signer] <= 1 {
			delete(n.pendingSeq, signer)
		} else {
			n.pendingSeq[signer]--
		}
	}
	size := len(n.mempool)
	n.poolMu.Unlock()

	recordBlock(b, codes, size)
	if len(batch) > 0 {
		n.logger.Info("block committed",
			zap.Uint64("height", b.Height),
			zap.Int("txs", len(batch)),
			zap.Int("entries", len(cs.Entries)),
			zap.String("app_hash", b.AppHash),
		)
	}
	return b, nil
}

// deliver applies one transaction to the block state.
func (n *Node) deliver(ctx context.Context, st *blockState, se *tx.SignedEnvelope) (discoerrors.Code, string, error) {
	env := &se.Envelope
	if th := env.Body.TimeoutHeight; th != 0 && st.height > th {
		return discoerrors.CodeTxExpired, fmt.Sprintf("timeout height %d passed", th), nil
	}

	acct, err := st.account(ctx, se)
	if err != nil {
		return 0, "", err
	}
	if env.AuthInfo.Sequence != acct.Sequence {
		return discoerrors.CodeWrongSequence,
			fmt.Sprintf("account sequence mismatch, expected %d, got %d", acct.Sequence, env.AuthInfo.Sequence), nil
	}
	acct.Sequence++

	return st.apply(ctx, se)
}
