package node_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/disco/internal/ledger"
	"github.com/jmerrifield20/disco/internal/node"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/entry"
	"github.com/jmerrifield20/disco/pkg/tx"
	"github.com/jmerrifield20/disco/pkg/wallet"
	"github.com/jmerrifield20/disco/pkg/wire"
)

const chainID = "disco-test"

var ctx = context.Background()

type fixture struct {
	node  *node.Node
	store *ledger.MemoryStore
	kr    *wallet.Keyring
	alice wallet.Account
	bob   wallet.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	kr, err := wallet.FromSecret("node test secret", 2)
	if err != nil {
		t.Fatalf("FromSecret: %v", err)
	}
	accts, _ := kr.Accounts()
	return &fixture{
		node:  node.New(store, node.Config{ChainID: chainID, MinFee: 1, MaxMempoolTxs: 8}, zap.NewNop()),
		store: store,
		kr:    kr,
		alice: accts[0],
		bob:   accts[1],
	}
}

type txOpt func(*tx.AccountContext)

func withFee(amount uint64) txOpt {
	return func(a *tx.AccountContext) { a.Fee.Amount = amount }
}

func withChain(id string) txOpt {
	return func(a *tx.AccountContext) { a.ChainID = id }
}

func withTimeout(h uint64) txOpt {
	return func(a *tx.AccountContext) { a.TimeoutHeight = h }
}

func (f *fixture) signed(t *testing.T, acct wallet.Account, seq uint64, msgs []entry.Msg, opts ...txOpt) []byte {
	t.Helper()
	actx := tx.AccountContext{
		ChainID:   chainID,
		Address:   acct.Address,
		PublicKey: acct.PublicKey,
		Sequence:  seq,
		Fee:       tx.Fee{Amount: 5, GasLimit: 100000},
	}
	for _, o := range opts {
		o(&actx)
	}
	env, err := tx.Build(actx, msgs...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	se, err := tx.Sign(env, f.kr)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw, err := tx.Encode(se)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return raw
}

func (f *fixture) create(t *testing.T, acct wallet.Account, seq uint64, id, name string, opts ...txOpt) []byte {
	t.Helper()
	return f.signed(t, acct, seq, []entry.Msg{entry.NewMsgCreateEntry(acct.Address, id, name)}, opts...)
}

func (f *fixture) checkOK(t *testing.T, raw []byte) string {
	t.Helper()
	resp, err := f.node.CheckTx(ctx, raw)
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if resp.Code != 0 {
		t.Fatalf("CheckTx code = %s (%s), want ok", discoerrors.Code(resp.Code), resp.Log)
	}
	return resp.Hash
}

func (f *fixture) checkCode(t *testing.T, raw []byte, want discoerrors.Code) {
	t.Helper()
	resp, err := f.node.CheckTx(ctx, raw)
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if got := discoerrors.Code(resp.Code); got != want {
		t.Fatalf("CheckTx code = %s (%s), want %s", got, resp.Log, want)
	}
}

func (f *fixture) produce(t *testing.T) *ledger.Block {
	t.Helper()
	b, err := f.node.ProduceBlock(ctx)
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	return b
}

func (f *fixture) entries(t *testing.T) []entry.Entry {
	t.Helper()
	resp, err := f.node.ListEntries(ctx, wire.ListEntriesRequest{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	return resp.Entries
}

func TestCreateEntry_CommitsAndQueries(t *testing.T) {
	f := newFixture(t)
	hash := f.checkOK(t, f.create(t, f.alice, 0, "0", "test"))

	st, err := f.node.TxStatus(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != wire.StatusPending {
		t.Errorf("status before block = %q, want pending", st.Status)
	}

	b := f.produce(t)
	if b.Height != 1 || b.TxCount != 1 {
		t.Errorf("block = %+v", b)
	}

	st, _ = f.node.TxStatus(ctx, hash)
	if st.Status != wire.StatusCommitted || st.Code != 0 || st.Height != 1 {
		t.Errorf("status after block = %+v", st)
	}

	got := f.entries(t)
	want := entry.Entry{ID: "0", Creator: f.alice.Address, Name: "test"}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("entries = %+v, want [%+v]", got, want)
	}

	acct, err := f.node.Account(ctx, f.alice.Address)
	if err != nil {
		t.Fatal(err)
	}
	if acct.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", acct.Sequence)
	}
	if f.node.MempoolSize() != 0 {
		t.Errorf("mempool not drained: %d", f.node.MempoolSize())
	}
}

func TestCheckTx_Duplicate(t *testing.T) {
	f := newFixture(t)
	raw := f.create(t, f.alice, 0, "", "dup")
	f.checkOK(t, raw)
	f.checkCode(t, raw, discoerrors.CodeDuplicateTx)

	f.produce(t)
	f.checkCode(t, raw, discoerrors.CodeDuplicateTx)

	if n := len(f.entries(t)); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestCheckTx_SameSequenceConflict(t *testing.T) {
	f := newFixture(t)
	f.checkOK(t, f.create(t, f.alice, 0, "", "first"))
	f.checkCode(t, f.create(t, f.alice, 0, "", "second"), discoerrors.CodeWrongSequence)
	f.produce(t)

	// A stale sequence is still rejected once the first one committed.
	f.checkCode(t, f.create(t, f.alice, 0, "", "third"), discoerrors.CodeWrongSequence)

	got := f.entries(t)
	if len(got) != 1 || got[0].Name != "first" {
		t.Errorf("entries = %+v, want only first", got)
	}
}

func TestCheckTx_PipelinedSequences(t *testing.T) {
	f := newFixture(t)
	f.checkOK(t, f.create(t, f.alice, 0, "", "a"))
	f.checkOK(t, f.create(t, f.alice, 1, "", "b"))
	f.checkOK(t, f.create(t, f.bob, 0, "", "c"))
	f.produce(t)

	got := f.entries(t)
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Name != want || got[i].ID != string(rune('0'+i)) {
			t.Errorf("entry %d = %+v", i, got[i])
		}
	}
	acct, _ := f.node.Account(ctx, f.alice.Address)
	if acct.Sequence != 2 {
		t.Errorf("alice sequence = %d, want 2", acct.Sequence)
	}
}

func TestCheckTx_Rejections(t *testing.T) {
	f := newFixture(t)

	tampered := f.create(t, f.alice, 0, "", "x")
	se, err := tx.Decode(tampered)
	if err != nil {
		t.Fatal(err)
	}
	se.Signature[0] ^= 0xff
	badSig, _ := tx.Encode(se)

	tests := []struct {
		name string
		raw  []byte
		want discoerrors.Code
	}{
		{"garbage", []byte{0xde, 0xad}, discoerrors.CodeEncoding},
		{"empty", nil, discoerrors.CodeEncoding},
		{"wrong chain", f.create(t, f.alice, 0, "", "x", withChain("other")), discoerrors.CodeWrongChainID},
		{"low fee", f.create(t, f.alice, 0, "", "x", withFee(0)), discoerrors.CodeInsufficientFee},
		{"bad signature", badSig, discoerrors.CodeInvalidSignature},
		{"future sequence", f.create(t, f.alice, 3, "", "x"), discoerrors.CodeWrongSequence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.checkCode(t, tt.raw, tt.want)
		})
	}
	if f.node.MempoolSize() != 0 {
		t.Errorf("rejected txs reached the mempool: %d", f.node.MempoolSize())
	}
}

func TestCheckTx_Expired(t *testing.T) {
	f := newFixture(t)
	f.produce(t)
	f.checkCode(t, f.create(t, f.alice, 0, "", "late", withTimeout(1)), discoerrors.CodeTxExpired)
	f.checkOK(t, f.create(t, f.alice, 0, "", "on time", withTimeout(2)))
}

func TestCheckTx_MempoolFull(t *testing.T) {
	f := newFixture(t)
	for seq := uint64(0); seq < 8; seq++ {
		f.checkOK(t, f.create(t, f.alice, seq, "", "n"))
	}
	f.checkCode(t, f.create(t, f.alice, 8, "", "n"), discoerrors.CodeMempoolFull)
}

func TestDeliver_EntryExistsStillBumpsSequence(t *testing.T) {
	f := newFixture(t)
	f.checkOK(t, f.create(t, f.alice, 0, "dup", "one"))
	hash := f.checkOK(t, f.create(t, f.alice, 1, "dup", "two"))
	f.produce(t)

	st, _ := f.node.TxStatus(ctx, hash)
	if st.Status != wire.StatusCommitted || discoerrors.Code(st.Code) != discoerrors.CodeEntryExists {
		t.Errorf("second tx status = %+v, want committed with entry_exists", st)
	}
	if got := f.entries(t); len(got) != 1 || got[0].Name != "one" {
		t.Errorf("entries = %+v", got)
	}
	acct, _ := f.node.Account(ctx, f.alice.Address)
	if acct.Sequence != 2 {
		t.Errorf("sequence = %d, want 2", acct.Sequence)
	}
}

func TestDeliver_TransactionIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.checkOK(t, f.create(t, f.alice, 0, "taken", "first"))
	f.produce(t)

	raw := f.signed(t, f.alice, 1, []entry.Msg{
		entry.NewMsgCreateEntry(f.alice.Address, "fresh", "would succeed"),
		entry.NewMsgCreateEntry(f.alice.Address, "taken", "collides"),
	})
	hash := f.checkOK(t, raw)
	f.produce(t)

	st, _ := f.node.TxStatus(ctx, hash)
	if discoerrors.Code(st.Code) != discoerrors.CodeEntryExists {
		t.Errorf("code = %s, want entry_exists", discoerrors.Code(st.Code))
	}
	if _, err := f.node.GetEntry(ctx, wire.GetEntryRequest{ID: "fresh"}); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("partial effect visible: GetEntry(fresh) error = %v", err)
	}
}

func TestDeliver_AssignedIDsSkipTakenValues(t *testing.T) {
	f := newFixture(t)
	f.checkOK(t, f.create(t, f.alice, 0, "1", "explicit"))
	f.checkOK(t, f.create(t, f.alice, 1, "", "auto"))
	f.produce(t)

	got := f.entries(t)
	if len(got) != 2 {
		t.Fatalf("entries = %+v", got)
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("ids = %q, %q; want 1, 2", got[0].ID, got[1].ID)
	}
}

func TestListEntries_Pagination(t *testing.T) {
	f := newFixture(t)
	for seq := uint64(0); seq < 7; seq++ {
		f.checkOK(t, f.create(t, f.alice, seq, "", "e"))
	}
	f.produce(t)

	full, err := f.node.ListEntries(ctx, wire.ListEntriesRequest{Pagination: wire.PageRequest{CountTotal: true}})
	if err != nil {
		t.Fatal(err)
	}
	if full.Pagination.Total != 7 || full.Pagination.NextKey != "" {
		t.Errorf("full page pagination = %+v", full.Pagination)
	}

	var paged []entry.Entry
	key := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
		resp, err := f.node.ListEntries(ctx, wire.ListEntriesRequest{Pagination: wire.PageRequest{Key: key, Limit: 3}})
		if err != nil {
			t.Fatal(err)
		}
		paged = append(paged, resp.Entries...)
		if resp.Pagination.NextKey == "" {
			break
		}
		key = resp.Pagination.NextKey
	}
	if len(paged) != len(full.Entries) {
		t.Fatalf("paged %d entries, want %d", len(paged), len(full.Entries))
	}
	for i := range paged {
		if paged[i] != full.Entries[i] {
			t.Errorf("entry %d: paged %+v, full %+v", i, paged[i], full.Entries[i])
		}
	}
}

func TestListEntries_BadCursor(t *testing.T) {
	f := newFixture(t)
	_, err := f.node.ListEntries(ctx, wire.ListEntriesRequest{Pagination: wire.PageRequest{Key: "abc"}})
	if !discoerrors.IsValidation(err) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}

func TestQueries_StaleRead(t *testing.T) {
	f := newFixture(t)
	f.produce(t)

	_, err := f.node.ListEntries(ctx, wire.ListEntriesRequest{MinHeight: 5})
	var stale *discoerrors.StaleReadError
	if !errors.As(err, &stale) {
		t.Fatalf("ListEntries error = %v, want StaleReadError", err)
	}
	if stale.Height != 1 || stale.MinHeight != 5 {
		t.Errorf("stale = %+v", stale)
	}

	if _, err := f.node.GetEntry(ctx, wire.GetEntryRequest{ID: "0", MinHeight: 2}); !discoerrors.IsStaleRead(err) {
		t.Errorf("GetEntry error = %v, want StaleReadError", err)
	}
	if _, err := f.node.ListEntries(ctx, wire.ListEntriesRequest{MinHeight: 1}); err != nil {
		t.Errorf("MinHeight at tip: %v", err)
	}
}

func TestTxStatus_NotFound(t *testing.T) {
	f := newFixture(t)
	st, err := f.node.TxStatus(ctx, "ABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != wire.StatusNotFound {
		t.Errorf("status = %q, want not_found", st.Status)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.checkOK(t, f.create(t, f.alice, 0, "", "x"))
	st, err := f.node.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.ChainID != chainID || st.Height != 0 || st.MinFee != 1 || st.Mempool != 1 {
		t.Errorf("status = %+v", st)
	}
	if err := f.store.Verify(ctx); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestRun_ProducesBlocksUntilCancelled(t *testing.T) {
	store := ledger.NewMemoryStore()
	n := node.New(store, node.Config{ChainID: chainID, BlockInterval: 5 * time.Millisecond}, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- n.Run(runCtx) }()

	for i := 0; i < 200; i++ {
		b, _ := store.LastBlock(ctx)
		if b.Height >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	b, _ := store.LastBlock(ctx)
	if b.Height < 2 {
		t.Errorf("height = %d, want at least 2", b.Height)
	}
}

// committingStore commits one block straight to the underlying store the
// first time Entries is called, between the node reading the tip and
// reading the page.
type committingStore struct {
	*ledger.MemoryStore
	t    *testing.T
	done bool
}

func (s *committingStore) Entries(ctx context.Context, q ledger.EntryQuery) ([]ledger.Record, error) {
	if !s.done {
		s.done = true
		tip, err := s.LastBlock(ctx)
		if err != nil {
			s.t.Fatal(err)
		}
		n, _ := s.EntryCount(ctx, ledger.Tip)
		cs := &ledger.Changeset{Entries: []ledger.Record{{
			Seq:   n + 1,
			Entry: entry.Entry{ID: "late", Creator: "disco1late", Name: "late"},
		}}}
		if err := s.Commit(ctx, ledger.NewBlock(tip, time.Now(), cs), cs); err != nil {
			s.t.Fatalf("Commit: %v", err)
		}
	}
	return s.MemoryStore.Entries(ctx, q)
}

func TestListEntries_PinnedWhenBlockCommitsMidRead(t *testing.T) {
	for _, blocksBefore := range []int{0, 1} {
		store := &committingStore{MemoryStore: ledger.NewMemoryStore(), t: t}
		n := node.New(store, node.Config{ChainID: chainID, MinFee: 1}, zap.NewNop())
		for i := 0; i < blocksBefore; i++ {
			if _, err := n.ProduceBlock(ctx); err != nil {
				t.Fatal(err)
			}
		}

		resp, err := n.ListEntries(ctx, wire.ListEntriesRequest{Pagination: wire.PageRequest{CountTotal: true}})
		if err != nil {
			t.Fatalf("tip %d: ListEntries: %v", blocksBefore, err)
		}
		if resp.Height != uint64(blocksBefore) {
			t.Errorf("tip %d: page height = %d", blocksBefore, resp.Height)
		}
		if len(resp.Entries) != 0 || resp.Pagination.Total != 0 {
			t.Errorf("tip %d: page at height %d holds %d entries (total %d) committed above it",
				blocksBefore, resp.Height, len(resp.Entries), resp.Pagination.Total)
		}
		if resp.Status != wire.QueryStatusOK {
			t.Errorf("tip %d: status = %q, want %q", blocksBefore, resp.Status, wire.QueryStatusOK)
		}
	}
}
