package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jmerrifield20/disco/pkg/entry"
)

// GenesisHash is the hash of the genesis block and the app hash of the empty
// state.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Block is one committed step of the chain.
type Block struct {
	Height   uint64    `json:"height"`
	Time     time.Time `json:"time"`
	TxCount  int       `json:"tx_count"`
	PrevHash string    `json:"prev_hash"`
	AppHash  string    `json:"app_hash"`
	Hash     string    `json:"hash"`
}

// Record is an entry together with its position in the collection.
type Record struct {
	Seq    uint64      `json:"seq"`
	Entry  entry.Entry `json:"entry"`
	Height uint64      `json:"height"`
}

// Account tracks the next sequence number an account must sign with.
type Account struct {
	Address   string `json:"address"`
	PublicKey []byte `json:"public_key"`
	Sequence  uint64 `json:"sequence"`
}

// TxResult is the outcome of applying one transaction.
type TxResult struct {
	Hash   string `json:"hash"`
	Height uint64 `json:"height"`
	Index  int    `json:"index"`
	Code   uint32 `json:"code"`
	Log    string `json:"log,omitempty"`
}

// Changeset is everything one block writes.
type Changeset struct {
	Entries  []Record
	Accounts []Account
	Txs      []TxResult
}

// Genesis returns the genesis block.
func Genesis() *Block {
	return &Block{
		Height:   0,
		Time:     time.Unix(0, 0).UTC(),
		PrevHash: GenesisHash,
		AppHash:  GenesisHash,
		Hash:     GenesisHash,
	}
}

// NewBlock builds the successor of prev for cs, filling in AppHash and Hash.
// Time is truncated to microseconds so it survives a round trip through
// Postgres.
func NewBlock(prev *Block, t time.Time, cs *Changeset) *Block {
	b := &Block{
		Height:   prev.Height + 1,
		Time:     t.UTC().Truncate(time.Microsecond),
		TxCount:  len(cs.Txs),
		PrevHash: prev.Hash,
		AppHash:  ComputeAppHash(prev.AppHash, cs),
	}
	b.Hash = HashBlock(b)
	return b
}

// HashBlock computes a deterministic SHA-256 over a block's header fields.
// It must never be called on the genesis block.
func HashBlock(b *Block) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%d|%s|%s",
		b.Height, b.Time.UnixMicro(), b.TxCount, b.PrevHash, b.AppHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeAppHash folds a changeset into the previous app hash.
func ComputeAppHash(prev string, cs *Changeset) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s", prev)
	for _, r := range cs.Entries {
		fmt.Fprintf(h, "|e:%d:%q:%q:%q", r.Seq, r.Entry.ID, r.Entry.Creator, r.Entry.Name)
	}
	for _, a := range cs.Accounts {
		fmt.Fprintf(h, "|a:%s:%d", a.Address, a.Sequence)
	}
	for _, t := range cs.Txs {
		fmt.Fprintf(h, "|t:%s:%d:%d", t.Hash, t.Index, t.Code)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func checkExtends(tip, b *Block) error {
	if b.Height != tip.Height+1 {
		return fmt.Errorf("height %d after tip %d: %w", b.Height, tip.Height, ErrOutOfOrder)
	}
	if b.PrevHash != tip.Hash {
		return fmt.Errorf("prev hash mismatch at height %d: %w", b.Height, ErrOutOfOrder)
	}
	if b.Hash != HashBlock(b) {
		return fmt.Errorf("block %d has invalid hash", b.Height)
	}
	return nil
}

func verifyChain(prev, curr *Block) error {
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at height %d", curr.Height)
	}
	if curr.Hash != HashBlock(curr) {
		return fmt.Errorf("block %d has invalid hash", curr.Height)
	}
	return nil
}
