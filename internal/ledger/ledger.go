// Package ledger stores the committed state of a disco node: the block hash
// chain, the entry collection in creation order, account sequences and the
// transaction index.
//
// The chain begins with a well-known genesis block whose Hash equals
// GenesisHash (64 hex zeros). Every later block records the hash of its
// predecessor and an app hash that folds in everything the block changed.
// Verify checks the header chain only: every block hash and its link to the
// previous block. It does not replay changesets against the app hash.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, for tests and single-node development.
//   - PostgresStore: durable, backed by pgx.
package ledger

import (
	"context"
	"errors"
	"math"

	"github.com/jmerrifield20/disco/pkg/discoerrors"
)

// Tip is the height bound that admits everything committed so far. Height 0
// is a real bound (genesis) and hides every entry.
const Tip uint64 = math.MaxUint64

var (
	// ErrNotFound is returned for unknown blocks, entries, accounts and
	// transactions. It is the same value clients see as discoerrors.ErrNotFound.
	ErrNotFound = discoerrors.ErrNotFound
	// ErrEntryExists is returned by Commit when a changeset reuses an entry id.
	ErrEntryExists = errors.New("entry id already exists")
	// ErrOutOfOrder is returned by Commit when a block does not extend the chain tip.
	ErrOutOfOrder = errors.New("block does not extend the chain")
)

// EntryQuery selects a page of entries in creation order.
type EntryQuery struct {
	// After is the sequence number of the last entry already seen; 0 starts
	// at the beginning.
	After uint64
	Limit int
	// AtHeight hides entries committed above this height. Use Tip for no
	// bound.
	AtHeight uint64
}

// Store is the node's committed state. Commit is the only mutator and is
// atomic: either the block and its whole changeset become visible, or nothing does.
type Store interface {
	Commit(ctx context.Context, b *Block, cs *Changeset) error

	LastBlock(ctx context.Context) (*Block, error)
	Block(ctx context.Context, height uint64) (*Block, error)

	Entry(ctx context.Context, id string) (*Record, error)
	Entries(ctx context.Context, q EntryQuery) ([]Record, error)
	// EntryCount returns the number of entries committed at or below
	// atHeight. Pass Tip to count everything.
	EntryCount(ctx context.Context, atHeight uint64) (uint64, error)
	// EntryIDUsed reports whether id is taken.
	EntryIDUsed(ctx context.Context, id string) (bool, error)

	Account(ctx context.Context, addr string) (*Account, error)
	Tx(ctx context.Context, hash string) (*TxResult, error)

	// Verify walks the block chain and checks header hashes and links.
	Verify(ctx context.Context) error
}
