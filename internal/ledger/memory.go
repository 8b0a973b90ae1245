package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store. Returned values are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	blocks   []*Block
	entries  []Record // entries[i].Seq == i+1
	byID     map[string]int
	accounts map[string]Account
	txs      map[string]TxResult
}

// NewMemoryStore creates a MemoryStore holding only the genesis block.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks:   []*Block{Genesis()},
		byID:     make(map[string]int),
		accounts: make(map[string]Account),
		txs:      make(map[string]TxResult),
	}
}

// Commit implements Store.
func (s *MemoryStore) Commit(_ context.Context, b *Block, cs *Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkExtends(s.blocks[len(s.blocks)-1], b); err != nil {
		return err
	}
	seen := make(map[string]bool, len(cs.Entries))
	for i, r := range cs.Entries {
		if want := uint64(len(s.entries) + i + 1); r.Seq != want {
			return fmt.Errorf("entry seq %d, want %d", r.Seq, want)
		}
		if _, ok := s.byID[r.Entry.ID]; ok || seen[r.Entry.ID] {
			return fmt.Errorf("%q: %w", r.Entry.ID, ErrEntryExists)
		}
		seen[r.Entry.ID] = true
	}

	bc := *b
	s.blocks = append(s.blocks, &bc)
	for _, r := range cs.Entries {
		r.Height = b.Height
		s.byID[r.Entry.ID] = len(s.entries)
		s.entries = append(s.entries, r)
	}
	for _, a := range cs.Accounts {
		a.PublicKey = append([]byte(nil), a.PublicKey...)
		s.accounts[a.Address] = a
	}
	for _, t := range cs.Txs {
		t.Height = b.Height
		s.txs[t.Hash] = t
	}
	return nil
}

// LastBlock implements Store.
func (s *MemoryStore) LastBlock(_ context.Context) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := *s.blocks[len(s.blocks)-1]
	return &b, nil
}

// Block implements Store.
func (s *MemoryStore) Block(_ context.Context, height uint64) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if height >= uint64(len(s.blocks)) {
		return nil, fmt.Errorf("block %d: %w", height, ErrNotFound)
	}
	b := *s.blocks[height]
	return &b, nil
}

// Entry implements Store.
func (s *MemoryStore) Entry(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("entry %q: %w", id, ErrNotFound)
	}
	r := s.entries[i]
	return &r, nil
}

// Entries implements Store.
func (s *MemoryStore) Entries(_ context.Context, q EntryQuery) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := q.After; i < uint64(len(s.entries)); i++ {
		r := s.entries[i]
		if r.Height > q.AtHeight {
			break
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// EntryCount implements Store.
func (s *MemoryStore) EntryCount(_ context.Context, atHeight uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n uint64
	for _, r := range s.entries {
		if r.Height > atHeight {
			break
		}
		n++
	}
	return n, nil
}

// EntryIDUsed implements Store.
func (s *MemoryStore) EntryIDUsed(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok, nil
}

// Account implements Store.
func (s *MemoryStore) Account(_ context.Context, addr string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", addr, ErrNotFound)
	}
	a.PublicKey = append([]byte(nil), a.PublicKey...)
	return &a, nil
}

// Tx implements Store.
func (s *MemoryStore) Tx(_ context.Context, hash string) (*TxResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[hash]
	if !ok {
		return nil, fmt.Errorf("tx %s: %w", hash, ErrNotFound)
	}
	return &t, nil
}

// Verify implements Store. The genesis block is validated against GenesisHash.
func (s *MemoryStore) Verify(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, curr := range s.blocks {
		if i == 0 {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis block has wrong hash: got %q", curr.Hash)
			}
			continue
		}
		if err := verifyChain(s.blocks[i-1], curr); err != nil {
			return err
		}
	}
	return nil
}
