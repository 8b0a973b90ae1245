package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent Commit calls across processes
// sharing one database.
const advisoryLockKey = int64(1_402_117_731)

const uniqueViolation = "23505"

// PostgresStore persists node state to PostgreSQL. The schema lives in
// migrations/001_init.up.sql and includes the genesis block row.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Commit implements Store. It acquires an advisory lock, checks the block
// extends the current tip and writes the block with its changeset, all
// within a single transaction.
func (s *PostgresStore) Commit(ctx context.Context, b *Block, cs *Changeset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	tip, err := scanBlock(tx.QueryRow(ctx,
		`SELECT height, time, tx_count, prev_hash, app_hash, hash
		 FROM blocks ORDER BY height DESC LIMIT 1`,
	))
	if err != nil {
		return fmt.Errorf("read chain tip: %w", err)
	}
	if err := checkExtends(tip, b); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO blocks (height, time, tx_count, prev_hash, app_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(b.Height), b.Time, b.TxCount, b.PrevHash, b.AppHash, b.Hash,
	); err != nil {
		return fmt.Errorf("insert block %d: %w", b.Height, err)
	}

	for _, r := range cs.Entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO entries (seq, id, creator, name, height) VALUES ($1, $2, $3, $4, $5)`,
			int64(r.Seq), r.Entry.ID, r.Entry.Creator, r.Entry.Name, int64(b.Height),
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%q: %w", r.Entry.ID, ErrEntryExists)
			}
			return fmt.Errorf("insert entry %q: %w", r.Entry.ID, err)
		}
	}

	for _, a := range cs.Accounts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO accounts (address, public_key, sequence) VALUES ($1, $2, $3)
			 ON CONFLICT (address) DO UPDATE SET public_key = EXCLUDED.public_key, sequence = EXCLUDED.sequence`,
			a.Address, a.PublicKey, int64(a.Sequence),
		); err != nil {
			return fmt.Errorf("upsert account %s: %w", a.Address, err)
		}
	}

	for _, t := range cs.Txs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO txs (hash, height, idx, code, log) VALUES ($1, $2, $3, $4, $5)`,
			t.Hash, int64(b.Height), t.Index, int64(t.Code), t.Log,
		); err != nil {
			return fmt.Errorf("insert tx %s: %w", t.Hash, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit block tx: %w", err)
	}

	s.logger.Debug("block committed",
		zap.Uint64("height", b.Height),
		zap.Int("txs", b.TxCount),
		zap.Int("entries", len(cs.Entries)),
		zap.String("hash", b.Hash),
	)
	return nil
}

// LastBlock implements Store.
func (s *PostgresStore) LastBlock(ctx context.Context) (*Block, error) {
	b, err := scanBlock(s.pool.QueryRow(ctx,
		`SELECT height, time, tx_count, prev_hash, app_hash, hash
		 FROM blocks ORDER BY height DESC LIMIT 1`,
	))
	if err != nil {
		return nil, fmt.Errorf("get last block: %w", notFound(err))
	}
	return b, nil
}

// Block implements Store.
func (s *PostgresStore) Block(ctx context.Context, height uint64) (*Block, error) {
	b, err := scanBlock(s.pool.QueryRow(ctx,
		`SELECT height, time, tx_count, prev_hash, app_hash, hash
		 FROM blocks WHERE height = $1`, int64(height),
	))
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", height, notFound(err))
	}
	return b, nil
}

// Entry implements Store.
func (s *PostgresStore) Entry(ctx context.Context, id string) (*Record, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT seq, id, creator, name, height FROM entries WHERE id = $1`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("get entry %q: %w", id, notFound(err))
	}
	return r, nil
}

// Entries implements Store.
func (s *PostgresStore) Entries(ctx context.Context, q EntryQuery) ([]Record, error) {
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, creator, name, height FROM entries
		 WHERE seq > $1 AND height <= $2
		 ORDER BY seq ASC
		 LIMIT NULLIF($3, -1)`,
		int64(q.After), heightBound(q.AtHeight), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// EntryCount implements Store.
func (s *PostgresStore) EntryCount(ctx context.Context, atHeight uint64) (uint64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM entries WHERE height <= $1`, heightBound(atHeight),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return uint64(n), nil
}

// EntryIDUsed implements Store.
func (s *PostgresStore) EntryIDUsed(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM entries WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check entry id %q: %w", id, err)
	}
	return exists, nil
}

// Account implements Store.
func (s *PostgresStore) Account(ctx context.Context, addr string) (*Account, error) {
	a := &Account{}
	var seq int64
	if err := s.pool.QueryRow(ctx,
		`SELECT address, public_key, sequence FROM accounts WHERE address = $1`, addr,
	).Scan(&a.Address, &a.PublicKey, &seq); err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, notFound(err))
	}
	a.Sequence = uint64(seq)
	return a, nil
}

// Tx implements Store.
func (s *PostgresStore) Tx(ctx context.Context, hash string) (*TxResult, error) {
	t := &TxResult{}
	var height, code int64
	if err := s.pool.QueryRow(ctx,
		`SELECT hash, height, idx, code, log FROM txs WHERE hash = $1`, hash,
	).Scan(&t.Hash, &height, &t.Index, &code, &t.Log); err != nil {
		return nil, fmt.Errorf("get tx %s: %w", hash, notFound(err))
	}
	t.Height = uint64(height)
	t.Code = uint32(code)
	return t, nil
}

// Verify implements Store. It streams all blocks ordered by height and
// validates the hash chain. O(n) in chain length.
func (s *PostgresStore) Verify(ctx context.Context) error {
	rows, err := s.pool.Query(ctx,
		`SELECT height, time, tx_count, prev_hash, app_hash, hash
		 FROM blocks ORDER BY height ASC`,
	)
	if err != nil {
		return fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var prev *Block
	for rows.Next() {
		curr, err := scanBlock(rows)
		if err != nil {
			return fmt.Errorf("scan block row: %w", err)
		}
		if prev == nil {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis block has wrong hash: got %q", curr.Hash)
			}
			prev = curr
			continue
		}
		if err := verifyChain(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// heightBound clamps a height bound to the BIGINT column range.
func heightBound(h uint64) int64 {
	if h > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(h)
}

func scanBlock(row pgx.Row) (*Block, error) {
	b := &Block{}
	var height int64
	if err := row.Scan(&height, &b.Time, &b.TxCount, &b.PrevHash, &b.AppHash, &b.Hash); err != nil {
		return nil, err
	}
	b.Height = uint64(height)
	b.Time = b.Time.UTC()
	return b, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	r := &Record{}
	var seq, height int64
	if err := row.Scan(&seq, &r.Entry.ID, &r.Entry.Creator, &r.Entry.Name, &height); err != nil {
		return nil, err
	}
	r.Seq = uint64(seq)
	r.Height = uint64(height)
	return r, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
