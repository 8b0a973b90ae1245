// cmd/seed populates a running node with demo entries for development.
//
// Accounts are derived from SEED_SECRET. Each account submits its share of
// the entries in sequence while the accounts run concurrently, so the run
// also exercises the node's per-account sequencing. Running twice is safe:
// entry ids are assigned by the chain and names may repeat.
//
// Usage:
//
//	go run ./cmd/seed
//	SEED_NODE=http://localhost:8080 SEED_ACCOUNTS=4 SEED_ENTRIES=40 go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmerrifield20/disco/pkg/client"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/entry"
	"github.com/jmerrifield20/disco/pkg/tx"
	"github.com/jmerrifield20/disco/pkg/wallet"
)

const (
	defaultNode   = "http://localhost:8080"
	defaultSecret = "disco development seed"
)

var names = []string{
	"genesis notes", "weekly sync", "release checklist", "incident review",
	"design sketch", "roadmap draft", "onboarding guide", "runbook",
	"benchmark results", "postmortem", "api changelog", "team charter",
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	nodeURL := envOr("SEED_NODE", defaultNode)
	secret := envOr("SEED_SECRET", defaultSecret)
	nAccounts, err := envInt("SEED_ACCOUNTS", 3)
	if err != nil {
		return err
	}
	nEntries, err := envInt("SEED_ENTRIES", len(names))
	if err != nil {
		return err
	}

	kr, err := wallet.FromSecret(secret, nAccounts)
	if err != nil {
		return fmt.Errorf("derive accounts: %w", err)
	}
	accts, _ := kr.Accounts()

	c, err := client.NewHTTP(nodeURL,
		client.WithPollInterval(100*time.Millisecond),
		client.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("node status: %w", err)
	}
	logger.Info("seeding node",
		zap.String("node", nodeURL),
		zap.String("chain_id", st.ChainID),
		zap.Uint64("height", st.Height),
		zap.Int("accounts", len(accts)),
		zap.Int("entries", nEntries),
	)

	var created, failed atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i, acct := range accts {
		g.Go(func() error {
			for j := i; j < nEntries; j += len(accts) {
				name := names[j%len(names)]
				res, err := c.SignAndBroadcast(gctx, kr, acct.Address, tx.Fee{},
					entry.NewMsgCreateEntry(acct.Address, "", name))
				switch {
				case err == nil && res.Succeeded():
					created.Add(1)
				case err == nil:
					failed.Add(1)
					logger.Warn("entry not applied", zap.String("hash", res.TxHash), zap.Stringer("code", res.Code))
				case discoerrors.Classify(err) == discoerrors.DidNotHappen:
					failed.Add(1)
					logger.Warn("entry rejected", zap.String("account", acct.Address), zap.Error(err))
				default:
					return fmt.Errorf("account %s: %w", acct.Address, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var timeout *discoerrors.BroadcastTimeoutError
		if errors.As(err, &timeout) {
			logger.Warn("check the pending transaction before reseeding", zap.String("hash", timeout.Hash))
		}
		return err
	}

	page, err := c.ListEntries(ctx, client.QueryOptions{Limit: 1, CountTotal: true})
	if err != nil {
		return fmt.Errorf("count entries: %w", err)
	}
	logger.Info("seed complete",
		zap.Int64("created", created.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Uint64("total_entries", page.Total),
		zap.Uint64("height", page.Height),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
