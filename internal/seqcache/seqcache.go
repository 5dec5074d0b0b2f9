// Package seqcache caches the next-expected sequence number per
// channel address (spec §4.5), avoiding tx_bad_seq errors caused by
// read-after-write lag on the ledger-entries RPC.
package seqcache

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/singleflight"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/kvstore"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/metrics"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/sorobanrpc"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/xdrcodec"
)

// entry is the persisted shape at `<net>:channel:seq:<address>` (spec §6).
type entry struct {
	Sequence string `json:"sequence"`
	StoredAt int64  `json:"storedAt"`
}

// Cache wraps a Store with the get/commit/clear operations spec §4.5
// defines, plus the chain fallback fetch.
type Cache struct {
	store   kvstore.Store
	rpc     sorobanrpc.Client
	network string
	maxAge  time.Duration

	// group collapses concurrent chain fetches for the same address
	// into one RPC call, the way a sudden burst of requests against an
	// uncached channel would otherwise hammer the RPC provider with
	// identical getLedgerEntries calls.
	group singleflight.Group
}

func New(store kvstore.Store, rpc sorobanrpc.Client, network string, maxAge time.Duration) *Cache {
	return &Cache{store: store, rpc: rpc, network: network, maxAge: maxAge}
}

func (c *Cache) key(address string) string {
	return c.network + ":channel:seq:" + address
}

// GetSequence returns the cached sequence if fresh, else fetches from
// chain (without writing the cache — spec §4.5: "else fetch from chain
// and return (no write)").
func (c *Cache) GetSequence(ctx context.Context, address string) (string, error) {
	var e entry
	err := c.store.Get(ctx, c.key(address), &e)
	if err == nil && time.Since(time.UnixMilli(e.StoredAt)) < c.maxAge {
		metrics.SeqCacheHitMeter.Mark(1)
		return e.Sequence, nil
	}
	metrics.SeqCacheMissMeter.Mark(1)
	seq, err, _ := c.group.Do(address, func() (any, error) {
		return c.fetchFromChain(ctx, address)
	})
	if err != nil {
		return "", err
	}
	return seq.(string), nil
}

// CommitSequence writes {sequence: used+1, storedAt: now} after a
// confirmed submission (spec §4.5, §8 invariant 4: commit is monotone
// in the sense that every commit writes exactly used+1).
func (c *Cache) CommitSequence(ctx context.Context, address string, used int64) {
	e := entry{Sequence: strconv.FormatInt(used+1, 10), StoredAt: time.Now().UnixMilli()}
	if err := c.store.Set(ctx, c.key(address), e, kvstore.SetOptions{}); err != nil {
		log.Warn("seqcache: commit failed", "address", address, "err", err)
	}
}

// ClearSequence deletes the cache entry. Errors swallowed (spec §4.5).
func (c *Cache) ClearSequence(ctx context.Context, address string) {
	if err := c.store.Del(ctx, c.key(address)); err != nil {
		log.Warn("seqcache: clear failed", "address", address, "err", err)
	}
}

// fetchFromChain builds an account ledger key, requests a single
// ledger entry, and decodes the sequence number (spec §4.5's chain
// fetch path).
func (c *Cache) fetchFromChain(ctx context.Context, address string) (string, error) {
	ledgerKey, err := xdrcodec.EncodeAccountLedgerKey(address)
	if err != nil {
		return "", gwerrors.Wrap(gwerrors.CodeFailedToGetSequence, err, "failed to build ledger key")
	}

	result, err := c.rpc.GetLedgerEntries(ctx, []string{ledgerKey})
	if err != nil {
		return "", gwerrors.Wrap(gwerrors.CodeFailedToGetSequence, err, "getLedgerEntries failed")
	}
	if len(result.Entries) == 0 {
		return "", gwerrors.New(gwerrors.CodeAccountNotFound, "account not found: "+address)
	}

	seq, err := xdrcodec.DecodeAccountEntrySequence(result.Entries[0].XDR)
	if err != nil {
		return "", gwerrors.Wrap(gwerrors.CodeFailedToGetSequence, err, "failed to decode account entry")
	}
	return strconv.FormatInt(seq, 10), nil
}
