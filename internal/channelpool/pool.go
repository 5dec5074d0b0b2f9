// Package channelpool hands out exclusive channel-account leases (spec
// §4.4): distributed mutual exclusion over the shared KV store, with
// contract-class capacity partitioning so a single "limited" contract
// can never monopolize the whole pool.
package channelpool

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/kvstore"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/metrics"
)

const (
	// MaxSpins bounds the acquire retry loop (spec §4.4).
	MaxSpins = 30

	mutexTTL = time.Second

	spinSleepMinMs = 10
	spinSleepMaxMs = 30
)

// Membership is the persisted list of eligible channel-account relayer
// ids for a network (spec §3).
type Membership struct {
	RelayerIDs []string `json:"relayerIds"`
}

// Lock is the value stored at a channel's lock key (spec §3).
type Lock struct {
	Token    string `json:"token"`
	LockedAt int64  `json:"lockedAt"`
}

// Lease is returned by Acquire: the relayer id claimed, and the token
// needed to Release or Extend it.
type Lease struct {
	RelayerID string
	Token     string
}

// AcquireInput parameterizes a single acquire attempt (spec §4.4).
type AcquireInput struct {
	ContractID       string
	LimitedContracts map[string]struct{}
	CapacityRatio    float64
}

// Pool implements the channel-account lease algorithm over a Store.
type Pool struct {
	store   kvstore.Store
	network string
	lockTTL time.Duration
}

// New builds a Pool. lockTTL should already be clamped per spec §4.2
// (config.Config.LockTTLSeconds).
func New(store kvstore.Store, network string, lockTTL time.Duration) *Pool {
	return &Pool{store: store, network: network, lockTTL: lockTTL}
}

func (p *Pool) membershipKey() string { return p.network + ":channel:relayer-ids" }
func (p *Pool) mutexKey() string      { return p.network + ":channel-pool-lock" }
func (p *Pool) lockKey(id string) string {
	return p.network + ":channel:in-use:" + id
}

// Acquire implements spec §4.4's algorithm: up to MaxSpins attempts,
// each under the pool's global mutex, to select and claim a free
// channel account, honoring the limited-contract capacity partition.
func (p *Pool) Acquire(ctx context.Context, in AcquireInput) (*Lease, error) {
	start := time.Now()
	defer metrics.ObservePoolAcquire(start)

	var (
		lastTotal          int
		lastCandidateCount int
		isLimited          bool
	)

	for spin := 0; spin < MaxSpins; spin++ {
		result, err := p.store.WithLock(ctx, p.mutexKey(), kvstore.LockOptions{TTL: mutexTTL, OnBusy: kvstore.OnBusyThrow}, func(ctx context.Context) (any, error) {
			return p.selectAndClaim(ctx, in)
		})
		if err != nil {
			if err == kvstore.ErrLockBusy {
				metrics.PoolMutexSpinMeter.Mark(1)
				sleepJitter()
				continue
			}
			return nil, err
		}
		if lease, ok := result.(*selectResult); ok {
			lastTotal = lease.total
			lastCandidateCount = lease.candidateCount
			isLimited = lease.isLimited
			if lease.lease != nil {
				metrics.PoolAcquiredCounter.Inc(1)
				return lease.lease, nil
			}
		}
	}

	reason := "all_channels_busy_or_mutex_contention"
	details := map[string]any{
		"reason":         reason,
		"totalChannels":  lastTotal,
		"busyCandidates": lastCandidateCount,
	}
	if isLimited {
		reason = "limited_contract_capacity"
		details = map[string]any{
			"reason":            reason,
			"totalChannels":     lastTotal,
			"candidateChannels": lastCandidateCount,
		}
	}
	metrics.PoolCapacityMeter.Mark(1)
	return nil, gwerrors.New(gwerrors.CodePoolCapacity, "no channel account available").WithDetails(details)
}

type selectResult struct {
	lease          *Lease
	total          int
	candidateCount int
	isLimited      bool
}

// selectAndClaim is the critical section run under the pool's global
// mutex: read membership, partition, shuffle, claim the first free
// candidate.
func (p *Pool) selectAndClaim(ctx context.Context, in AcquireInput) (*selectResult, error) {
	var m Membership
	if err := p.store.Get(ctx, p.membershipKey(), &m); err != nil {
		if err == kvstore.ErrNotFound || len(m.RelayerIDs) == 0 {
			return nil, gwerrors.New(gwerrors.CodeNoChannelsConfigured, "no channel accounts configured")
		}
		return nil, gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to read channel membership")
	}
	if len(m.RelayerIDs) == 0 {
		return nil, gwerrors.New(gwerrors.CodeNoChannelsConfigured, "no channel accounts configured")
	}

	_, isLimited := in.LimitedContracts[in.ContractID]
	candidates := m.RelayerIDs
	if in.ContractID != "" && isLimited {
		candidates = Partition(m.RelayerIDs, in.CapacityRatio)
	}

	shuffled := shuffle(candidates)

	for _, id := range shuffled {
		held, err := p.store.Exists(ctx, p.lockKey(id))
		if err != nil {
			continue // best-effort probe; try the next candidate
		}
		if held {
			continue
		}
		token := uuid.NewString()
		lock := Lock{Token: token, LockedAt: time.Now().UnixMilli()}
		if err := p.store.Set(ctx, p.lockKey(id), lock, kvstore.SetOptions{TTL: p.lockTTL}); err != nil {
			continue
		}
		return &selectResult{
			lease:          &Lease{RelayerID: id, Token: token},
			total:          len(m.RelayerIDs),
			candidateCount: len(candidates),
			isLimited:      in.ContractID != "" && isLimited,
		}, nil
	}

	return &selectResult{
		total:          len(m.RelayerIDs),
		candidateCount: len(candidates),
		isLimited:      in.ContractID != "" && isLimited,
	}, nil
}

// Release deletes the lock on relayerID only if its stored token matches
// (spec §4.4's invariant 2 / §9's idempotence: a mismatched token is a
// no-op, protecting against late releases after TTL expiry).
func (p *Pool) Release(ctx context.Context, relayerID, token string) {
	var lock Lock
	if err := p.store.Get(ctx, p.lockKey(relayerID), &lock); err != nil {
		return // already gone; nothing to do
	}
	if lock.Token != token {
		return
	}
	if err := p.store.Del(ctx, p.lockKey(relayerID)); err != nil {
		log.Warn("channelpool: release failed, relying on TTL", "relayer", relayerID, "err", err)
		return
	}
	metrics.PoolReleasedCounter.Inc(1)
}

// Extend rewrites the lock on relayerID with a fresh TTL if its token
// still matches, holding the channel open while its transaction is
// still in flight (spec §4.11's pending/timeout lifecycle). All errors
// are swallowed (spec §7).
func (p *Pool) Extend(ctx context.Context, relayerID, token string) {
	var lock Lock
	if err := p.store.Get(ctx, p.lockKey(relayerID), &lock); err != nil {
		return
	}
	if lock.Token != token {
		return
	}
	lock.LockedAt = time.Now().UnixMilli()
	if err := p.store.Set(ctx, p.lockKey(relayerID), lock, kvstore.SetOptions{TTL: p.lockTTL}); err != nil {
		log.Warn("channelpool: extend failed", "relayer", relayerID, "err", err)
	}
}

// Membership returns the normalized member list.
func (p *Pool) Membership(ctx context.Context) ([]string, error) {
	var m Membership
	if err := p.store.Get(ctx, p.membershipKey(), &m); err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return m.RelayerIDs, nil
}

// Stats reports best-effort pool occupancy for the management plane
// (spec §4.10's `stats` action): size, locked count, available count.
// A probe failure leaves Locked/Available nil rather than failing the
// whole call.
type Stats struct {
	Size      int
	Locked    *int
	Available *int
}

func (p *Pool) Stats(ctx context.Context) (Stats, error) {
	ids, err := p.Membership(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Size: len(ids)}

	locked := 0
	probeFailed := false
	for _, id := range ids {
		held, err := p.store.Exists(ctx, p.lockKey(id))
		if err != nil {
			probeFailed = true
			break
		}
		if held {
			locked++
		}
	}
	if !probeFailed {
		available := len(ids) - locked
		stats.Locked = &locked
		stats.Available = &available
	}
	return stats, nil
}

func sleepJitter() {
	n, err := rand.Int(rand.Reader, big.NewInt(spinSleepMaxMs-spinSleepMinMs+1))
	ms := int64(spinSleepMinMs)
	if err == nil {
		ms += n.Int64()
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// simpleHash is the spec's "weak string hash (sum-of-char-code shifted)"
// (spec §9): adequate for distribution, not adversarially robust. Any
// stable, deterministic hash satisfies the spec; this one matches the
// documented source behavior so partitions are reproducible across
// implementations given the same membership.
func simpleHash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = (h << 5) - h + uint32(s[i])
	}
	return h
}

// Partition returns the deterministic subset of ids a limited contract is
// allowed to use: sorted by simpleHash ascending (stable tie-break on id),
// truncated to max(1, floor(ratio*N)) (spec §4.4 step 2, invariant 6/7).
func Partition(ids []string, ratio float64) []string {
	sorted := append([]string(nil), ids...)
	sort.SliceStable(sorted, func(i, j int) bool {
		hi, hj := simpleHash(sorted[i]), simpleHash(sorted[j])
		if hi != hj {
			return hi < hj
		}
		return sorted[i] < sorted[j]
	})
	k := int(ratio * float64(len(sorted)))
	if k < 1 {
		k = 1
	}
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}

// shuffle returns a Fisher-Yates shuffled copy of ids (spec §4.4 step 3).
func shuffle(ids []string) []string {
	out := append([]string(nil), ids...)
	for i := len(out) - 1; i > 0; i-- {
		j := randIntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func randIntN(n int) int {
	if n <= 1 {
		return 0
	}
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		return 0
	}
	v := binary.BigEndian.Uint64(buf[:])
	return int(v % uint64(n))
}

// NormalizeID trims, lowercases, and validates a relayer identifier per
// spec §3 ([a-z0-9:_-], length <=128). Returns ("", false) if invalid.
func NormalizeID(raw string) (string, bool) {
	id := normalizeLower(raw)
	if id == "" || len(id) > 128 {
		return "", false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == ':' || c == '_' || c == '-':
		default:
			return "", false
		}
	}
	return id, true
}

func normalizeLower(raw string) string {
	trimmed := trimSpace(raw)
	return toLower(trimmed)
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
