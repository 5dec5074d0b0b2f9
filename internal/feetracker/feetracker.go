// Package feetracker encapsulates per-API-key fee budget state (spec
// §4.8): checking and recording stroop consumption against an
// optional per-key or default limit, with periodic reset.
package feetracker

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/kvstore"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/metrics"
)

const (
	recordUsageLockTTL   = 5 * time.Second
	recordUsageRetries   = 3
	recordUsageBackoff   = 20 * time.Millisecond
)

// usageEntry is the persisted shape at `<net>:api-key-fees:<key>` (spec §6).
type usageEntry struct {
	Consumed    int64  `json:"consumed"`
	PeriodStart *int64 `json:"periodStart,omitempty"`
}

// limitEntry is the persisted shape at `<net>:api-key-limit:<key>` (spec §6).
type limitEntry struct {
	Limit int64 `json:"limit"`
}

// UsageInfo is what getUsageInfo/management's getFeeUsage exposes.
type UsageInfo struct {
	Consumed    int64
	PeriodStart *int64
}

// Tracker is constructed per API key (spec §4.8: "Constructor takes
// {kv, network, apiKey, defaultLimit?, resetPeriodMs?}").
type Tracker struct {
	store         kvstore.Store
	network       string
	apiKey        string
	defaultLimit  *int64
	resetPeriodMs *int64
}

func New(store kvstore.Store, network, apiKey string, defaultLimit *int64, resetPeriodMs *int64) *Tracker {
	return &Tracker{store: store, network: network, apiKey: apiKey, defaultLimit: defaultLimit, resetPeriodMs: resetPeriodMs}
}

func (t *Tracker) usageKey() string { return t.network + ":api-key-fees:" + t.apiKey }
func (t *Tracker) limitKey() string { return t.network + ":api-key-limit:" + t.apiKey }

// effectiveLimit is "custom ?? default" (spec §4.8).
func (t *Tracker) effectiveLimit(ctx context.Context) *int64 {
	var le limitEntry
	if err := t.store.Get(ctx, t.limitKey(), &le); err == nil {
		return &le.Limit
	}
	return t.defaultLimit
}

// CheckBudget implements spec §4.8's checkBudget(fee): no-op if there
// is no effective limit; else read usage (applying period expiry) and
// fail FEE_LIMIT_EXCEEDED when consumed+fee > limit.
func (t *Tracker) CheckBudget(ctx context.Context, fee int64) error {
	limit := t.effectiveLimit(ctx)
	if limit == nil {
		return nil
	}

	info, err := t.GetUsageInfo(ctx)
	if err != nil {
		return err
	}

	if info.Consumed+fee > *limit {
		metrics.FeeLimitExceededMeter.Mark(1)
		return gwerrors.New(gwerrors.CodeFeeLimitExceeded, "fee limit exceeded").WithDetails(map[string]any{
			"consumed":  info.Consumed,
			"fee":       fee,
			"remaining": *limit - info.Consumed,
			"limit":     *limit,
		})
	}
	metrics.FeeUsageConsumedGauge.Update(info.Consumed + fee)
	return nil
}

// GetUsageInfo reads usage state, applying period expiry (spec §4.8.3):
// if resetPeriodMs is configured and now-periodStart >= resetPeriodMs,
// the state is treated as {consumed: 0}.
func (t *Tracker) GetUsageInfo(ctx context.Context) (UsageInfo, error) {
	var e usageEntry
	if err := t.store.Get(ctx, t.usageKey(), &e); err != nil {
		if err == kvstore.ErrNotFound {
			return UsageInfo{}, nil
		}
		return UsageInfo{}, gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to read fee usage")
	}
	if t.expired(e) {
		return UsageInfo{}, nil
	}
	return UsageInfo{Consumed: e.Consumed, PeriodStart: e.PeriodStart}, nil
}

func (t *Tracker) expired(e usageEntry) bool {
	if t.resetPeriodMs == nil || e.PeriodStart == nil {
		return false
	}
	return time.Now().UnixMilli()-*e.PeriodStart >= *t.resetPeriodMs
}

// RecordUsage implements spec §4.8's recordUsage(fee): under a scoped
// lock on the usage key, read+apply expiry, set periodStart on first
// use, write consumed+=fee. Retries up to 3 times on lock contention;
// all KV errors are logged and swallowed — usage recording must never
// break submission (spec §4.8, §7).
func (t *Tracker) RecordUsage(ctx context.Context, fee int64) {
	for attempt := 0; attempt < recordUsageRetries; attempt++ {
		_, err := t.store.WithLock(ctx, t.usageKey()+":lock", kvstore.LockOptions{TTL: recordUsageLockTTL, OnBusy: kvstore.OnBusyThrow}, func(ctx context.Context) (any, error) {
			return nil, t.writeUsage(ctx, fee)
		})
		if err == nil {
			return
		}
		if err != kvstore.ErrLockBusy {
			log.Warn("feetracker: record usage failed", "apiKey", t.apiKey, "err", err)
			return
		}
		time.Sleep(recordUsageBackoff)
	}
	log.Warn("feetracker: record usage lock busy after retries, skipping", "apiKey", t.apiKey)
}

func (t *Tracker) writeUsage(ctx context.Context, fee int64) error {
	var e usageEntry
	if err := t.store.Get(ctx, t.usageKey(), &e); err != nil && err != kvstore.ErrNotFound {
		return err
	}
	if t.expired(e) {
		e = usageEntry{}
	}
	now := time.Now().UnixMilli()
	if e.PeriodStart == nil {
		e.PeriodStart = &now
	}
	e.Consumed += fee
	return t.store.Set(ctx, t.usageKey(), e, kvstore.SetOptions{})
}

// GetCustomLimit returns the per-key override, if any.
func (t *Tracker) GetCustomLimit(ctx context.Context) (*int64, error) {
	var le limitEntry
	if err := t.store.Get(ctx, t.limitKey(), &le); err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to read fee limit")
	}
	return &le.Limit, nil
}

// SetCustomLimit writes the per-key override. limit must be >= 0.
func (t *Tracker) SetCustomLimit(ctx context.Context, limit int64) error {
	if limit < 0 {
		return gwerrors.New(gwerrors.CodeInvalidParams, "limit must be >= 0")
	}
	if err := t.store.Set(ctx, t.limitKey(), limitEntry{Limit: limit}, kvstore.SetOptions{}); err != nil {
		return gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to set fee limit")
	}
	return nil
}

// DeleteCustomLimit removes the per-key override, reverting to the
// network default.
func (t *Tracker) DeleteCustomLimit(ctx context.Context) error {
	if err := t.store.Del(ctx, t.limitKey()); err != nil {
		return gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to delete fee limit")
	}
	return nil
}
