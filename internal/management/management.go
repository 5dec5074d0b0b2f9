// Package management implements the gateway's management plane (spec
// §4.10): admin-secret-gated operations for channel membership and
// fee-limit administration, dispatched by action name.
package management

import (
	"context"
	"strings"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/channelpool"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/config"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/feetracker"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/kvstore"
)

// Request is the management-shaped request body (spec §6:
// `{ management: { adminSecret, action, … } }`).
type Request struct {
	AdminSecret string
	Action      string

	// Action-specific payloads.
	RelayerIDs []string // setChannelAccounts
	APIKey     string   // getFeeUsage, getFeeLimit, setFeeLimit, deleteFeeLimit
	Limit      *int64   // setFeeLimit
}

// Plane dispatches management actions against a pool/config/store.
type Plane struct {
	pool  *channelpool.Pool
	store kvstore.Store
	cfg   *config.Config
}

func New(pool *channelpool.Pool, store kvstore.Store, cfg *config.Config) *Plane {
	return &Plane{pool: pool, store: store, cfg: cfg}
}

// Authorize implements spec §4.10's admin check: MANAGEMENT_DISABLED
// if no admin secret is configured, UNAUTHORIZED on mismatch, both
// compared after trimming.
func (p *Plane) Authorize(req Request) error {
	configured := strings.TrimSpace(p.cfg.AdminSecret)
	if configured == "" {
		return gwerrors.New(gwerrors.CodeManagementDisabled, "management plane disabled")
	}
	if strings.TrimSpace(req.AdminSecret) == "" || strings.TrimSpace(req.AdminSecret) != configured {
		return gwerrors.New(gwerrors.CodeUnauthorized, "invalid admin secret")
	}
	return nil
}

// Dispatch authorizes and routes req.Action.
func (p *Plane) Dispatch(ctx context.Context, req Request) (any, error) {
	if err := p.Authorize(req); err != nil {
		return nil, err
	}

	switch req.Action {
	case "listChannelAccounts":
		return p.listChannelAccounts(ctx)
	case "setChannelAccounts":
		return nil, p.setChannelAccounts(ctx, req.RelayerIDs)
	case "getFeeUsage":
		return p.feeTracker(req.APIKey).GetUsageInfo(ctx)
	case "getFeeLimit":
		return p.feeTracker(req.APIKey).GetCustomLimit(ctx)
	case "setFeeLimit":
		if req.Limit == nil {
			return nil, gwerrors.New(gwerrors.CodeInvalidParams, "limit is required")
		}
		return nil, p.feeTracker(req.APIKey).SetCustomLimit(ctx, *req.Limit)
	case "deleteFeeLimit":
		return nil, p.feeTracker(req.APIKey).DeleteCustomLimit(ctx)
	case "stats":
		return p.stats(ctx)
	default:
		return nil, gwerrors.Errorf(gwerrors.CodeInvalidAction, "unknown management action %q", req.Action)
	}
}

func (p *Plane) feeTracker(apiKey string) *feetracker.Tracker {
	return feetracker.New(p.store, string(p.cfg.Network), apiKey, p.cfg.FeeLimit, p.cfg.FeeResetPeriodMs)
}

func (p *Plane) listChannelAccounts(ctx context.Context) ([]string, error) {
	ids, err := p.pool.Membership(ctx)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to read channel membership")
	}
	return ids, nil
}

// setChannelAccounts implements spec §4.10: normalize+dedupe+validate
// each id, reject removal of any locked channel, else write the new
// list.
func (p *Plane) setChannelAccounts(ctx context.Context, relayerIDs []string) error {
	normalized, err := normalizeAndDedupe(relayerIDs)
	if err != nil {
		return err
	}

	existing, err := p.pool.Membership(ctx)
	if err != nil {
		return gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to read channel membership")
	}
	newSet := toSet(normalized)

	var locked []string
	for _, id := range existing {
		if newSet[id] {
			continue // still present, not being removed
		}
		held, err := p.store.Exists(ctx, lockKey(string(p.cfg.Network), id))
		if err != nil {
			return gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to probe channel lock")
		}
		if held {
			locked = append(locked, id)
		}
	}
	if len(locked) > 0 {
		return gwerrors.New(gwerrors.CodeLockedConflict, "cannot remove locked channel accounts").WithDetails(map[string]any{
			"locked": locked,
		})
	}

	membership := channelpool.Membership{RelayerIDs: normalized}
	if err := p.store.Set(ctx, membershipKey(string(p.cfg.Network)), membership, kvstore.SetOptions{}); err != nil {
		return gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to write channel membership")
	}
	return nil
}

// Stats is the `stats` action's response shape (spec §4.10): pool
// occupancy, config echo, inclusion fees.
type Stats struct {
	PoolSize            int
	Locked              *int
	Available           *int
	Network             string
	InclusionFeeDefault int64
	InclusionFeeLimited int64
}

func (p *Plane) stats(ctx context.Context) (*Stats, error) {
	poolStats, err := p.pool.Stats(ctx)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeKVError, err, "failed to read pool stats")
	}
	return &Stats{
		PoolSize:            poolStats.Size,
		Locked:              poolStats.Locked,
		Available:           poolStats.Available,
		Network:             string(p.cfg.Network),
		InclusionFeeDefault: p.cfg.InclusionFeeDefault,
		InclusionFeeLimited: p.cfg.InclusionFeeLimited,
	}, nil
}

func normalizeAndDedupe(raw []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range raw {
		id, ok := channelpool.NormalizeID(r)
		if !ok {
			return nil, gwerrors.Errorf(gwerrors.CodeInvalidParams, "invalid relayer id %q", r)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func membershipKey(network string) string { return network + ":channel:relayer-ids" }
func lockKey(network, id string) string   { return network + ":channel:in-use:" + id }
