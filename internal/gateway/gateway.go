package gateway

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/channelpool"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/config"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/feecalc"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/feetracker"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/kvstore"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/management"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/metrics"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/relayer"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/seqcache"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/simbuild"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/sorobanrpc"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/submit"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/xdrcodec"
)

// Handler binds every other component into the request pipeline spec
// §4.11 describes. One Handler serves every request for a given
// config; per-request state (fee tracker, parsed request) is built
// fresh each call, matching spec §9's "no module-level mutable
// singletons — the handler constructs dependencies per request".
type Handler struct {
	cfg   *config.Config
	store kvstore.Store
	rpc   sorobanrpc.Client
	rel   relayer.Relayer

	pool *channelpool.Pool
	seq  *seqcache.Cache
	mgmt *management.Plane
}

// New builds a Handler from a loaded config and the collaborator
// seams (spec §9: KV store, chain-RPC client, and hosting-runtime
// relayer handle are all interfaces).
func New(cfg *config.Config, store kvstore.Store, rpc sorobanrpc.Client, rel relayer.Relayer) *Handler {
	lockTTL := time.Duration(cfg.LockTTLSeconds) * time.Second
	pool := channelpool.New(store, string(cfg.Network), lockTTL)
	seq := seqcache.New(store, rpc, string(cfg.Network), time.Duration(cfg.SequenceCacheMaxAgeMs)*time.Millisecond)
	mgmt := management.New(pool, store, cfg)
	return &Handler{cfg: cfg, store: store, rpc: rpc, rel: rel, pool: pool, seq: seq, mgmt: mgmt}
}

// Handle implements spec §4.11's per-request sequence: route
// management requests first, then validate, resolve the fund relayer,
// and branch on request kind.
func (h *Handler) Handle(ctx context.Context, raw RawParams, headers map[string][]string) (*Result, error) {
	if raw.Management != nil {
		return h.handleManagement(ctx, *raw.Management)
	}

	apiKey := extractAPIKey(headers, h.cfg.APIKeyHeader)
	if h.cfg.FeeLimit != nil && apiKey == "" {
		return nil, gwerrors.New(gwerrors.CodeAPIKeyRequired, "an API key is required when a default fee limit is configured")
	}
	var tracker *feetracker.Tracker
	if apiKey != "" || h.cfg.FeeLimit != nil {
		tracker = feetracker.New(h.store, string(h.cfg.Network), apiKey, h.cfg.FeeLimit, h.cfg.FeeResetPeriodMs)
	}

	parsed, err := ParseRequest(raw)
	if err != nil {
		return nil, err
	}

	fundInfo, err := h.rel.Resolve(ctx, h.cfg.FundRelayerID)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeRelayerUnavailable, err, "failed to resolve fund relayer")
	}
	if fundInfo.Network != "stellar" {
		return nil, gwerrors.New(gwerrors.CodeUnsupportedNetwork, "fund relayer is not a stellar network relayer")
	}

	switch parsed.Kind {
	case KindSubmit:
		log.Debug("gateway: dispatching submit-only request", "network", h.cfg.Network, "apiKey", apiKey != "")
		return h.submitOnly(ctx, parsed, fundInfo, tracker)
	default:
		log.Debug("gateway: dispatching build-and-submit request", "network", h.cfg.Network, "apiKey", apiKey != "")
		return h.buildAndSubmit(ctx, parsed, fundInfo, tracker)
	}
}

func (h *Handler) handleManagement(ctx context.Context, mp ManagementParams) (*Result, error) {
	req := management.Request{
		AdminSecret: mp.AdminSecret,
		Action:      mp.Action,
		RelayerIDs:  mp.RelayerIDs,
		APIKey:      mp.APIKey,
		Limit:       mp.Limit,
	}
	data, err := h.mgmt.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data}, nil
}

// submitOnly implements spec §4.11's "Submit-only path": decode the
// envelope; an unsigned single-invoke-host-function envelope is
// funneled into build-and-submit instead; otherwise validate and
// submit directly.
func (h *Handler) submitOnly(ctx context.Context, parsed *ParsedRequest, fundInfo *relayer.Info, tracker *feetracker.Tracker) (*Result, error) {
	env, err := xdrcodec.DecodeEnvelope(parsed.XDR)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeInvalidXDR, err, "failed to decode transaction envelope")
	}

	if len(env.Signatures) == 0 && env.HostFunction != nil {
		build := &ParsedRequest{Kind: KindBuild, HostFunction: env.HostFunction, Auth: env.Auth, ReturnTxHash: parsed.ReturnTxHash}
		return h.buildAndSubmit(ctx, build, fundInfo, tracker)
	}

	if err := validateSubmitEnvelope(env); err != nil {
		return nil, err
	}

	contractID := feecalc.ExtractContractID(env)
	maxFee := feecalc.Compute(env, h.cfg.InclusionFeeFor)
	if tracker != nil {
		if err := tracker.CheckBudget(ctx, maxFee); err != nil {
			return nil, err
		}
	}

	outcome, submitErr := submit.SubmitAndWait(ctx, h.rel, string(h.cfg.Network), parsed.XDR, maxFee, tracker, submit.Context{
		ContractID: contractID,
		IsLimited:  h.cfg.IsLimitedContract(contractID),
	})
	return submitResult(outcome, submitErr, parsed.ReturnTxHash)
}

// buildAndSubmit implements spec §4.11's "Build-and-submit path":
// simulate once, short-circuit read-only calls, else acquire a
// channel, resolve its sequence, assemble, co-sign, submit, and apply
// the outcome's lock/sequence lifecycle.
func (h *Handler) buildAndSubmit(ctx context.Context, parsed *ParsedRequest, fundInfo *relayer.Info, tracker *feetracker.Tracker) (*Result, error) {
	sim, err := simbuild.Simulate(ctx, h.rpc, fundInfo.Address, parsed.HostFunction, parsed.Auth)
	if err != nil {
		return nil, err
	}
	if sim.IsReadOnly() {
		metrics.ReadonlyMeter.Mark(1)
		return &Result{Status: "readonly", ReturnValue: sim.ReturnXDR, LatestLedger: sim.LatestLedger}, nil
	}

	contractID := ""
	if parsed.HostFunction != nil {
		contractID = parsed.HostFunction.ContractID
	}
	isLimited := h.cfg.IsLimitedContract(contractID)

	lease, err := h.pool.Acquire(ctx, channelpool.AcquireInput{
		ContractID:       contractID,
		LimitedContracts: h.cfg.LimitedContracts,
		CapacityRatio:    h.cfg.CapacityRatio,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("gateway: channel acquired", "relayer", lease.RelayerID, "contract", contractID, "limited", isLimited)

	channelInfo, err := h.rel.Resolve(ctx, lease.RelayerID)
	if err != nil {
		h.pool.Release(ctx, lease.RelayerID, lease.Token)
		return nil, gwerrors.Wrap(gwerrors.CodeRelayerUnavailable, err, "failed to resolve channel relayer")
	}
	if channelInfo.Network != "stellar" {
		h.pool.Release(ctx, lease.RelayerID, lease.Token)
		return nil, gwerrors.New(gwerrors.CodeUnsupportedNetwork, "channel relayer is not a stellar network relayer")
	}

	seqStr, err := h.seq.GetSequence(ctx, channelInfo.Address)
	if err != nil {
		h.pool.Release(ctx, lease.RelayerID, lease.Token)
		return nil, err
	}
	used, convErr := strconv.ParseInt(seqStr, 10, 64)
	if convErr != nil {
		h.pool.Release(ctx, lease.RelayerID, lease.Token)
		return nil, gwerrors.Wrap(gwerrors.CodeFailedToGetSequence, convErr, "invalid cached sequence number")
	}

	assembled, err := simbuild.Assemble(channelInfo.Address, used, parsed.HostFunction, parsed.Auth, sim)
	if err != nil {
		h.pool.Release(ctx, lease.RelayerID, lease.Token)
		h.seq.ClearSequence(ctx, channelInfo.Address)
		return nil, err
	}

	// Co-signing (spec §4.11): hand the inner transaction to the
	// channel's signing endpoint and append its detached signature. No
	// fund signature here — the hosting runtime adds the fee-bump
	// signature when FeeBump is set on submit.
	unsignedXDR, err := xdrcodec.EncodeEnvelope(assembled)
	if err != nil {
		h.pool.Release(ctx, lease.RelayerID, lease.Token)
		h.seq.ClearSequence(ctx, channelInfo.Address)
		return nil, gwerrors.Wrap(gwerrors.CodeAssemblyFailed, err, "failed to encode assembled transaction")
	}
	sig, err := h.rel.SignTransaction(ctx, lease.RelayerID, unsignedXDR)
	if err != nil {
		h.pool.Release(ctx, lease.RelayerID, lease.Token)
		h.seq.ClearSequence(ctx, channelInfo.Address)
		return nil, gwerrors.Wrap(gwerrors.CodeInvalidSignature, err, "channel signing failed")
	}
	assembled.Signatures = append(assembled.Signatures, sig)
	signedXDR, err := xdrcodec.EncodeEnvelope(assembled)
	if err != nil {
		h.pool.Release(ctx, lease.RelayerID, lease.Token)
		h.seq.ClearSequence(ctx, channelInfo.Address)
		return nil, gwerrors.Wrap(gwerrors.CodeAssemblyFailed, err, "failed to encode signed transaction")
	}

	maxFee := feecalc.Compute(assembled, h.cfg.InclusionFeeFor)
	if tracker != nil {
		if err := tracker.CheckBudget(ctx, maxFee); err != nil {
			h.pool.Release(ctx, lease.RelayerID, lease.Token)
			h.seq.ClearSequence(ctx, channelInfo.Address)
			return nil, err
		}
	}

	outcome, submitErr := submit.SubmitAndWait(ctx, h.rel, string(h.cfg.Network), signedXDR, maxFee, tracker, submit.Context{
		ContractID: contractID,
		IsLimited:  isLimited,
	})
	applyLifecycle(ctx, h.pool, lease, h.seq, channelInfo.Address, used, outcome, submitErr)

	return submitResult(outcome, submitErr, parsed.ReturnTxHash)
}

// applyLifecycle implements spec §4.11's "Outcome → sequence-cache
// lifecycle" and "Outcome → lock lifecycle": confirmed commits the
// sequence and releases the lock; a wait timeout (or a still-pending
// status) extends the lock instead of releasing it, since the
// in-flight transaction may yet settle; everything else clears the
// cached sequence and releases the lock.
func applyLifecycle(ctx context.Context, pool *channelpool.Pool, lease *channelpool.Lease, seq *seqcache.Cache, address string, used int64, outcome *submit.Outcome, err error) {
	if err != nil {
		if ge, ok := gwerrors.As(err); ok && ge.Code == gwerrors.CodeWaitTimeout {
			pool.Extend(ctx, lease.RelayerID, lease.Token)
		} else {
			pool.Release(ctx, lease.RelayerID, lease.Token)
		}
		seq.ClearSequence(ctx, address)
		return
	}

	switch outcome.Status {
	case relayer.StatusConfirmed:
		seq.CommitSequence(ctx, address, used)
		pool.Release(ctx, lease.RelayerID, lease.Token)
	case relayer.StatusPending:
		pool.Extend(ctx, lease.RelayerID, lease.Token)
		seq.ClearSequence(ctx, address)
	default:
		pool.Release(ctx, lease.RelayerID, lease.Token)
		seq.ClearSequence(ctx, address)
	}
}

// submitResult converts a submit.SubmitAndWait outcome/error pair into
// a Result, honoring the returnTxHash flag (spec §4.11: "do not throw
// on timeout or on-chain failure; instead return
// {status, hash, transactionId, error?}").
func submitResult(outcome *submit.Outcome, err error, returnTxHash bool) (*Result, error) {
	if err != nil {
		ge, ok := gwerrors.As(err)
		if returnTxHash && ok && (ge.Code == gwerrors.CodeWaitTimeout || ge.Code == gwerrors.CodeOnchainFailed) {
			status := "failed"
			if ge.Code == gwerrors.CodeWaitTimeout {
				status = "pending"
			}
			hash, _ := ge.Details["hash"].(string)
			txID, _ := ge.Details["id"].(string)
			return &Result{Status: status, Hash: hash, TransactionID: txID, Error: ge.Message}, nil
		}
		return nil, err
	}
	return &Result{Status: string(outcome.Status), TransactionID: outcome.TransactionID, Hash: outcome.Hash}, nil
}

// validateSubmitEnvelope implements spec §4.11's submit-only
// validation: envelope type regular (not a fee-bump), time-bounds
// maxTime<=now+120 and not already expired, and Soroban-fee-sanity
// fee<=resourceFee+201. The 201 offset matches spec §9's open
// question: it equals inclusionFeeLimited with a zero offset in the
// source this was distilled from, kept literal here per that note.
func validateSubmitEnvelope(env *xdrcodec.Envelope) error {
	if env.Type == xdrcodec.EnvelopeTypeFeeBump {
		return gwerrors.New(gwerrors.CodeInvalidEnvelopeType, "fee-bump envelopes cannot be submitted directly")
	}

	now := time.Now().Unix()
	if env.MaxTime != 0 {
		if env.MaxTime > now+120 {
			return gwerrors.New(gwerrors.CodeTimeboundsTooFar, "maxTime exceeds now+120")
		}
		if env.MaxTime < now {
			return gwerrors.New(gwerrors.CodeInvalidTimeBounds, "transaction time bounds have already expired")
		}
	}

	var resourceFee int64
	if env.SorobanData != nil {
		resourceFee = env.SorobanData.ResourceFee
	}
	if env.Fee > resourceFee+201 {
		return gwerrors.New(gwerrors.CodeFeeMismatch, "fee exceeds resourceFee+201")
	}
	return nil
}

func extractAPIKey(headers map[string][]string, headerName string) string {
	for k, v := range headers {
		if strings.EqualFold(k, headerName) && len(v) > 0 {
			if key := strings.TrimSpace(v[0]); key != "" {
				return key
			}
		}
	}
	return ""
}
