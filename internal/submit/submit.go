// Package submit implements spec §4.9: handing a signed envelope to
// the hosting runtime's fee-bump submission, then polling for a
// terminal status.
package submit

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/feetracker"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/metrics"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/relayer"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/simbuild"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/xdrcodec"
)

// Context carries the optional contract classification spec §4.9
// mentions ("submit context {contractId?, isLimited?}"); currently
// informational, kept for future fee-policy hooks and for logging.
type Context struct {
	ContractID string
	IsLimited  bool
}

// Outcome is the result of a submit-and-wait call.
type Outcome struct {
	Status        relayer.Status
	TransactionID string
	Hash          string
	ResultCode    string
	Reason        string
	LabURL        string
}

// SubmitAndWait implements spec §4.9's sequence: send the fee-bumped
// transaction, poll for a terminal status at 500ms/25s, and classify
// the result.
func SubmitAndWait(ctx context.Context, rel relayer.Relayer, network, envelopeXDR string, maxFee int64, tracker *feetracker.Tracker, subCtx Context) (*Outcome, error) {
	start := time.Now()
	defer metrics.ObserveSubmit(start)

	handle, err := rel.SendTransaction(ctx, relayer.SendTransactionInput{
		Network:        network,
		TransactionXDR: envelopeXDR,
		FeeBump:        true,
		MaxFee:         maxFee,
	})
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeRelayerUnavailable, err, "sendTransaction failed")
	}

	status, err := poll(ctx, rel, *handle)
	if err != nil {
		// Wait timeout: outcome unknown, fee must NOT be recorded (spec §4.9 step 5).
		metrics.WaitTimeoutMeter.Mark(1)
		return nil, gwerrors.New(gwerrors.CodeWaitTimeout, "timed out waiting for transaction").WithDetails(map[string]any{
			"id":   handle.ID,
			"hash": handle.Hash,
		})
	}

	// Prefer the id reported by the final poll; fall back to the send handle's.
	txID := handle.ID
	if status.ID != "" {
		txID = status.ID
	}

	switch status.Status {
	case relayer.StatusConfirmed:
		if tracker != nil {
			tracker.RecordUsage(ctx, maxFee)
		}
		metrics.ConfirmedMeter.Mark(1)
		return &Outcome{Status: status.Status, TransactionID: txID, Hash: status.Hash}, nil

	case relayer.StatusFailed:
		if tracker != nil {
			tracker.RecordUsage(ctx, maxFee)
		}
		metrics.FailedMeter.Mark(1)
		reason := simbuild.SanitizeReason(status.FailureReason)
		return nil, gwerrors.New(gwerrors.CodeOnchainFailed, "transaction failed on chain").WithDetails(map[string]any{
			"status":     string(status.Status),
			"reason":     reason,
			"id":         txID,
			"hash":       status.Hash,
			"resultCode": resultCode(status),
			"labUrl":     simbuild.LabURL(network, status.Hash),
		})

	default: // pending: caller's lock-lifecycle decision (extend, not release/clear)
		metrics.PendingHeldMeter.Mark(1)
		return &Outcome{Status: relayer.StatusPending, TransactionID: txID, Hash: status.Hash}, nil
	}
}

// resultCode implements spec §4.9 step 3's "attempt to decode the
// transaction-result XDR from the status reason" and its fee-bump
// unwrap rule. A missing or undecodable ResultXDR falls back to
// whatever result code the relayer collaborator reported directly.
func resultCode(status *relayer.SubmissionStatus) string {
	if status.ResultXDR == "" {
		return status.ResultCode
	}
	tr, err := xdrcodec.DecodeTransactionResult(status.ResultXDR)
	if err != nil {
		log.Warn("submit: failed to decode transaction-result XDR, falling back to relayer-reported code", "err", err)
		return status.ResultCode
	}
	return tr.ResultCode()
}

func poll(ctx context.Context, rel relayer.Relayer, handle relayer.SubmissionHandle) (*relayer.SubmissionStatus, error) {
	deadline := time.Now().Add(relayer.WaitTimeout)
	ticker := time.NewTicker(relayer.WaitPollInterval)
	defer ticker.Stop()

	for {
		status, err := rel.PollStatus(ctx, handle)
		if err == nil && status.Status != relayer.StatusPending {
			return status, nil
		}
		if err != nil {
			log.Warn("submit: poll error, retrying", "id", handle.ID, "err", err)
		}
		if time.Now().After(deadline) {
			return nil, gwerrors.New(gwerrors.CodeWaitTimeout, "timed out waiting for transaction")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
