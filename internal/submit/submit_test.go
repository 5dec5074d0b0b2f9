package submit

import (
	"context"
	"testing"
	"time"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/feetracker"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/kvstore"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/relayer"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/xdrcodec"
)

type fakeRelayer struct {
	sendErr    error
	statuses   []relayer.SubmissionStatus // returned in order, last one repeats
	pollCalls  int
}

func (f *fakeRelayer) Resolve(ctx context.Context, relayerID string) (*relayer.Info, error) {
	return &relayer.Info{RelayerID: relayerID, Network: "stellar"}, nil
}

func (f *fakeRelayer) SignTransaction(ctx context.Context, relayerID, transactionXDR string) ([]byte, error) {
	return []byte("sig"), nil
}

func (f *fakeRelayer) SendTransaction(ctx context.Context, in relayer.SendTransactionInput) (*relayer.SubmissionHandle, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &relayer.SubmissionHandle{ID: "sub1", Hash: "hash1"}, nil
}

func (f *fakeRelayer) PollStatus(ctx context.Context, handle relayer.SubmissionHandle) (*relayer.SubmissionStatus, error) {
	idx := f.pollCalls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.pollCalls++
	s := f.statuses[idx]
	return &s, nil
}

func TestSubmitAndWait_Confirmed(t *testing.T) {
	rel := &fakeRelayer{statuses: []relayer.SubmissionStatus{{Status: relayer.StatusConfirmed, Hash: "hash1"}}}
	tracker := feetracker.New(kvstore.NewMemStore(), "testnet", "key1", nil, nil)

	outcome, err := SubmitAndWait(context.Background(), rel, "testnet", "envelope-xdr", 1000, tracker, Context{})
	if err != nil {
		t.Fatalf("submit and wait: %v", err)
	}
	if outcome.Status != relayer.StatusConfirmed || outcome.Hash != "hash1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	info, _ := tracker.GetUsageInfo(context.Background())
	if info.Consumed != 1000 {
		t.Fatalf("expected fee recorded on confirm, consumed=%d", info.Consumed)
	}
}

func TestSubmitAndWait_Failed(t *testing.T) {
	rel := &fakeRelayer{statuses: []relayer.SubmissionStatus{{
		Status: relayer.StatusFailed, Hash: "hash1", ResultCode: "tx_failed:op_bad_auth", FailureReason: "tx_failed:op_bad_auth",
	}}}
	tracker := feetracker.New(kvstore.NewMemStore(), "testnet", "key1", nil, nil)

	_, err := SubmitAndWait(context.Background(), rel, "testnet", "envelope-xdr", 1000, tracker, Context{})
	ge, ok := gwerrors.As(err)
	if !ok || ge.Code != gwerrors.CodeOnchainFailed {
		t.Fatalf("expected ONCHAIN_FAILED, got %v", err)
	}
	if ge.Details["reason"] != "op_bad_auth" {
		t.Fatalf("expected sanitized reason op_bad_auth, got %v", ge.Details["reason"])
	}
	if ge.Details["resultCode"] != "tx_failed:op_bad_auth" {
		t.Fatalf("expected relayer-reported resultCode fallback, got %v", ge.Details["resultCode"])
	}

	info, _ := tracker.GetUsageInfo(context.Background())
	if info.Consumed != 1000 {
		t.Fatalf("expected fee recorded even on failure (submission consumed the fee), got %d", info.Consumed)
	}
}

func TestSubmitAndWait_Failed_DecodesResultXDRAndUnwrapsFeeBump(t *testing.T) {
	resultXDR := xdrcodec.EncodeTransactionResult(&xdrcodec.TransactionResult{
		FeeBump:   true,
		OuterCode: "tx_fee_bump_inner_failed",
		InnerCode: "tx_bad_auth",
	})
	rel := &fakeRelayer{statuses: []relayer.SubmissionStatus{{
		Status: relayer.StatusFailed, Hash: "hash1",
		ResultXDR: resultXDR, ResultCode: "stale-passthrough-value", FailureReason: "provider: tx_bad_auth",
	}}}

	_, err := SubmitAndWait(context.Background(), rel, "testnet", "envelope-xdr", 1000, nil, Context{})
	ge, ok := gwerrors.As(err)
	if !ok || ge.Code != gwerrors.CodeOnchainFailed {
		t.Fatalf("expected ONCHAIN_FAILED, got %v", err)
	}
	if want := "tx_fee_bump_inner_failed:tx_bad_auth"; ge.Details["resultCode"] != want {
		t.Fatalf("expected decoded+unwrapped resultCode %q, got %v", want, ge.Details["resultCode"])
	}
}

func TestSubmitAndWait_Failed_UndecodableResultXDRFallsBackToRelayerCode(t *testing.T) {
	rel := &fakeRelayer{statuses: []relayer.SubmissionStatus{{
		Status: relayer.StatusFailed, Hash: "hash1",
		ResultXDR: "not-valid-base64!!!", ResultCode: "tx_failed", FailureReason: "tx_failed",
	}}}

	_, err := SubmitAndWait(context.Background(), rel, "testnet", "envelope-xdr", 1000, nil, Context{})
	ge, ok := gwerrors.As(err)
	if !ok || ge.Code != gwerrors.CodeOnchainFailed {
		t.Fatalf("expected ONCHAIN_FAILED, got %v", err)
	}
	if ge.Details["resultCode"] != "tx_failed" {
		t.Fatalf("expected fallback to relayer-reported resultCode, got %v", ge.Details["resultCode"])
	}
}

func TestSubmitAndWait_Pending(t *testing.T) {
	rel := &fakeRelayer{statuses: []relayer.SubmissionStatus{{Status: relayer.StatusPending, Hash: "hash1"}}}

	// poll() only returns when status != pending OR the deadline passes;
	// since every poll call here returns pending, this exercises the
	// timeout path rather than a genuine "pending forever" branch, which
	// in production only arises transiently between polls.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := SubmitAndWait(ctx, rel, "testnet", "envelope-xdr", 1000, nil, Context{})
	if err == nil {
		t.Fatalf("expected an error when polling never leaves pending before cancellation")
	}
}

func TestSubmitAndWait_SendFailureIsRelayerUnavailable(t *testing.T) {
	rel := &fakeRelayer{sendErr: context.DeadlineExceeded}
	_, err := SubmitAndWait(context.Background(), rel, "testnet", "envelope-xdr", 1000, nil, Context{})
	ge, ok := gwerrors.As(err)
	if !ok || ge.Code != gwerrors.CodeRelayerUnavailable {
		t.Fatalf("expected RELAYER_UNAVAILABLE, got %v", err)
	}
}
