// Package relayer is the gateway's hosting-runtime collaborator (spec
// §9: "the hosting runtime's relayer handle... abstractable behind
// interfaces with small, named capabilities"). It covers channel
// signing and fee-bump submission — the two relayer capabilities the
// handler orchestrator (spec §4.11) calls out to.
package relayer

import (
	"context"
	"time"
)

// Info describes a relayer's identity and network, as looked up by id
// (spec §4.11: "resolve fund relayer (must exist, stellar network
// type)", "resolve channel info (must be stellar network type)").
type Info struct {
	RelayerID string
	Address   string
	Network   string // must equal "stellar" for both fund and channel relayers
}

// SendTransactionInput is what the handler hands to the hosting
// runtime's send-transaction capability (spec §4.9 step 1).
type SendTransactionInput struct {
	Network           string
	TransactionXDR    string
	FeeBump           bool
	MaxFee            int64
}

// Status is the terminal or in-flight state of a submitted transaction
// (spec §3's Transaction Result Summary, §4.9's poll outcomes).
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// SubmissionHandle identifies an in-flight submission for polling.
type SubmissionHandle struct {
	ID   string
	Hash string
}

// SubmissionStatus is one poll result (spec §4.9 step 2).
type SubmissionStatus struct {
	Status       Status
	Hash         string
	ID           string
	ResultXDR    string // present on status=="failed": transaction-result XDR to decode
	ResultCode   string
	FailureReason string
}

// Relayer is the gateway's seam onto the hosting runtime.
type Relayer interface {
	// Resolve returns the relayer's identity/network for relayerID.
	Resolve(ctx context.Context, relayerID string) (*Info, error)

	// SignTransaction passes the inner (unsigned) transaction XDR to
	// the channel's signing endpoint, returning a detached signature
	// (spec §4.11's "Co-signing": no fund signature at this layer).
	SignTransaction(ctx context.Context, relayerID, transactionXDR string) (signature []byte, err error)

	// SendTransaction submits in.TransactionXDR, wrapped in a fee-bump
	// by the fund account when FeeBump is set (spec §4.9 step 1).
	SendTransaction(ctx context.Context, in SendTransactionInput) (*SubmissionHandle, error)

	// PollStatus returns the current status of a previously submitted
	// transaction (spec §4.9 step 2).
	PollStatus(ctx context.Context, handle SubmissionHandle) (*SubmissionStatus, error)
}

// WaitPollInterval and WaitTimeout implement spec §4.9 step 2's
// "polling cadence 500 ms, timeout 25 000 ms".
const (
	WaitPollInterval = 500 * time.Millisecond
	WaitTimeout      = 25_000 * time.Millisecond
)
