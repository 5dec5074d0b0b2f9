// Package simbuild implements spec §4.6: obtaining a simulation once
// and reusing it for both read-only detection and transaction
// assembly, plus the error-message classification rules that turn a
// raw Soroban RPC response into one of the gateway's structured errors.
package simbuild

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/metrics"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/sorobanrpc"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/xdrcodec"
)

// timeBoundsWindow is the "now+120" window spec §4.6 uses for both the
// throwaway simulation transaction and the assembled one.
const timeBoundsWindow = 120 * time.Second

// throwawayFee/assembledFee are the fixed fee=100 spec §4.6 specifies
// for the simulation and assembly transactions (not the final
// submitted fee, which feecalc computes separately).
const (
	throwawayFee = 100
	assembledFee = 100
)

// Result bundles everything the handler orchestrator needs out of a
// single simulate call (spec §4.6: "Obtain simulation output once and
// reuse it for both read-only detection and assembly").
type Result struct {
	Raw          *sorobanrpc.SimulateTransactionResult
	LatestLedger int64
	ReturnXDR    string // results[0].xdr, for readonly responses
	SorobanData  *xdrcodec.SorobanTransactionData
	Auth         []string // raw auth XDR strings from results[0].auth
}

// Simulate builds the spec §4.6 throwaway transaction (fund source,
// sequence 0, single invoke-host-function op, fee 100, time bounds
// [0, now+120]) and classifies the RPC response.
func Simulate(ctx context.Context, rpc sorobanrpc.Client, fundAddress string, hf *xdrcodec.HostFunction, auth []xdrcodec.AuthEntry) (*Result, error) {
	start := time.Now()
	defer metrics.ObserveSimulate(start)

	env := &xdrcodec.Envelope{
		Type:          xdrcodec.EnvelopeTypeTx,
		SourceAccount: fundAddress,
		Sequence:      0,
		Fee:           throwawayFee,
		MinTime:       0,
		MaxTime:       time.Now().Add(timeBoundsWindow).Unix(),
		HostFunction:  hf,
		Auth:          auth,
	}
	envXDR, err := xdrcodec.EncodeEnvelope(env)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeInvalidParams, err, "failed to encode simulation transaction")
	}

	raw, err := rpc.SimulateTransaction(ctx, envXDR)
	if err != nil {
		var rpcErr *sorobanrpc.RPCError
		if errors.As(err, &rpcErr) {
			return nil, gwerrors.Wrap(gwerrors.CodeSimulationRPCFailure, err, "simulateTransaction returned an RPC error")
		}
		return nil, gwerrors.Wrap(gwerrors.CodeSimulationNetworkError, err, "simulateTransaction request failed")
	}

	return classify(raw)
}

func classify(raw *sorobanrpc.SimulateTransactionResult) (*Result, error) {
	if raw.Error != "" {
		message, tag := parseErrorMessage(raw.Error)
		full := message
		if tag != "" {
			full = message + " (" + tag + ")"
		}
		if isSignedAuthFailure(raw.Error) {
			return nil, gwerrors.New(gwerrors.CodeSimulationSignedAuthValidationFail, full)
		}
		return nil, gwerrors.New(gwerrors.CodeSimulationFailed, full)
	}

	result := &Result{Raw: raw, LatestLedger: raw.LatestLedger}
	if len(raw.Results) > 0 {
		result.ReturnXDR = raw.Results[0].XDR
		result.Auth = raw.Results[0].Auth
	}
	if raw.TransactionData != "" {
		sd, err := decodeSorobanData(raw.TransactionData)
		if err == nil {
			result.SorobanData = sd
		}
		// A decode failure leaves SorobanData nil; IsReadOnly treats
		// that as "not read-only" per spec §4.6.
	}
	return result, nil
}

func decodeSorobanData(raw string) (*xdrcodec.SorobanTransactionData, error) {
	return xdrcodec.DecodeStandaloneSorobanData(raw)
}

// IsReadOnly implements spec §4.6's read-only predicate: true iff no
// authorization entries AND the decoded Soroban data's read-write
// footprint is empty (decode failure ⇒ not read-only).
func (r *Result) IsReadOnly() bool {
	if len(r.Auth) != 0 {
		return false
	}
	if r.SorobanData == nil {
		return false
	}
	return len(r.SorobanData.Resources.ReadWrite) == 0
}

// Assemble builds the inner transaction for a non-read-only call: the
// channel address as source at its current sequence, fee 100, time
// bounds [0, now+120], one invoke-host-function operation, with the
// cached simulation's resource footprint and fee attached (spec §4.6).
func Assemble(channelAddress string, sequence int64, hf *xdrcodec.HostFunction, auth []xdrcodec.AuthEntry, sim *Result) (*xdrcodec.Envelope, error) {
	if sim == nil || sim.SorobanData == nil {
		return nil, gwerrors.New(gwerrors.CodeAssemblyFailed, "simulation result missing Soroban transaction data")
	}
	return &xdrcodec.Envelope{
		Type:          xdrcodec.EnvelopeTypeTx,
		SourceAccount: channelAddress,
		Sequence:      sequence,
		Fee:           assembledFee,
		MinTime:       0,
		MaxTime:       time.Now().Add(timeBoundsWindow).Unix(),
		HostFunction:  hf,
		Auth:          auth,
		SorobanData:   sim.SorobanData,
	}, nil
}

// signedAuthPatterns are the raw-text markers spec §4.6 lists for
// detecting enforce-mode signed-auth failures.
var signedAuthPatterns = []string{
	"require_auth",
	"invalid signature",
	"signature has expired",
	"signature verification failed",
	"bad_signature",
	"tx_bad_auth",
}

var authErrorTag = regexp.MustCompile(`Error\(\s*Auth\s*,`)

func isSignedAuthFailure(raw string) bool {
	if authErrorTag.MatchString(raw) {
		return true
	}
	for _, pat := range signedAuthPatterns {
		if strings.Contains(raw, pat) {
			return true
		}
	}
	return false
}

var (
	bracketedDataRe = regexp.MustCompile(`data:\s*\[(.*?)\]`)
	quotedDataRe    = regexp.MustCompile(`data:\s*"([^"]*)"`)
	errorTagRe      = regexp.MustCompile(`Error\(([^)]*)\)`)
)

// parseErrorMessage implements spec §4.6's "Error message parsing":
// prefer a bracketed data array, else a quoted string, else the first
// trimmed line; append the Error(X,Y) tag if present; ignore captured
// messages of length <=3.
func parseErrorMessage(raw string) (message, tag string) {
	if m := bracketedDataRe.FindStringSubmatch(raw); m != nil {
		message = strings.Trim(strings.TrimSpace(m[1]), `"`)
	}
	if message == "" || len(message) <= 3 {
		if m := quotedDataRe.FindStringSubmatch(raw); m != nil {
			message = strings.TrimSpace(m[1])
		}
	}
	if message == "" || len(message) <= 3 {
		lines := strings.Split(raw, "\n")
		if len(lines) > 0 {
			message = strings.TrimSpace(lines[0])
		}
	}
	if len(message) <= 3 {
		message = strings.TrimSpace(raw)
	}

	if m := errorTagRe.FindStringSubmatch(raw); m != nil {
		tag = strings.TrimSpace(m[1])
	}
	return message, tag
}

// SanitizeReason implements spec §4.9/§7/§8 invariant 8: the
// last colon-separated segment if it is >=3 chars and does not
// contain "provider"; otherwise truncate the whole input to 100
// chars. This keeps provider-internal diagnostic prefixes (which tend
// to precede the final, user-meaningful segment) out of user-visible
// text when the last segment qualifies. The fallback does not strip
// anything: a rejected last segment that mentions "provider", or a
// long input truncated to 100 chars, can still contain the word.
func SanitizeReason(raw string) string {
	segments := strings.Split(raw, ":")
	last := strings.TrimSpace(segments[len(segments)-1])
	if len(last) >= 3 && !strings.Contains(last, "provider") {
		return last
	}
	if len(raw) > 100 {
		return raw[:100]
	}
	return raw
}

// LabURL builds a transaction-inspector URL parameterized for network
// (spec §4.9: "Include a debug URL pointing at a transaction-inspector
// web tool parameterized for the network").
func LabURL(network, hash string) string {
	return "https://lab.stellar.org/transactions/" + network + "/" + hash
}
