// Package gateway binds every other component into the request
// pipeline spec §4.11 describes: validation, submit-only and
// build-and-submit dispatch, and the per-outcome lock/sequence
// lifecycle.
package gateway

import (
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/xdrcodec"
)

// RawParams is the decoded shape of the inbound request body's
// `params` object (spec §6): exactly one of {xdr} or {func, auth} for
// an ordinary request, or a `management` envelope routed before
// validation.
type RawParams struct {
	XDR          string   `json:"xdr,omitempty"`
	Func         string   `json:"func,omitempty"`
	Auth         []string `json:"auth,omitempty"`
	ReturnTxHash bool     `json:"returnTxHash,omitempty"`

	Management *ManagementParams `json:"management,omitempty"`
}

// ManagementParams is the `{management: {...}}` shape (spec §4.10/§6).
type ManagementParams struct {
	AdminSecret string   `json:"adminSecret"`
	Action      string   `json:"action"`
	RelayerIDs  []string `json:"relayerIds,omitempty"`
	APIKey      string   `json:"apiKey,omitempty"`
	Limit       *int64   `json:"limit,omitempty"`
}

// Kind distinguishes the two request-shape variants spec §9 describes
// as a tagged variant: `Submit(xdr) | Build(func, auth, returnTxHash?)`.
type Kind int

const (
	KindSubmit Kind = iota
	KindBuild
)

// ParsedRequest is the validated, decoded internal request (spec §3's
// "Request (internal)" tagged variant).
type ParsedRequest struct {
	Kind Kind

	XDR string // KindSubmit: the caller's signed envelope, still base64

	HostFunction *xdrcodec.HostFunction // KindBuild
	Auth         []xdrcodec.AuthEntry   // KindBuild

	ReturnTxHash bool
}

// ParseRequest implements spec §4.3's validation contract: exactly one
// of {xdr} or {func, auth}; any other combination is rejected; in
// func+auth mode, func is decoded as a host-function value, auth
// entries are decoded and any carrying source-account credentials
// (incompatible with channel-signed transactions) is rejected. All
// decode failures produce INVALID_PARAMS.
func ParseRequest(raw RawParams) (*ParsedRequest, error) {
	hasXDR := raw.XDR != ""
	hasFunc := raw.Func != "" || len(raw.Auth) > 0

	if hasXDR == hasFunc {
		return nil, gwerrors.New(gwerrors.CodeInvalidParams, "request must carry exactly one of xdr or func+auth")
	}

	if hasXDR {
		return &ParsedRequest{Kind: KindSubmit, XDR: raw.XDR, ReturnTxHash: raw.ReturnTxHash}, nil
	}

	hf, err := xdrcodec.DecodeHostFunction(raw.Func)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeInvalidParams, err, "invalid func")
	}

	var auth []xdrcodec.AuthEntry
	for _, a := range raw.Auth {
		entry, err := xdrcodec.DecodeAuthEntry(a)
		if err != nil {
			return nil, gwerrors.Wrap(gwerrors.CodeInvalidParams, err, "invalid auth entry")
		}
		if entry.Credentials == xdrcodec.CredentialsSourceAccount {
			return nil, gwerrors.New(gwerrors.CodeInvalidParams, "source-account credentials are not compatible with channel-signed transactions")
		}
		auth = append(auth, entry)
	}

	return &ParsedRequest{Kind: KindBuild, HostFunction: hf, Auth: auth, ReturnTxHash: raw.ReturnTxHash}, nil
}

// Result is the gateway's response payload (spec §3's "Transaction
// Result Summary" plus the management plane's free-form Data).
type Result struct {
	Status        string
	TransactionID string
	Hash          string
	ReturnValue   string
	LatestLedger  int64
	Error         string

	// Data carries the management plane's per-action response (spec
	// §4.10); nil for ordinary submit/build requests.
	Data any
}
