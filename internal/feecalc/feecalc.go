// Package feecalc computes the maximum fee a submitted transaction may
// spend (spec §4.7), using arbitrary-precision arithmetic for the
// resource-fee component so large stroop amounts never overflow.
package feecalc

import (
	"math/big"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/xdrcodec"
)

// NonSorobanFee is the fee assumed for a transaction carrying no
// Soroban data (spec §4.7).
const NonSorobanFee = 100_000

// InclusionFeeFor resolves the inclusion fee for a contract id,
// matching config.Config.InclusionFeeFor's signature so callers can
// pass either in.
type InclusionFeeFor func(contractID string) int64

// Compute implements spec §4.7's pseudocode exactly: resourceFee from
// Soroban data if present else 0; contract id from the first
// invoke-host-function, tolerant of malformed envelopes; maxFee =
// (resourceFee>0 ? resourceFee : NonSorobanFee) + inclusionFee.
func Compute(env *xdrcodec.Envelope, inclusionFeeFor InclusionFeeFor) int64 {
	resourceFee := big.NewInt(0)
	if env.SorobanData != nil {
		resourceFee = big.NewInt(env.SorobanData.ResourceFee)
	}

	contractID := ExtractContractID(env)
	inclusionFee := big.NewInt(inclusionFeeFor(contractID))

	base := big.NewInt(NonSorobanFee)
	if resourceFee.Sign() > 0 {
		base = resourceFee
	}

	total := new(big.Int).Add(base, inclusionFee)
	return total.Int64()
}

// ExtractContractID returns the first invoke-host-function's contract
// id, or "" if the envelope carries none or is malformed in any way
// (spec §4.7: "any exception ⇒ no contract id, default inclusion").
func ExtractContractID(env *xdrcodec.Envelope) (contractID string) {
	defer func() {
		if recover() != nil {
			contractID = ""
		}
	}()
	if env == nil || env.HostFunction == nil {
		return ""
	}
	return env.HostFunction.ContractID
}
