// Package config parses the gateway's process environment into a
// typed Config, the way the teacher's preconf.MinerConfig and
// preconf.TxPoolConfig parse a handful of knobs into a plain struct
// with a String() method and small derived-value helpers.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
)

// Network identifies which Stellar network a request targets.
type Network string

const (
	NetworkTestnet Network = "testnet"
	NetworkMainnet Network = "mainnet"
)

func (n Network) Valid() bool {
	return n == NetworkTestnet || n == NetworkMainnet
}

const (
	defaultLockTTLSeconds       = 30
	minLockTTLSeconds           = 3
	maxLockTTLSeconds           = 30
	defaultAPIKeyHeader         = "x-api-key"
	defaultCapacityRatio        = 0.8
	defaultInclusionFeeDefault  = 203
	defaultInclusionFeeLimited  = 201
	defaultSequenceCacheMaxAgeMs = 120_000
	defaultListenAddr           = ":8787"
)

// DefaultConfig mirrors the teacher's DefaultTxPoolConfig / DefaultMinerConfig
// package vars: the zero-value-safe defaults applied when an option is
// unset or fails to parse.
var DefaultConfig = Config{
	LockTTLSeconds:        defaultLockTTLSeconds,
	APIKeyHeader:          defaultAPIKeyHeader,
	CapacityRatio:         defaultCapacityRatio,
	InclusionFeeDefault:   defaultInclusionFeeDefault,
	InclusionFeeLimited:   defaultInclusionFeeLimited,
	SequenceCacheMaxAgeMs: defaultSequenceCacheMaxAgeMs,
	ListenAddr:            defaultListenAddr,
}

// Config is the gateway configuration parsed from the process environment
// by Load (spec §4.2). cmd/gateway calls Load once at process start and the
// Handler uses that one Config for every request; the environment is not
// re-read per request. Required fields fail fast with CONFIG_MISSING;
// everything else falls back to DefaultConfig on missing/invalid input.
type Config struct {
	Network       Network
	FundRelayerID string

	LockTTLSeconds int

	FeeLimit            *int64 // nil = unlimited
	FeeResetPeriodMs     *int64 // nil = no periodic reset

	APIKeyHeader string

	AdminSecret string // empty disables the management plane

	LimitedContracts map[string]struct{}
	CapacityRatio    float64

	InclusionFeeDefault int64
	InclusionFeeLimited int64

	SequenceCacheMaxAgeMs int64

	// Collaborator endpoints (spec §1's "external collaborators"): none
	// of these are part of the gateway's own domain model, but the
	// process still needs to know where to find them.
	SorobanRPCEndpoint string
	RelayerBaseURL     string
	RedisAddr          string // empty uses an in-process MemStore

	ListenAddr string
}

// String renders the config for structured logging, the way
// preconf.MinerConfig.String() does.
func (c *Config) String() string {
	var limited []string
	for id := range c.LimitedContracts {
		limited = append(limited, id)
	}
	feeLimit := "unlimited"
	if c.FeeLimit != nil {
		feeLimit = strconv.FormatInt(*c.FeeLimit, 10)
	}
	return "network=" + string(c.Network) +
		" fundRelayer=" + c.FundRelayerID +
		" lockTTL=" + strconv.Itoa(c.LockTTLSeconds) +
		" feeLimit=" + feeLimit +
		" capacityRatio=" + strconv.FormatFloat(c.CapacityRatio, 'f', 2, 64) +
		" limitedContracts=" + strings.Join(limited, ",")
}

// AdminEnabled reports whether the management plane is active.
func (c *Config) AdminEnabled() bool {
	return strings.TrimSpace(c.AdminSecret) != ""
}

// IsLimitedContract reports whether contractID is in the configured
// limited-contract set (already upper-cased by Load).
func (c *Config) IsLimitedContract(contractID string) bool {
	if contractID == "" {
		return false
	}
	_, ok := c.LimitedContracts[strings.ToUpper(contractID)]
	return ok
}

// InclusionFeeFor returns the inclusion fee for contractID per §4.7.
func (c *Config) InclusionFeeFor(contractID string) int64 {
	if c.IsLimitedContract(contractID) {
		return c.InclusionFeeLimited
	}
	return c.InclusionFeeDefault
}

// Load parses os.Environ() once, per spec §4.2. Required: NETWORK,
// FUND_RELAYER_ID. Missing required vars return CONFIG_MISSING;
// everything else falls back to DefaultConfig on bad/missing input,
// never erroring.
func Load() (*Config, error) {
	return LoadFromEnv(os.Environ())
}

// LoadFromEnv parses an explicit "KEY=VALUE" slice, primarily for tests.
func LoadFromEnv(environ []string) (*Config, error) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}

	network := Network(strings.ToLower(strings.TrimSpace(env["NETWORK"])))
	if network == "" {
		return nil, gwerrors.New(gwerrors.CodeConfigMissing, "NETWORK is required")
	}
	if !network.Valid() {
		return nil, gwerrors.Errorf(gwerrors.CodeUnsupportedNetwork, "unsupported network %q", network)
	}

	fundRelayer := strings.TrimSpace(env["FUND_RELAYER_ID"])
	if fundRelayer == "" {
		return nil, gwerrors.New(gwerrors.CodeConfigMissing, "FUND_RELAYER_ID is required")
	}

	cfg := DefaultConfig
	cfg.Network = network
	cfg.FundRelayerID = fundRelayer
	cfg.LimitedContracts = map[string]struct{}{}

	cfg.LockTTLSeconds = clampInt(parseIntOr(env["LOCK_TTL_SECONDS"], defaultLockTTLSeconds), minLockTTLSeconds, maxLockTTLSeconds)

	if raw := strings.TrimSpace(env["FEE_LIMIT"]); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			cfg.FeeLimit = &v
		} else {
			log.Warn("gateway config: invalid FEE_LIMIT, ignoring", "value", raw)
		}
	}

	if raw := strings.TrimSpace(env["FEE_RESET_PERIOD_SECONDS"]); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			ms := v * 1000
			cfg.FeeResetPeriodMs = &ms
		} else {
			log.Warn("gateway config: invalid FEE_RESET_PERIOD_SECONDS, ignoring", "value", raw)
		}
	}

	if raw := strings.TrimSpace(env["API_KEY_HEADER"]); raw != "" {
		cfg.APIKeyHeader = strings.ToLower(raw)
	}

	cfg.AdminSecret = strings.TrimSpace(env["PLUGIN_ADMIN_SECRET"])

	if raw := strings.TrimSpace(env["LIMITED_CONTRACTS"]); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id := strings.ToUpper(strings.TrimSpace(part))
			if id != "" {
				cfg.LimitedContracts[id] = struct{}{}
			}
		}
	}

	if raw := strings.TrimSpace(env["CONTRACT_CAPACITY_RATIO"]); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && v <= 1 {
			cfg.CapacityRatio = v
		} else {
			log.Warn("gateway config: invalid CONTRACT_CAPACITY_RATIO, ignoring", "value", raw)
		}
	}

	if raw := strings.TrimSpace(env["INCLUSION_FEE_DEFAULT"]); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			cfg.InclusionFeeDefault = v
		}
	}
	if raw := strings.TrimSpace(env["INCLUSION_FEE_LIMITED"]); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			cfg.InclusionFeeLimited = v
		}
	}

	cfg.SorobanRPCEndpoint = strings.TrimSpace(env["SOROBAN_RPC_ENDPOINT"])
	cfg.RelayerBaseURL = strings.TrimSpace(env["RELAYER_BASE_URL"])
	cfg.RedisAddr = strings.TrimSpace(env["REDIS_ADDR"])

	if raw := strings.TrimSpace(env["LISTEN_ADDR"]); raw != "" {
		cfg.ListenAddr = raw
	}

	return &cfg, nil
}

func parseIntOr(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
