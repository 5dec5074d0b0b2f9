package config

import (
	"testing"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
)

func TestLoadFromEnv_RequiredFieldsMissing(t *testing.T) {
	tests := []struct {
		name   string
		env    []string
		wantCode gwerrors.Code
	}{
		{
			name:     "no NETWORK",
			env:      []string{"FUND_RELAYER_ID=fund1"},
			wantCode: gwerrors.CodeConfigMissing,
		},
		{
			name:     "no FUND_RELAYER_ID",
			env:      []string{"NETWORK=testnet"},
			wantCode: gwerrors.CodeConfigMissing,
		},
		{
			name:     "unsupported network",
			env:      []string{"NETWORK=futurenet", "FUND_RELAYER_ID=fund1"},
			wantCode: gwerrors.CodeUnsupportedNetwork,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromEnv(tt.env)
			ge, ok := gwerrors.As(err)
			if !ok || ge.Code != tt.wantCode {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestLoadFromEnv_DefaultsAndOverrides(t *testing.T) {
	cfg, err := LoadFromEnv([]string{
		"NETWORK=mainnet",
		"FUND_RELAYER_ID=fund1",
		"LOCK_TTL_SECONDS=999", // clamped to maxLockTTLSeconds
		"FEE_LIMIT=1000000",
		"LIMITED_CONTRACTS=cA,Cb, ,cc",
		"CONTRACT_CAPACITY_RATIO=0.5",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LockTTLSeconds != maxLockTTLSeconds {
		t.Errorf("expected lock TTL clamped to %d, got %d", maxLockTTLSeconds, cfg.LockTTLSeconds)
	}
	if cfg.FeeLimit == nil || *cfg.FeeLimit != 1_000_000 {
		t.Errorf("expected fee limit 1000000, got %v", cfg.FeeLimit)
	}
	if !cfg.IsLimitedContract("ca") || !cfg.IsLimitedContract("CB") {
		t.Errorf("expected normalized limited-contract membership, got %v", cfg.LimitedContracts)
	}
	if cfg.CapacityRatio != 0.5 {
		t.Errorf("expected capacity ratio 0.5, got %v", cfg.CapacityRatio)
	}
}

func TestLoadFromEnv_InvalidOptionalFieldsDegradeToDefault(t *testing.T) {
	cfg, err := LoadFromEnv([]string{
		"NETWORK=testnet",
		"FUND_RELAYER_ID=fund1",
		"FEE_LIMIT=not-a-number",
		"CONTRACT_CAPACITY_RATIO=2.5",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.FeeLimit != nil {
		t.Errorf("expected invalid FEE_LIMIT to be ignored, got %v", *cfg.FeeLimit)
	}
	if cfg.CapacityRatio != defaultCapacityRatio {
		t.Errorf("expected invalid CONTRACT_CAPACITY_RATIO to fall back to default, got %v", cfg.CapacityRatio)
	}
}

func TestInclusionFeeFor(t *testing.T) {
	cfg := DefaultConfig
	cfg.LimitedContracts = map[string]struct{}{"CONTRACTX": {}}

	if got := cfg.InclusionFeeFor("CONTRACTX"); got != cfg.InclusionFeeLimited {
		t.Errorf("expected limited fee %d, got %d", cfg.InclusionFeeLimited, got)
	}
	if got := cfg.InclusionFeeFor("OTHER"); got != cfg.InclusionFeeDefault {
		t.Errorf("expected default fee %d, got %d", cfg.InclusionFeeDefault, got)
	}
}

func TestAdminEnabled(t *testing.T) {
	cfg := DefaultConfig
	if cfg.AdminEnabled() {
		t.Errorf("expected management plane disabled with no admin secret")
	}
	cfg.AdminSecret = "  "
	if cfg.AdminEnabled() {
		t.Errorf("expected whitespace-only admin secret to leave management disabled")
	}
	cfg.AdminSecret = "s3cret"
	if !cfg.AdminEnabled() {
		t.Errorf("expected management plane enabled once admin secret is set")
	}
}
