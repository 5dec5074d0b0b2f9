package xdrcodec

import "testing"

func TestTransactionResult_EncodeDecodeRoundTrip(t *testing.T) {
	tr := &TransactionResult{FeeBump: true, OuterCode: "tx_fee_bump_inner_failed", InnerCode: "tx_bad_auth"}
	raw := EncodeTransactionResult(tr)
	got, err := DecodeTransactionResult(raw)
	if err != nil {
		t.Fatalf("DecodeTransactionResult: %v", err)
	}
	if *got != *tr {
		t.Fatalf("round trip mismatch: want %+v got %+v", tr, got)
	}
}

func TestTransactionResult_ResultCode(t *testing.T) {
	tests := []struct {
		name string
		tr   TransactionResult
		want string
	}{
		{
			name: "fee-bump with inner failure unwraps",
			tr:   TransactionResult{FeeBump: true, OuterCode: "tx_fee_bump_inner_failed", InnerCode: "tx_bad_auth"},
			want: "tx_fee_bump_inner_failed:tx_bad_auth",
		},
		{
			name: "fee-bump with no inner result reports outer code alone",
			tr:   TransactionResult{FeeBump: true, OuterCode: "tx_insufficient_fee"},
			want: "tx_insufficient_fee",
		},
		{
			name: "non-fee-bump reports outer code alone",
			tr:   TransactionResult{OuterCode: "tx_failed"},
			want: "tx_failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tr.ResultCode(); got != tt.want {
				t.Errorf("ResultCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeTransactionResult_RejectsBadMagic(t *testing.T) {
	if _, err := DecodeTransactionResult("bm90YXZhbGlk"); err == nil {
		t.Fatal("expected an error for a blob with the wrong magic header")
	}
}
