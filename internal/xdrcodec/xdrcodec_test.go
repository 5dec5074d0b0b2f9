package xdrcodec

import (
	"reflect"
	"testing"
)

func TestEnvelope_EncodeDecodeRoundTrip(t *testing.T) {
	env := &Envelope{
		Type:          EnvelopeTypeTx,
		SourceAccount: "GSOURCE",
		Sequence:      42,
		Fee:           1000,
		MaxTime:       999999,
		HostFunction: &HostFunction{
			ContractID: "CCONTRACT",
			FuncName:   "transfer",
			Args:       [][]byte{[]byte("arg1"), []byte("arg2")},
		},
		Auth: []AuthEntry{
			{Credentials: CredentialsAddress, Address: "GADDR", Nonce: 7, SignatureExpirationLedger: 100, Signature: []byte("sig")},
		},
		SorobanData: &SorobanTransactionData{
			Resources: SorobanResources{
				ReadOnly:     [][]byte{[]byte("ro1")},
				ReadWrite:    [][]byte{[]byte("rw1"), []byte("rw2")},
				Instructions: 5_000_000,
				ReadBytes:    1024,
				WriteBytes:   2048,
			},
			ResourceFee: 123_456,
		},
		Signatures: [][]byte{[]byte("sig1"), []byte("sig2")},
	}

	raw, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}

	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if !reflect.DeepEqual(env, got) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", env, got)
	}
}

func TestEnvelope_EncodeDecodeRoundTrip_NoHostFunctionOrSorobanData(t *testing.T) {
	env := &Envelope{
		Type:          EnvelopeTypeFeeBump,
		SourceAccount: "GSOURCE",
		Sequence:      1,
		Fee:           100,
	}
	raw, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if got.HostFunction != nil || got.SorobanData != nil {
		t.Fatalf("expected nil HostFunction/SorobanData, got %+v", got)
	}
	if got.Type != EnvelopeTypeFeeBump {
		t.Fatalf("expected fee-bump type preserved, got %v", got.Type)
	}
}

func TestDecodeEnvelope_RejectsBadMagic(t *testing.T) {
	if _, err := DecodeEnvelope("bm90YXZhbGlkZW52ZWxvcGU="); err == nil {
		t.Fatal("expected an error for an envelope with the wrong magic header")
	}
}

func TestDecodeEnvelope_RejectsInvalidBase64(t *testing.T) {
	if _, err := DecodeEnvelope("not-valid-base64!!!"); err == nil {
		t.Fatal("expected an error for invalid base64 input")
	}
}

func TestHostFunction_EncodeDecodeRoundTrip(t *testing.T) {
	hf := &HostFunction{ContractID: "CXYZ", FuncName: "mint", Args: [][]byte{[]byte("a")}}
	raw := EncodeHostFunction(hf)
	got, err := DecodeHostFunction(raw)
	if err != nil {
		t.Fatalf("DecodeHostFunction: %v", err)
	}
	if !reflect.DeepEqual(hf, got) {
		t.Fatalf("round trip mismatch: want %+v got %+v", hf, got)
	}
}

func TestAuthEntry_EncodeDecodeRoundTrip(t *testing.T) {
	a := AuthEntry{Credentials: CredentialsSourceAccount, Nonce: 5, SignatureExpirationLedger: 10, Signature: []byte("s")}
	raw := EncodeAuthEntry(a)
	got, err := DecodeAuthEntry(raw)
	if err != nil {
		t.Fatalf("DecodeAuthEntry: %v", err)
	}
	if !reflect.DeepEqual(a, got) {
		t.Fatalf("round trip mismatch: want %+v got %+v", a, got)
	}
}

func TestEnvelope_IsReadOnly(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want bool
	}{
		{
			name: "no soroban data",
			env:  Envelope{},
			want: false,
		},
		{
			name: "has auth entries",
			env: Envelope{
				Auth:        []AuthEntry{{}},
				SorobanData: &SorobanTransactionData{},
			},
			want: false,
		},
		{
			name: "empty read-write footprint",
			env: Envelope{
				SorobanData: &SorobanTransactionData{},
			},
			want: true,
		},
		{
			name: "non-empty read-write footprint",
			env: Envelope{
				SorobanData: &SorobanTransactionData{
					Resources: SorobanResources{ReadWrite: [][]byte{[]byte("k")}},
				},
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.env.IsReadOnly(); got != tt.want {
				t.Errorf("IsReadOnly() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStandaloneSorobanData_EncodeDecodeRoundTrip(t *testing.T) {
	sd := &SorobanTransactionData{
		Resources:   SorobanResources{ReadWrite: [][]byte{[]byte("k1")}},
		ResourceFee: 500,
	}
	raw := EncodeStandaloneSorobanData(sd)
	got, err := DecodeStandaloneSorobanData(raw)
	if err != nil {
		t.Fatalf("DecodeStandaloneSorobanData: %v", err)
	}
	if !reflect.DeepEqual(sd, got) {
		t.Fatalf("round trip mismatch: want %+v got %+v", sd, got)
	}
}
