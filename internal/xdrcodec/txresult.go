package xdrcodec

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// transactionResultMagic distinguishes the transaction-result shape
// the submit path decodes off a failed submission's status reason
// (spec §4.9 step 3: "attempt to decode the transaction-result XDR
// from the status reason... fee-bump inner failures unwrap to
// <outerCode>:<innerCode>").
const transactionResultMagic = "SCGR"

// TransactionResult is the decoded shape of a transaction-result XDR
// blob. FeeBump is true when the result wraps an inner transaction
// result (the shape every submission here takes, since every
// submission is fee-bumped by the fund account); InnerCode is empty
// when the outer fee-bump operation itself failed before the inner
// transaction was applied.
type TransactionResult struct {
	FeeBump   bool
	OuterCode string
	InnerCode string
}

// EncodeTransactionResult builds the base64 transaction-result XDR a
// relayer collaborator returns alongside a failed submission, used by
// test doubles standing in for the hosting runtime.
func EncodeTransactionResult(tr *TransactionResult) string {
	var buf bytes.Buffer
	buf.WriteString(transactionResultMagic)
	if tr.FeeBump {
		writeByte(&buf, 1)
	} else {
		writeByte(&buf, 0)
	}
	writeString(&buf, tr.OuterCode)
	writeString(&buf, tr.InnerCode)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeTransactionResult parses a transaction-result XDR blob (spec
// §4.9 step 3). Any structural problem is ErrMalformed, matching this
// package's other Decode functions.
func DecodeTransactionResult(raw string) (*TransactionResult, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
	}
	r := bytes.NewReader(data)
	var hdr [4]byte
	if _, err := r.Read(hdr[:]); err != nil || string(hdr[:]) != transactionResultMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	feeBumpByte, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	tr := &TransactionResult{FeeBump: feeBumpByte == 1}
	if tr.OuterCode, err = readString(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tr.InnerCode, err = readString(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return tr, nil
}

// ResultCode implements spec §4.9 step 3's unwrap rule: a fee-bump
// result whose inner transaction ran reports "<outerCode>:<innerCode>";
// anything else reports the outer code alone.
func (tr *TransactionResult) ResultCode() string {
	if tr.FeeBump && tr.InnerCode != "" {
		return tr.OuterCode + ":" + tr.InnerCode
	}
	return tr.OuterCode
}
