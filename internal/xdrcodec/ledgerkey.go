package xdrcodec

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// ledgerKeyMagic/accountEntryMagic distinguish the two small extra
// shapes the sequence cache needs (spec §4.5): a ledger key requesting
// a single account entry, and the account entry's sequence field.
const (
	ledgerKeyMagic   = "SCGK"
	accountEntryMagic = "SCGA"
)

// EncodeAccountLedgerKey builds the base64 ledger key for address's
// account entry, the input to getLedgerEntries (spec §4.5: "build an
// account-ledger-key from the address").
func EncodeAccountLedgerKey(address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("%w: empty address", ErrMalformed)
	}
	var buf bytes.Buffer
	buf.WriteString(ledgerKeyMagic)
	writeString(&buf, address)
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeAccountLedgerKeyAddress recovers the address from a ledger key
// built by EncodeAccountLedgerKey, for test doubles that need to answer
// getLedgerEntries by address.
func DecodeAccountLedgerKeyAddress(raw string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrMalformed, err)
	}
	r := bytes.NewReader(data)
	var hdr [4]byte
	if _, err := r.Read(hdr[:]); err != nil || string(hdr[:]) != ledgerKeyMagic {
		return "", fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	return readString(r)
}

// EncodeAccountEntry builds the base64 ledger-entry XDR for an account
// with the given sequence number, used by test doubles standing in for
// a Soroban RPC provider.
func EncodeAccountEntry(address string, sequence int64) string {
	var buf bytes.Buffer
	buf.WriteString(accountEntryMagic)
	writeString(&buf, address)
	writeInt64(&buf, sequence)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeAccountEntrySequence extracts the sequence number from an
// account ledger entry XDR (spec §4.5: "decode the account entry to
// read the sequence number, return as a decimal string").
func DecodeAccountEntrySequence(raw string) (int64, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
	}
	r := bytes.NewReader(data)
	var hdr [4]byte
	if _, err := r.Read(hdr[:]); err != nil || string(hdr[:]) != accountEntryMagic {
		return 0, fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	if _, err := readString(r); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return readInt64(r)
}
