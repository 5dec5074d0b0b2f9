// Package xdrcodec models the wire shapes spec §3/§4.3/§4.6 manipulate
// — transaction envelopes, host-function invocations, authorization
// entries, and Soroban transaction data — and encodes/decodes them to
// the base64 strings that cross the gateway's external interface.
//
// There is no Stellar/Soroban XDR library anywhere in the example
// pack (every teacher and reference repo is Ethereum tooling), so this
// package defines its own compact, deterministic binary encoding for
// these types rather than fabricating a dependency on an XDR codec
// the pack never uses. It is a seam: callers only depend on Encode,
// Decode, and the struct shapes, so a real XDR implementation could
// replace the body of this file without touching any other package.
package xdrcodec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// CredentialsKind distinguishes authorization-entry credential types
// (spec §4.3: source-account credentials must be rejected).
type CredentialsKind uint8

const (
	CredentialsSourceAccount CredentialsKind = iota
	CredentialsAddress
)

// EnvelopeType distinguishes transaction envelope shapes (spec §4.11:
// "envelope type regular").
type EnvelopeType uint8

const (
	EnvelopeTypeTxV0 EnvelopeType = iota
	EnvelopeTypeTx
	EnvelopeTypeFeeBump
)

// HostFunction is a single invoke-host-function call target.
type HostFunction struct {
	ContractID string
	FuncName   string
	Args       [][]byte
}

// AuthEntry is one authorization entry attached to a host-function
// invocation.
type AuthEntry struct {
	Credentials CredentialsKind
	Address     string // present when Credentials == CredentialsAddress
	Nonce       int64
	SignatureExpirationLedger uint32
	Signature   []byte
}

// SorobanResources is the resource footprint carried in Soroban
// transaction data (spec glossary: "resource footprint (read-only,
// read-write keys)").
type SorobanResources struct {
	ReadOnly  [][]byte
	ReadWrite [][]byte
	Instructions   uint32
	ReadBytes      uint32
	WriteBytes     uint32
}

// SorobanTransactionData is the attachment spec §4.6/§4.7 reads
// resourceFee and the footprint from.
type SorobanTransactionData struct {
	Resources   SorobanResources
	ResourceFee int64 // stroops; arbitrary precision not needed at this layer, see feecalc for the big.Int path
}

// Envelope is the decoded shape of a transaction envelope XDR blob,
// covering exactly the fields this gateway's components read or
// write (spec §3, §4.3, §4.6, §4.7).
type Envelope struct {
	Type EnvelopeType

	SourceAccount string
	Sequence      int64
	Fee           int64
	MinTime       int64
	MaxTime       int64

	HostFunction *HostFunction // nil when the envelope carries no invoke-host-function op
	Auth         []AuthEntry

	SorobanData *SorobanTransactionData // nil when absent

	Signatures [][]byte
}

var (
	// ErrMalformed is returned by Decode when the input cannot be parsed.
	ErrMalformed = errors.New("xdrcodec: malformed input")
)

const magic = "SCG1" // soroban-channel-gateway wire format v1

// EncodeEnvelope serializes env and base64-encodes the result, the
// form every XDR string crossing the gateway's boundary takes.
func EncodeEnvelope(env *Envelope) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)

	writeByte(&buf, byte(env.Type))
	writeString(&buf, env.SourceAccount)
	writeInt64(&buf, env.Sequence)
	writeInt64(&buf, env.Fee)
	writeInt64(&buf, env.MinTime)
	writeInt64(&buf, env.MaxTime)

	if env.HostFunction != nil {
		writeByte(&buf, 1)
		writeHostFunction(&buf, env.HostFunction)
	} else {
		writeByte(&buf, 0)
	}

	writeUint32(&buf, uint32(len(env.Auth)))
	for _, a := range env.Auth {
		writeAuthEntry(&buf, a)
	}

	if env.SorobanData != nil {
		writeByte(&buf, 1)
		writeSorobanData(&buf, env.SorobanData)
	} else {
		writeByte(&buf, 0)
	}

	writeUint32(&buf, uint32(len(env.Signatures)))
	for _, sig := range env.Signatures {
		writeBytes(&buf, sig)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeEnvelope base64-decodes and parses raw into an Envelope.
// Any structural problem is reported as ErrMalformed wrapped with
// context, matching spec §4.3's "all decode failures produce
// INVALID_PARAMS" (callers map the error, this package only decodes).
func DecodeEnvelope(raw string) (*Envelope, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
	}
	r := bytes.NewReader(data)

	var hdr [4]byte
	if _, err := r.Read(hdr[:]); err != nil || string(hdr[:]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}

	env := &Envelope{}
	typeByte, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	env.Type = EnvelopeType(typeByte)

	if env.SourceAccount, err = readString(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Sequence, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Fee, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.MinTime, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.MaxTime, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	hasHF, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if hasHF == 1 {
		hf, err := readHostFunction(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		env.HostFunction = hf
	}

	authCount, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := uint32(0); i < authCount; i++ {
		a, err := readAuthEntry(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		env.Auth = append(env.Auth, a)
	}

	hasSoroban, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if hasSoroban == 1 {
		sd, err := readSorobanData(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		env.SorobanData = sd
	}

	sigCount, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := uint32(0); i < sigCount; i++ {
		b, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		env.Signatures = append(env.Signatures, b)
	}

	return env, nil
}

// DecodeAuthEntry decodes a single base64 authorization entry, as
// accepted standalone in func+auth requests (spec §4.3).
func DecodeAuthEntry(raw string) (AuthEntry, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return AuthEntry{}, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
	}
	r := bytes.NewReader(data)
	a, err := readAuthEntry(r)
	if err != nil {
		return AuthEntry{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return a, nil
}

// EncodeAuthEntry base64-encodes a single authorization entry.
func EncodeAuthEntry(a AuthEntry) string {
	var buf bytes.Buffer
	writeAuthEntry(&buf, a)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// EncodeHostFunction base64-encodes a single host-function value, the
// form the `func` field of a build-and-submit request takes.
func EncodeHostFunction(hf *HostFunction) string {
	var buf bytes.Buffer
	writeHostFunction(&buf, hf)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeHostFunction decodes a base64-encoded host-function value
// (spec §4.3's func+auth mode).
func DecodeHostFunction(raw string) (*HostFunction, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
	}
	r := bytes.NewReader(data)
	hf, err := readHostFunction(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return hf, nil
}

func writeByte(buf *bytes.Buffer, b byte)  { buf.WriteByte(b) }
func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}
func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}
func writeString(buf *bytes.Buffer, s string) { writeBytes(buf, []byte(s)) }

func writeHostFunction(buf *bytes.Buffer, hf *HostFunction) {
	writeString(buf, hf.ContractID)
	writeString(buf, hf.FuncName)
	writeUint32(buf, uint32(len(hf.Args)))
	for _, a := range hf.Args {
		writeBytes(buf, a)
	}
}

func writeAuthEntry(buf *bytes.Buffer, a AuthEntry) {
	writeByte(buf, byte(a.Credentials))
	writeString(buf, a.Address)
	writeInt64(buf, a.Nonce)
	writeUint32(buf, a.SignatureExpirationLedger)
	writeBytes(buf, a.Signature)
}

func writeSorobanData(buf *bytes.Buffer, sd *SorobanTransactionData) {
	writeUint32(buf, uint32(len(sd.Resources.ReadOnly)))
	for _, k := range sd.Resources.ReadOnly {
		writeBytes(buf, k)
	}
	writeUint32(buf, uint32(len(sd.Resources.ReadWrite)))
	for _, k := range sd.Resources.ReadWrite {
		writeBytes(buf, k)
	}
	writeUint32(buf, sd.Resources.Instructions)
	writeUint32(buf, sd.Resources.ReadBytes)
	writeUint32(buf, sd.Resources.WriteBytes)
	writeInt64(buf, sd.ResourceFee)
}

func readByte(r *bytes.Reader) (byte, error) { return r.ReadByte() }

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > uint32(r.Len()) {
		return nil, fmt.Errorf("length %d exceeds remaining input", n)
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, fmt.Errorf("short read: got %d want %d", n, len(buf))
	}
	return n, nil
}

func readHostFunction(r *bytes.Reader) (*HostFunction, error) {
	contractID, err := readString(r)
	if err != nil {
		return nil, err
	}
	funcName, err := readString(r)
	if err != nil {
		return nil, err
	}
	argCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	hf := &HostFunction{ContractID: contractID, FuncName: funcName}
	for i := uint32(0); i < argCount; i++ {
		a, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		hf.Args = append(hf.Args, a)
	}
	return hf, nil
}

func readAuthEntry(r *bytes.Reader) (AuthEntry, error) {
	kind, err := readByte(r)
	if err != nil {
		return AuthEntry{}, err
	}
	address, err := readString(r)
	if err != nil {
		return AuthEntry{}, err
	}
	nonce, err := readInt64(r)
	if err != nil {
		return AuthEntry{}, err
	}
	expLedger, err := readUint32(r)
	if err != nil {
		return AuthEntry{}, err
	}
	sig, err := readBytes(r)
	if err != nil {
		return AuthEntry{}, err
	}
	return AuthEntry{
		Credentials:               CredentialsKind(kind),
		Address:                   address,
		Nonce:                     nonce,
		SignatureExpirationLedger: expLedger,
		Signature:                 sig,
	}, nil
}

func readSorobanData(r *bytes.Reader) (*SorobanTransactionData, error) {
	sd := &SorobanTransactionData{}
	roCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < roCount; i++ {
		k, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		sd.Resources.ReadOnly = append(sd.Resources.ReadOnly, k)
	}
	rwCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < rwCount; i++ {
		k, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		sd.Resources.ReadWrite = append(sd.Resources.ReadWrite, k)
	}
	if sd.Resources.Instructions, err = readUint32(r); err != nil {
		return nil, err
	}
	if sd.Resources.ReadBytes, err = readUint32(r); err != nil {
		return nil, err
	}
	if sd.Resources.WriteBytes, err = readUint32(r); err != nil {
		return nil, err
	}
	if sd.ResourceFee, err = readInt64(r); err != nil {
		return nil, err
	}
	return sd, nil
}

// EncodeStandaloneSorobanData base64-encodes sd on its own, the shape
// a simulateTransaction response's transactionData field takes.
func EncodeStandaloneSorobanData(sd *SorobanTransactionData) string {
	var buf bytes.Buffer
	buf.WriteString(magic)
	writeSorobanData(&buf, sd)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeStandaloneSorobanData decodes a base64 SorobanTransactionData
// not wrapped in a full envelope, as returned by simulateTransaction.
func DecodeStandaloneSorobanData(raw string) (*SorobanTransactionData, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
	}
	r := bytes.NewReader(data)
	var hdr [4]byte
	if _, err := r.Read(hdr[:]); err != nil || string(hdr[:]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	return readSorobanData(r)
}

// IsReadOnly implements spec §4.6's read-only predicate: no auth entries
// and an empty read-write footprint. A nil SorobanData is treated as
// "decode failed" by the caller, not here — see simbuild.
func (env *Envelope) IsReadOnly() bool {
	if len(env.Auth) != 0 {
		return false
	}
	if env.SorobanData == nil {
		return false
	}
	return len(env.SorobanData.Resources.ReadWrite) == 0
}
