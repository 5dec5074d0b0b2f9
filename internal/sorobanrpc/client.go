// Package sorobanrpc is the gateway's chain-RPC collaborator (spec
// §9: "the chain-RPC client... abstractable behind interfaces with
// small, named capabilities"). It speaks JSON-RPC 2.0 to a Soroban RPC
// provider, the same way the teacher's miner/preconf_checker.go talks
// to an OP node: a plain *http.Client with a fixed timeout, POSTing a
// JSON-RPC envelope and unmarshaling a Result/Error response shape.
package sorobanrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RequestTimeout bounds every call this client makes, mirroring the
// teacher's preconfChecker.RequestTimeout.
const RequestTimeout = 10 * time.Second

// requestsPerSecond caps outbound call rate to the RPC provider. Most
// Soroban RPC providers enforce their own per-key rate limit; this
// keeps a single gateway process from tripping it under a burst of
// concurrent requests.
const requestsPerSecond = 50

// Client is the gateway's seam onto a Soroban RPC endpoint. Production
// code uses HTTPClient; tests substitute a fake implementing the same
// small interface.
type Client interface {
	SimulateTransaction(ctx context.Context, envelopeXDR string) (*SimulateTransactionResult, error)
	GetLedgerEntries(ctx context.Context, keysXDR []string) (*GetLedgerEntriesResult, error)
}

// HTTPClient is the production Client, POSTing JSON-RPC 2.0 requests.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: RequestTimeout},
		limiter:  rate.NewLimiter(requestsPerSecond, requestsPerSecond),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// RPCError is a JSON-RPC 2.0 `error` object returned by the provider
// itself (as opposed to a transport-level failure dialing or reading
// from it). Callers use errors.As to distinguish the two: simbuild's
// error classification (spec §4.6) maps this to
// gwerrors.CodeSimulationRPCFailure and anything else to
// gwerrors.CodeSimulationNetworkError.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// SimulateTransactionResult is the parsed shape of a simulateTransaction
// response, covering exactly the fields spec §4.6 inspects.
type SimulateTransactionResult struct {
	Error        string             `json:"error,omitempty"`
	LatestLedger int64              `json:"latestLedger"`
	Results      []SimulateHostFnResult `json:"results,omitempty"`
	MinResourceFee string           `json:"minResourceFee,omitempty"`
	TransactionData string         `json:"transactionData,omitempty"` // base64 SorobanTransactionData
	EventLog     []string           `json:"events,omitempty"`
}

type SimulateHostFnResult struct {
	XDR  string   `json:"xdr"`
	Auth []string `json:"auth,omitempty"`
}

// GetLedgerEntriesResult is the parsed shape of a getLedgerEntries
// response (spec §4.5: chain fetch of a single account entry).
type GetLedgerEntriesResult struct {
	Entries []LedgerEntry `json:"entries"`
}

type LedgerEntry struct {
	Key  string `json:"key"`  // base64 ledger key
	XDR  string `json:"xdr"`  // base64 ledger entry
}

func (c *HTTPClient) SimulateTransaction(ctx context.Context, envelopeXDR string) (*SimulateTransactionResult, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "simulateTransaction",
		Params: map[string]any{
			"transaction": envelopeXDR,
			"authMode":    "enforce",
		},
	}
	var result SimulateTransactionResult
	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) GetLedgerEntries(ctx context.Context, keysXDR []string) (*GetLedgerEntriesResult, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getLedgerEntries",
		Params: map[string]any{
			"keys": keysXDR,
		},
	}
	var result GetLedgerEntriesResult
	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) call(ctx context.Context, req rpcRequest, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sorobanrpc: rate limit wait: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("sorobanrpc: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sorobanrpc: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sorobanrpc: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sorobanrpc: read response: %w", err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("sorobanrpc: unmarshal envelope: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("sorobanrpc: unmarshal result: %w", err)
	}
	return nil
}
