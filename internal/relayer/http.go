package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RequestTimeout bounds every call HTTPRelayer makes to the hosting
// runtime, mirroring sorobanrpc.RequestTimeout.
const RequestTimeout = 10 * time.Second

// HTTPRelayer is the production Relayer, talking to the hosting
// runtime's relayer endpoints (spec §9's "useRelayer(id)" capability
// set) over plain JSON POSTs — the same client shape
// sorobanrpc.HTTPClient uses for the chain-RPC collaborator, since both
// are "POST a small JSON envelope to a fixed base URL" integrations.
type HTTPRelayer struct {
	baseURL string
	http    *http.Client
}

func NewHTTPRelayer(baseURL string) *HTTPRelayer {
	return &HTTPRelayer{baseURL: baseURL, http: &http.Client{Timeout: RequestTimeout}}
}

func (r *HTTPRelayer) Resolve(ctx context.Context, relayerID string) (*Info, error) {
	var out Info
	if err := r.call(ctx, "/relayers/"+relayerID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRelayer) SignTransaction(ctx context.Context, relayerID, transactionXDR string) ([]byte, error) {
	var out struct {
		Signature []byte `json:"signature"`
	}
	body := map[string]string{"transactionXdr": transactionXDR}
	if err := r.call(ctx, "/relayers/"+relayerID+"/sign", body, &out); err != nil {
		return nil, err
	}
	return out.Signature, nil
}

func (r *HTTPRelayer) SendTransaction(ctx context.Context, in SendTransactionInput) (*SubmissionHandle, error) {
	var out SubmissionHandle
	if err := r.call(ctx, "/transactions/send", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRelayer) PollStatus(ctx context.Context, handle SubmissionHandle) (*SubmissionStatus, error) {
	var out SubmissionStatus
	if err := r.call(ctx, "/transactions/"+handle.ID+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRelayer) call(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("relayer: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("relayer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("relayer: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("relayer: hosting runtime returned %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
