package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/sorobanrpc"
	"github.com/mantlenetworkio/soroban-channel-gateway/internal/xdrcodec"
)

func TestServeHTTP_RejectsUnknownTopLevelFields(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeRPC{}, &fakeRelayer{})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"params":{"xdr":"abc"},"bogus":true}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp envelope
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected failure for an unknown top-level field, got %+v", resp)
	}
}

func TestServeHTTP_RejectsUnknownParamsFields(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeRPC{}, &fakeRelayer{})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"params":{"xdr":"abc","extra":"nope"}}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp envelope
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected failure for an unknown params field, got %+v", resp)
	}
}

func TestServeHTTP_RejectsNonPost(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeRPC{}, &fakeRelayer{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestServeHTTP_ReadOnlySucceeds(t *testing.T) {
	readOnlyData := xdrcodec.EncodeStandaloneSorobanData(&xdrcodec.SorobanTransactionData{
		Resources: xdrcodec.SorobanResources{ReadOnly: [][]byte{[]byte("k1")}},
	})
	rpc := &fakeRPC{simResult: &sorobanrpc.SimulateTransactionResult{
		Results:         []sorobanrpc.SimulateHostFnResult{{XDR: "return-xdr"}},
		TransactionData: readOnlyData,
	}}
	h, _, _ := newTestHandler(t, rpc, &fakeRelayer{})

	hf := &xdrcodec.HostFunction{ContractID: "C1", FuncName: "balance"}
	body := `{"params":{"func":"` + xdrcodec.EncodeHostFunction(hf) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp envelope
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
}

func TestHealthz_ReportsOK(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeRPC{}, &fakeRelayer{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.Healthz(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp envelope
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
}
