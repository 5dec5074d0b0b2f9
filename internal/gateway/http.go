package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/soroban-channel-gateway/internal/gwerrors"
)

// envelope is the wire shape every response takes (spec §6: "{ success,
// data, error?, metadata? }").
type envelope struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	Metadata any    `json:"metadata,omitempty"`
}

// errorData is the failure-shape `data` payload (spec §6: "structured
// data.code and data.details").
type errorData struct {
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// ServeHTTP implements http.Handler, decoding a request body's
// `params` object into RawParams and writing the spec §6 response
// envelope. This is the one entry point the hosting runtime's HTTP
// front door calls into; everything else in this package is pure
// request/response logic with no HTTP awareness.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Params RawParams `json:"params"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, gwerrors.Wrap(gwerrors.CodeInvalidPayload, err, "malformed request body"))
		return
	}

	result, err := h.Handle(r.Context(), body.Params, r.Header)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: result})
}

// Healthz reports liveness; it touches no collaborator so it stays
// fast under the hosting runtime's own health checks.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

func writeError(w http.ResponseWriter, err error) {
	ge, ok := gwerrors.As(err)
	if !ok {
		log.Error("gateway: unstructured error reached the HTTP boundary", "err", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: "internal error"})
		return
	}
	writeJSON(w, ge.Status, envelope{
		Success: false,
		Error:   ge.Message,
		Data:    errorData{Code: string(ge.Code), Details: ge.Details},
	})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("gateway: failed to encode response", "err", err)
	}
}
