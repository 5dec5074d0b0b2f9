package gwerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew_AssignsCanonicalStatus(t *testing.T) {
	tests := []struct {
		code       Code
		wantStatus int
	}{
		{CodeInvalidParams, 400},
		{CodeUnauthorized, 401},
		{CodeAccountNotFound, 404},
		{CodeLockedConflict, 409},
		{CodeFeeLimitExceeded, 429},
		{CodeConfigMissing, 500},
		{CodeRelayerUnavailable, 503},
		{CodeWaitTimeout, 504},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			e := New(tt.code, "boom")
			if e.Status != tt.wantStatus {
				t.Errorf("expected status %d for %s, got %d", tt.wantStatus, tt.code, e.Status)
			}
		})
	}
}

func TestError_ErrorMessage(t *testing.T) {
	e := New(CodeInvalidXDR, "bad envelope")
	if e.Error() != "bad envelope" {
		t.Errorf("expected message as Error(), got %q", e.Error())
	}

	noMsg := New(CodeInvalidXDR, "")
	if noMsg.Error() != string(CodeInvalidXDR) {
		t.Errorf("expected code fallback as Error(), got %q", noMsg.Error())
	}
}

func TestWrap_PreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	e := Wrap(CodeKVError, cause, "store unavailable")
	if !errors.Is(e, cause) {
		t.Errorf("expected errors.Is to see through Wrap to the cause")
	}
}

func TestAs_FindsWrappedStructuredError(t *testing.T) {
	inner := New(CodeAccountNotFound, "no such account")
	wrapped := fmt.Errorf("outer context: %w", inner)

	ge, ok := As(wrapped)
	if !ok || ge.Code != CodeAccountNotFound {
		t.Fatalf("expected As to find the structured error, got %v, %v", ge, ok)
	}

	if _, ok := As(errors.New("unrelated")); ok {
		t.Fatalf("expected As to report false for a non-structured error")
	}
}

func TestIs_MatchesOnCode(t *testing.T) {
	e := New(CodeWaitTimeout, "timed out")
	if !Is(e, CodeWaitTimeout) {
		t.Errorf("expected Is to match on code")
	}
	if Is(e, CodeOnchainFailed) {
		t.Errorf("expected Is to reject a mismatched code")
	}
}

func TestWithDetails_AttachesStructuredData(t *testing.T) {
	e := New(CodeLockedConflict, "locked").WithDetails(map[string]any{"locked": []string{"p1"}})
	if e.Details == nil {
		t.Fatal("expected Details to be set")
	}
	locked, ok := e.Details["locked"].([]string)
	if !ok || len(locked) != 1 || locked[0] != "p1" {
		t.Errorf("expected locked detail [p1], got %v", e.Details["locked"])
	}
}

func TestErrorf_FormatsMessage(t *testing.T) {
	e := Errorf(CodeInvalidAction, "unknown action %q", "frobnicate")
	if e.Message != `unknown action "frobnicate"` {
		t.Errorf("unexpected formatted message: %q", e.Message)
	}
}

func TestNew_UnknownCodeDefaultsTo500(t *testing.T) {
	e := New(Code("SOME_FUTURE_CODE"), "unmapped")
	if e.Status != 500 {
		t.Errorf("expected unmapped code to default to 500, got %d", e.Status)
	}
}
