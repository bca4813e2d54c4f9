package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	err := ErrValidation("BAD_FIELD", "field is malformed")
	want := "[validation] BAD_FIELD: field is malformed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := ErrTransient("CONN_RESET", "connection reset").WithCause(errors.New("EOF"))
	if wrapped.Unwrap() == nil {
		t.Error("Unwrap() should return cause")
	}
}

func TestDomainError_Is(t *testing.T) {
	a := ErrStagePrecondition(StageTestGeneration, StageAnalysis)
	b := ErrStagePrecondition(StageExecution, StageScriptGeneration)
	if !errors.Is(a, b) {
		t.Error("precondition errors should match by category and code")
	}
	if errors.Is(a, ErrStageFailure(StageAnalysis, 3)) {
		t.Error("precondition should not match stage failure")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrTimeout("deadline exceeded"), true},
		{ErrTransient("NETWORK", "dial failed"), true},
		{ErrAgentUnavailable(RoleAnalyzer), true},
		{ErrValidation("BAD", "nope"), false},
		{ErrStageFailure(StageAnalysis, 2), false},
		{ErrCancelled("user abandoned project"), false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestGetCategory_Wrapped(t *testing.T) {
	inner := ErrAgentUnavailable(RoleTest)
	outer := fmt.Errorf("dispatching: %w", inner)
	if got := GetCategory(outer); got != ErrCatUnavailable {
		t.Errorf("GetCategory() = %s, want %s", got, ErrCatUnavailable)
	}
	if got := GetCategory(errors.New("plain")); got != ErrCatInternal {
		t.Errorf("GetCategory(plain) = %s, want internal", got)
	}
}
