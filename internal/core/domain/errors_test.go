package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "generic error",
			err:      NewErr("syntax error"),
			expected: "ERR syntax error",
		},
		{
			name:     "custom prefix",
			err:      ErrWrongType,
			expected: "WRONGTYPE Operation against a key holding the wrong kind of value",
		},
		{
			name:     "with details",
			err:      NewErr("unknown command").WithDetails("'FOO'"),
			expected: "ERR unknown command: 'FOO'",
		},
		{
			name:     "code only",
			err:      NewDomainError("NOPROTO", ""),
			expected: "NOPROTO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	if !errors.Is(NewErr("syntax error"), ErrSyntax) {
		t.Error("errors.Is should match on code and message")
	}
	if errors.Is(ErrSyntax, ErrNotInteger) {
		t.Error("errors.Is should not match different messages with the same code")
	}
	if errors.Is(ErrSyntax, fmt.Errorf("syntax error")) {
		t.Error("errors.Is should not match a non-DomainError")
	}

	wrapped := fmt.Errorf("incr: %w", ErrNotInteger)
	if !errors.Is(wrapped, ErrNotInteger) {
		t.Error("errors.Is should see through fmt.Errorf wrapping")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := ErrInternal.WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if ErrInternal.Cause != nil {
		t.Error("WithCause must not mutate the sentinel")
	}
}

func TestIsDomainErrorAndCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrExecAbort)

	if !IsDomainError(err, "") {
		t.Error("IsDomainError(err, \"\") = false, want true")
	}
	if !IsDomainError(err, CodeExecAbort) {
		t.Error("IsDomainError(err, EXECABORT) = false, want true")
	}
	if IsDomainError(err, CodeErr) {
		t.Error("IsDomainError(err, ERR) = true, want false")
	}
	if got := GetErrorCode(err); got != CodeExecAbort {
		t.Errorf("GetErrorCode() = %q, want %q", got, CodeExecAbort)
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Errorf("GetErrorCode(plain) = %q, want empty", got)
	}
}
