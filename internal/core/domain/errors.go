package domain

import (
	"errors"
	"strings"
)

// DomainError is an error that maps onto a single-line RESP error reply.
//
// Code is the reply prefix ("ERR", "WRONGTYPE", "EXECABORT", ...), Message the
// text that follows it.
type DomainError struct {
	Code    string // RESP error prefix
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface and returns the wire text without the
// leading '-'.
func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Message != "" {
		b.WriteByte(' ')
		b.WriteString(e.Message)
	}
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches another DomainError with the same code and message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewErr creates a DomainError with the generic ERR prefix.
func NewErr(message string) *DomainError {
	return NewDomainError(CodeErr, message)
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Reply prefixes.
const (
	CodeErr       = "ERR"
	CodeWrongType = "WRONGTYPE"
	CodeExecAbort = "EXECABORT"
	CodeReadOnly  = "READONLY"
)

// ============================================================================
// Value Errors
// ============================================================================

var (
	// ErrWrongType indicates an operation against a key holding another kind.
	ErrWrongType = NewDomainError(CodeWrongType, "Operation against a key holding the wrong kind of value")

	// ErrNotInteger indicates a value or argument that is not a 64-bit integer.
	ErrNotInteger = NewErr("value is not an integer or out of range")

	// ErrOverflow indicates an increment would overflow.
	ErrOverflow = NewErr("increment or decrement would overflow")

	// ErrSyntax indicates an unrecognised option combination.
	ErrSyntax = NewErr("syntax error")

	// ErrInvalidExpire indicates a non-positive or overflowing expire time.
	ErrInvalidExpire = NewErr("invalid expire time in 'set' command")

	// ErrTimeoutInvalid indicates a blocking timeout that is negative or not a number.
	ErrTimeoutInvalid = NewErr("timeout is not an integer or out of range")

	// ErrTimeoutNegative indicates a negative blocking timeout.
	ErrTimeoutNegative = NewErr("timeout is negative")
)

// ============================================================================
// Stream Errors
// ============================================================================

var (
	// ErrStreamIDZero indicates an explicit 0-0 ID in XADD.
	ErrStreamIDZero = NewErr("The ID specified in XADD must be greater than 0-0")

	// ErrStreamIDTooSmall indicates an ID not greater than the stream top item.
	ErrStreamIDTooSmall = NewErr("The ID specified in XADD is equal or smaller than the target stream top item")

	// ErrStreamIDInvalid indicates an ID that cannot be parsed.
	ErrStreamIDInvalid = NewErr("Invalid stream ID specified as stream command argument")

	// ErrXReadUnbalanced indicates a STREAMS clause with mismatched keys and IDs.
	ErrXReadUnbalanced = NewErr("Unbalanced 'xread' list of streams: for each stream key an ID or '$' must be specified.")
)

// ============================================================================
// Transaction Errors
// ============================================================================

var (
	// ErrExecWithoutMulti indicates EXEC outside a transaction.
	ErrExecWithoutMulti = NewErr("EXEC without MULTI")

	// ErrDiscardWithoutMulti indicates DISCARD outside a transaction.
	ErrDiscardWithoutMulti = NewErr("DISCARD without MULTI")

	// ErrNestedMulti indicates MULTI inside a transaction.
	ErrNestedMulti = NewErr("MULTI calls can not be nested")

	// ErrWatchInMulti indicates WATCH inside a transaction.
	ErrWatchInMulti = NewErr("WATCH inside MULTI is not allowed")

	// ErrExecAbort indicates EXEC refused because a queued command was invalid.
	ErrExecAbort = NewDomainError(CodeExecAbort, "Transaction discarded because of previous errors.")
)

// ============================================================================
// Server Errors
// ============================================================================

var (
	// ErrReadOnlyReplica indicates a client write against a read-only replica.
	ErrReadOnlyReplica = NewDomainError(CodeReadOnly, "You can't write against a read only replica.")

	// ErrInternal indicates an unexpected fault during command execution.
	ErrInternal = NewErr("internal error")

	// ErrRateLimited indicates the client exceeded its command rate.
	ErrRateLimited = NewErr("rate limit exceeded")

	// ErrNoSuchKey indicates a missing key where one is required.
	ErrNoSuchKey = NewErr("no such key")
)
