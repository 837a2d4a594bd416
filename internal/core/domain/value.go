package domain

import "time"

// Kind identifies the type of a stored value.
type Kind uint8

const (
	KindNone Kind = iota
	KindString
	KindList
	KindStream
)

// String returns the name TYPE reports for the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindStream:
		return "stream"
	default:
		return "none"
	}
}

// Value is the typed payload stored under one key.
//
// Exactly one of Str, List or Stream is meaningful, selected by Kind.
// A zero ExpiresAt means the value never expires.
type Value struct {
	Kind      Kind
	Str       string
	List      *List
	Stream    *Stream
	ExpiresAt time.Time
}

// NewString returns a string value without expiry.
func NewString(s string) *Value {
	return &Value{Kind: KindString, Str: s}
}

// NewListValue returns a list value holding l.
func NewListValue(l *List) *Value {
	return &Value{Kind: KindList, List: l}
}

// NewStreamValue returns a stream value holding s.
func NewStreamValue(s *Stream) *Value {
	return &Value{Kind: KindStream, Stream: s}
}

// HasExpiry reports whether the value carries an expiry time.
func (v *Value) HasExpiry() bool {
	return !v.ExpiresAt.IsZero()
}

// IsExpired reports whether the value has expired at now.
func (v *Value) IsExpired(now time.Time) bool {
	return v.HasExpiry() && !now.Before(v.ExpiresAt)
}

// WithExpiry returns a shallow copy of v with the given expiry.
func (v *Value) WithExpiry(at time.Time) *Value {
	c := *v
	c.ExpiresAt = at
	return &c
}
