package resp

import (
	"strconv"
	"strings"
)

// Value is a RESP2 message.
type Value interface {
	AppendRESP(dst []byte) []byte
}

// SimpleString renders as "+<text>\r\n".
type SimpleString string

// Error renders as "-<text>\r\n". The text includes the error prefix, e.g.
// "ERR syntax error".
type Error string

// Integer renders as ":<n>\r\n".
type Integer int64

// BulkString renders as "$<len>\r\n<bytes>\r\n".
type BulkString string

// Array renders as "*<n>\r\n" followed by each element.
type Array []Value

// Raw is an already encoded message written verbatim.
type Raw []byte

type null struct{ array bool }

// Null markers.
var (
	NullBulk  Value = null{}
	NullArray Value = null{array: true}
)

// OK is the "+OK" reply.
const OK = SimpleString("OK")

func (s SimpleString) AppendRESP(dst []byte) []byte { return AppendSimpleString(dst, string(s)) }
func (e Error) AppendRESP(dst []byte) []byte        { return AppendError(dst, string(e)) }
func (i Integer) AppendRESP(dst []byte) []byte      { return AppendInteger(dst, int64(i)) }
func (b BulkString) AppendRESP(dst []byte) []byte   { return AppendBulkString(dst, string(b)) }
func (r Raw) AppendRESP(dst []byte) []byte          { return append(dst, r...) }

func (a Array) AppendRESP(dst []byte) []byte {
	dst = AppendArrayHeader(dst, len(a))
	for _, v := range a {
		dst = v.AppendRESP(dst)
	}
	return dst
}

func (n null) AppendRESP(dst []byte) []byte {
	if n.array {
		return append(dst, "*-1\r\n"...)
	}
	return AppendNullBulk(dst)
}

// Encode renders v into a new byte slice.
func Encode(v Value) []byte {
	return v.AppendRESP(nil)
}

// BulkStrings builds an array of bulk strings.
func BulkStrings(ss ...string) Array {
	out := make(Array, len(ss))
	for i, s := range ss {
		out[i] = BulkString(s)
	}
	return out
}

// IsNull reports whether v is a null bulk or null array.
func IsNull(v Value) bool {
	_, ok := v.(null)
	return ok
}

// AppendSimpleString appends "+<s>\r\n".
func AppendSimpleString(dst []byte, s string) []byte {
	dst = append(dst, '+')
	dst = append(dst, stripCRLF(s)...)
	return append(dst, '\r', '\n')
}

// AppendError appends "-<msg>\r\n". Embedded CR or LF become spaces.
func AppendError(dst []byte, msg string) []byte {
	dst = append(dst, '-')
	dst = append(dst, stripCRLF(msg)...)
	return append(dst, '\r', '\n')
}

// AppendInteger appends ":<n>\r\n".
func AppendInteger(dst []byte, n int64) []byte {
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, '\r', '\n')
}

// AppendBulkString appends "$<len>\r\n<s>\r\n".
func AppendBulkString(dst []byte, s string) []byte {
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, s...)
	return append(dst, '\r', '\n')
}

// AppendBulk appends b as a bulk string; nil encodes as the null bulk.
func AppendBulk(dst []byte, b []byte) []byte {
	if b == nil {
		return AppendNullBulk(dst)
	}
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, b...)
	return append(dst, '\r', '\n')
}

// AppendNullBulk appends "$-1\r\n".
func AppendNullBulk(dst []byte) []byte {
	return append(dst, "$-1\r\n"...)
}

// AppendArrayHeader appends "*<n>\r\n".
func AppendArrayHeader(dst []byte, n int) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(n), 10)
	return append(dst, '\r', '\n')
}

// AppendBulkArray appends an array of bulk strings.
func AppendBulkArray(dst []byte, items []string) []byte {
	dst = AppendArrayHeader(dst, len(items))
	for _, s := range items {
		dst = AppendBulkString(dst, s)
	}
	return dst
}

// AppendPayload appends "$<len>\r\n<b>" without a trailing CRLF, the framing
// used for snapshot transfer during full resynchronization.
func AppendPayload(dst []byte, b []byte) []byte {
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, '\r', '\n')
	return append(dst, b...)
}

func stripCRLF(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
