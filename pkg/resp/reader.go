package resp

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// maxDepth bounds array nesting in replies.
const maxDepth = 32

// ParseValue decodes one reply of any RESP2 type from the front of buf.
// It follows the same incomplete-input convention as Parser.Parse.
func ParseValue(buf []byte) (Value, int, error) {
	return parseValue(buf, 0, 0)
}

func parseValue(buf []byte, pos, depth int) (Value, int, error) {
	if pos >= len(buf) {
		return nil, 0, nil
	}
	if depth > maxDepth {
		return nil, 0, fmt.Errorf("%w: nesting too deep", ErrProtocol)
	}

	switch buf[pos] {
	case '+', '-', ':':
		idx := bytes.Index(buf[pos:], crlf)
		if idx < 0 {
			if len(buf)-pos > MaxInlineLen {
				return nil, 0, fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, MaxInlineLen)
			}
			return nil, 0, nil
		}
		line := string(buf[pos+1 : pos+idx])
		next := pos + idx + 2
		switch buf[pos] {
		case '+':
			return SimpleString(line), next, nil
		case '-':
			return Error(line), next, nil
		default:
			n, err := strconv.ParseInt(line, 10, 64)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: invalid integer %q", ErrProtocol, line)
			}
			return Integer(n), next, nil
		}

	case '$':
		size, next, err := parseHeader(buf, pos)
		if err != nil || next == 0 {
			return nil, 0, err
		}
		if size == -1 {
			return NullBulk, next, nil
		}
		if size < 0 || size > MaxBulkLen {
			return nil, 0, fmt.Errorf("%w: invalid bulk length %d", ErrProtocol, size)
		}
		end := next + size
		if end+2 > len(buf) {
			return nil, 0, nil
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return nil, 0, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
		}
		return BulkString(buf[next:end]), end + 2, nil

	case '*':
		count, next, err := parseHeader(buf, pos)
		if err != nil || next == 0 {
			return nil, 0, err
		}
		if count == -1 {
			return NullArray, next, nil
		}
		if count < 0 || count > MaxArrayLen {
			return nil, 0, fmt.Errorf("%w: invalid array length %d", ErrProtocol, count)
		}
		arr := make(Array, 0, min(count, 64))
		for i := 0; i < count; i++ {
			v, end, err := parseValue(buf, next, depth+1)
			if err != nil || end == 0 {
				return nil, 0, err
			}
			arr = append(arr, v)
			next = end
		}
		return arr, next, nil

	default:
		return nil, 0, fmt.Errorf("%w: unexpected type byte %q", ErrProtocol, buf[pos])
	}
}

// ParsePayload decodes "$<len>\r\n<len bytes>" with no trailing CRLF.
func ParsePayload(buf []byte) ([]byte, int, error) {
	if len(buf) == 0 {
		return nil, 0, nil
	}
	if buf[0] != '$' {
		return nil, 0, fmt.Errorf("%w: expected '$', got %q", ErrProtocol, buf[0])
	}
	size, next, err := parseHeader(buf, 0)
	if err != nil || next == 0 {
		return nil, 0, err
	}
	if size < 0 || size > MaxBulkLen {
		return nil, 0, fmt.Errorf("%w: invalid payload length %d", ErrProtocol, size)
	}
	if next+size > len(buf) {
		return nil, 0, nil
	}
	out := make([]byte, size)
	copy(out, buf[next:next+size])
	return out, next + size, nil
}

// Reader decodes replies from a byte stream, buffering partial input.
type Reader struct {
	rd  io.Reader
	buf []byte
	tmp []byte
}

// NewReader returns a Reader over rd.
func NewReader(rd io.Reader) *Reader {
	return &Reader{rd: rd, tmp: make([]byte, 16*1024)}
}

// ReadValue returns the next complete reply.
func (r *Reader) ReadValue() (Value, error) {
	for {
		v, n, err := ParseValue(r.buf)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			r.consume(n)
			return v, nil
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

// ReadPayload returns the next length-prefixed payload without trailing CRLF.
func (r *Reader) ReadPayload() ([]byte, error) {
	for {
		p, n, err := ParsePayload(r.buf)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			r.consume(n)
			return p, nil
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

// Buffered returns bytes read from the stream but not consumed yet.
func (r *Reader) Buffered() []byte {
	return r.buf
}

func (r *Reader) fill() error {
	n, err := r.rd.Read(r.tmp)
	if n > 0 {
		r.buf = append(r.buf, r.tmp[:n]...)
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

func (r *Reader) consume(n int) {
	rest := len(r.buf) - n
	copy(r.buf, r.buf[n:])
	r.buf = r.buf[:rest]
}
