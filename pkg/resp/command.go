package resp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Protocol limits.
const (
	// MaxArrayLen limits the number of elements in a command frame.
	MaxArrayLen = 1024 * 1024

	// MaxBulkLen limits the size of a single bulk string (512MB).
	MaxBulkLen = 512 * 1024 * 1024

	// MaxInlineLen limits the length of an inline command line.
	MaxInlineLen = 64 * 1024

	// maxHeaderLen bounds "*<n>\r\n" and "$<n>\r\n" lines.
	maxHeaderLen = 32
)

var (
	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

var crlf = []byte("\r\n")

// Parser decodes command frames: arrays of bulk strings.
type Parser struct {
	// AllowInline accepts space separated inline commands ("PING\r\n") in
	// addition to arrays.
	AllowInline bool

	// MaxArrayLen and MaxBulkLen override the package limits when positive.
	MaxArrayLen int
	MaxBulkLen  int
}

// ParseCommand decodes one command frame from buf using strict array
// framing.
func ParseCommand(buf []byte) (args []string, n int, err error) {
	var p Parser
	return p.Parse(buf)
}

// Parse decodes one command frame from the front of buf.
//
// It returns the arguments and the number of bytes consumed. When buf holds
// only part of a frame it returns n == 0 and a nil error. A frame that
// decodes to no arguments (an empty inline line or "*0\r\n") returns nil args
// with n > 0. Malformed headers fail with ErrProtocol or ErrLimitExceeded.
func (p *Parser) Parse(buf []byte) (args []string, n int, err error) {
	if len(buf) == 0 {
		return nil, 0, nil
	}
	if buf[0] != '*' {
		if p.AllowInline {
			return parseInline(buf)
		}
		return nil, 0, fmt.Errorf("%w: expected '*', got %q", ErrProtocol, buf[0])
	}

	count, pos, err := parseHeader(buf, 0)
	if err != nil || pos == 0 {
		return nil, 0, err
	}
	if count <= 0 {
		return nil, pos, nil
	}
	if count > p.maxArrayLen() {
		return nil, 0, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, count, p.maxArrayLen())
	}

	args = make([]string, 0, min(count, 64))
	for i := 0; i < count; i++ {
		if pos >= len(buf) {
			return nil, 0, nil
		}
		if buf[pos] != '$' {
			return nil, 0, fmt.Errorf("%w: expected '$', got %q", ErrProtocol, buf[pos])
		}
		size, next, err := parseHeader(buf, pos)
		if err != nil || next == 0 {
			return nil, 0, err
		}
		if size < 0 {
			return nil, 0, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
		}
		if size > p.maxBulkLen() {
			return nil, 0, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, size, p.maxBulkLen())
		}
		end := next + size
		if end+2 > len(buf) {
			return nil, 0, nil
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return nil, 0, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
		}
		args = append(args, string(buf[next:end]))
		pos = end + 2
	}
	return args, pos, nil
}

func (p *Parser) maxArrayLen() int {
	if p.MaxArrayLen > 0 {
		return p.MaxArrayLen
	}
	return MaxArrayLen
}

func (p *Parser) maxBulkLen() int {
	if p.MaxBulkLen > 0 {
		return p.MaxBulkLen
	}
	return MaxBulkLen
}

// parseHeader reads "<prefix><int>\r\n" starting at pos. next == 0 with a
// nil error means the line is not complete yet.
func parseHeader(buf []byte, pos int) (value, next int, err error) {
	idx := bytes.Index(buf[pos:], crlf)
	if idx < 0 {
		if len(buf)-pos > maxHeaderLen {
			return 0, 0, fmt.Errorf("%w: header line too long", ErrProtocol)
		}
		return 0, 0, nil
	}
	if idx > maxHeaderLen {
		return 0, 0, fmt.Errorf("%w: header line too long", ErrProtocol)
	}
	v, err := strconv.Atoi(string(buf[pos+1 : pos+idx]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, buf[pos+1:pos+idx])
	}
	return v, pos + idx + 2, nil
}

func parseInline(buf []byte) ([]string, int, error) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		if len(buf) > MaxInlineLen {
			return nil, 0, fmt.Errorf("%w: inline line length exceeds limit %d", ErrLimitExceeded, MaxInlineLen)
		}
		return nil, 0, nil
	}
	line := bytes.TrimRight(buf[:idx], "\r")
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, idx + 1, nil
	}
	args := make([]string, len(fields))
	for i, f := range fields {
		args[i] = string(f)
	}
	return args, idx + 1, nil
}

// EncodeCommand renders args as a command frame.
func EncodeCommand(args ...string) []byte {
	return AppendBulkArray(nil, args)
}
