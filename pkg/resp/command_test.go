package resp

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// ============================================================================
// Frame parsing
// ============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
		n     int
	}{
		{"simple", "*1\r\n$4\r\nPING\r\n", []string{"PING"}, 14},
		{"multiple args", "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n", []string{"SET", "k", "v"}, 27},
		{"empty bulk", "*2\r\n$4\r\nECHO\r\n$0\r\n\r\n", []string{"ECHO", ""}, 20},
		{"binary payload", "*2\r\n$4\r\nECHO\r\n$4\r\na\r\nb\r\n", []string{"ECHO", "a\r\nb"}, 24},
		{"trailing bytes untouched", "*1\r\n$4\r\nPING\r\n*1\r\n", []string{"PING"}, 14},
		{"empty array", "*0\r\n", nil, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := ParseCommand([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if n != tt.n {
				t.Errorf("consumed = %d, want %d", n, tt.n)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCommand_IncompleteAtEveryTruncation(t *testing.T) {
	frame := EncodeCommand("XADD", "stream", "0-1", "field", "value with spaces")

	for i := 0; i < len(frame); i++ {
		args, n, err := ParseCommand(frame[:i])
		if err != nil {
			t.Fatalf("prefix %d: unexpected error %v", i, err)
		}
		if n != 0 || args != nil {
			t.Fatalf("prefix %d: got (%q, %d), want incomplete", i, args, n)
		}
	}

	args, n, err := ParseCommand(frame)
	if err != nil || n != len(frame) {
		t.Fatalf("full frame: n=%d err=%v", n, err)
	}
	if !reflect.DeepEqual(args, []string{"XADD", "stream", "0-1", "field", "value with spaces"}) {
		t.Errorf("args = %q", args)
	}
}

func TestParseCommand_ByteByByteMatchesWhole(t *testing.T) {
	var stream []byte
	frames := [][]string{
		{"SET", "a", "1"},
		{"RPUSH", "list", "x", "y", "z"},
		{"PING"},
	}
	for _, f := range frames {
		stream = append(stream, EncodeCommand(f...)...)
	}

	var buf []byte
	var got [][]string
	for _, b := range stream {
		buf = append(buf, b)
		for {
			args, n, err := ParseCommand(buf)
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if n == 0 {
				break
			}
			got = append(got, args)
			buf = buf[n:]
		}
	}

	if !reflect.DeepEqual(got, frames) {
		t.Errorf("byte-by-byte frames = %q, want %q", got, frames)
	}
	if len(buf) != 0 {
		t.Errorf("leftover = %q, want empty", buf)
	}
}

func TestParseCommand_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"wrong prefix", "$4\r\nPING\r\n", ErrProtocol},
		{"non numeric count", "*x\r\n", ErrProtocol},
		{"non numeric bulk length", "*1\r\n$y\r\nPING\r\n", ErrProtocol},
		{"element not bulk", "*1\r\n+PING\r\n", ErrProtocol},
		{"negative bulk length", "*1\r\n$-5\r\n", ErrProtocol},
		{"bad terminator", "*1\r\n$4\r\nPINGxx", ErrProtocol},
		{"header too long", "*" + strings.Repeat("1", 40), ErrProtocol},
		{"array too large", "*2000000\r\n", ErrLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseCommand([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseCommand(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParser_Limits(t *testing.T) {
	p := Parser{MaxArrayLen: 2, MaxBulkLen: 3}

	if _, _, err := p.Parse([]byte("*3\r\n")); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("array limit: error = %v", err)
	}
	if _, _, err := p.Parse([]byte("*1\r\n$4\r\n")); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("bulk limit: error = %v", err)
	}
}

func TestParser_Inline(t *testing.T) {
	p := Parser{AllowInline: true}

	tests := []struct {
		input string
		want  []string
		n     int
	}{
		{"PING\r\n", []string{"PING"}, 6},
		{"SET  k   v\n", []string{"SET", "k", "v"}, 11},
		{"\r\n", nil, 2},
		{"PING", nil, 0},
	}

	for _, tt := range tests {
		got, n, err := p.Parse([]byte(tt.input))
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.input, err)
		}
		if n != tt.n || !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Parse(%q) = (%q, %d), want (%q, %d)", tt.input, got, n, tt.want, tt.n)
		}
	}

	var strict Parser
	if _, _, err := strict.Parse([]byte("PING\r\n")); !errors.Is(err, ErrProtocol) {
		t.Errorf("strict parser accepted inline command, err = %v", err)
	}
}
