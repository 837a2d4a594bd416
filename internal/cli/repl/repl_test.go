package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/yndnr/respkv/pkg/resp"
)

type fakeSession struct {
	calls   [][]string
	replies map[string]resp.Value
	pushed  []resp.Value
	doErr   error
}

func (f *fakeSession) Do(ctx context.Context, args ...string) (resp.Value, error) {
	f.calls = append(f.calls, args)
	if f.doErr != nil {
		return nil, f.doErr
	}
	if v, ok := f.replies[strings.ToUpper(args[0])]; ok {
		return v, nil
	}
	return resp.Error("ERR unknown command"), nil
}

func (f *fakeSession) Receive(ctx context.Context) (resp.Value, error) {
	if len(f.pushed) == 0 {
		return nil, io.EOF
	}
	v := f.pushed[0]
	f.pushed = f.pushed[1:]
	return v, nil
}

func run(t *testing.T, s Session, input string, raw bool) string {
	t.Helper()
	var out bytes.Buffer
	r := New(s, Config{In: strings.NewReader(input), Out: &out, Prompt: "> ", Raw: raw})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	return out.String()
}

func TestREPL_Exit(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCalls int
	}{
		{"exit command", "exit\nPING\n", 0},
		{"quit sends QUIT", "quit\nPING\n", 1},
		{"EOF", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{replies: map[string]resp.Value{"QUIT": resp.OK, "PING": resp.SimpleString("PONG")}}
			run(t, s, tt.input, false)
			if len(s.calls) != tt.wantCalls {
				t.Errorf("calls = %v", s.calls)
			}
		})
	}
}

func TestREPL_ExecutesAndPrints(t *testing.T) {
	s := &fakeSession{replies: map[string]resp.Value{
		"SET":    resp.OK,
		"LRANGE": resp.BulkStrings("a", "b"),
	}}
	out := run(t, s, "\n  \nSET k \"v 1\"\nLRANGE l 0 -1\nBOGUS\n", false)

	wantCalls := [][]string{{"SET", "k", "v 1"}, {"LRANGE", "l", "0", "-1"}, {"BOGUS"}}
	if !reflect.DeepEqual(s.calls, wantCalls) {
		t.Errorf("calls = %q, want %q", s.calls, wantCalls)
	}
	for _, want := range []string{"> OK\n", "1) \"a\"\n2) \"b\"\n", "(error) ERR unknown command\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestREPL_Raw(t *testing.T) {
	s := &fakeSession{replies: map[string]resp.Value{"LRANGE": resp.BulkStrings("a", "b")}}
	out := run(t, s, "LRANGE l 0 -1\n", true)
	if !strings.Contains(out, "> a\nb\n") {
		t.Errorf("output = %q", out)
	}
}

func TestREPL_BadQuotes(t *testing.T) {
	s := &fakeSession{}
	out := run(t, s, "SET k \"open\n", false)
	if len(s.calls) != 0 {
		t.Errorf("nothing should be sent, got %v", s.calls)
	}
	if !strings.Contains(out, "Invalid argument(s)") {
		t.Errorf("output = %q", out)
	}
}

func TestREPL_TransportErrorContinues(t *testing.T) {
	s := &fakeSession{doErr: errors.New("connection refused")}
	out := run(t, s, "PING\nPING\n", false)
	if len(s.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(s.calls))
	}
	if strings.Count(out, "Error: connection refused") != 2 {
		t.Errorf("output = %q", out)
	}
}

func TestREPL_Help(t *testing.T) {
	s := &fakeSession{}
	out := run(t, s, "help xre\nhelp zzz\n", false)
	if !strings.Contains(out, "XREAD XREVRANGE") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, `no commands match "zzz"`) {
		t.Errorf("output = %q", out)
	}
	if len(s.calls) != 0 {
		t.Error("help must not reach the server")
	}
}

func TestREPL_SubscribeListens(t *testing.T) {
	s := &fakeSession{
		replies: map[string]resp.Value{
			"SUBSCRIBE": resp.Array{resp.BulkString("subscribe"), resp.BulkString("news"), resp.Integer(1)},
		},
		pushed: []resp.Value{resp.BulkStrings("message", "news", "hello")},
	}
	var out bytes.Buffer
	r := New(s, Config{In: strings.NewReader("SUBSCRIBE news\n"), Out: &out})
	err := r.Run(context.Background())
	// The fake ends the stream with EOF once the queue drains.
	if !errors.Is(err, io.EOF) && err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	for _, want := range []string{"Reading messages", `3) "hello"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestREPL_HistoryRecorded(t *testing.T) {
	h := NewHistory("", 0)
	s := &fakeSession{replies: map[string]resp.Value{"PING": resp.SimpleString("PONG")}}
	r := New(s, Config{In: strings.NewReader("PING\nexit\n"), Out: io.Discard, History: h})
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.Get(0) != "exit" || h.Get(1) != "PING" {
		t.Errorf("history = %q, %q", h.Get(0), h.Get(1))
	}
}
