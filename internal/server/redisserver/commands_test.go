package redisserver

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/internal/storage"
	"github.com/yndnr/respkv/pkg/resp"
)

const (
	notInteger = "-ERR value is not an integer or out of range\r\n"
	wrongType  = "-WRONGTYPE Operation against a key holding the wrong kind of value\r\n"
	nullBulk   = "$-1\r\n"
	nullArray  = "*-1\r\n"
)

func arr(items ...string) string {
	return string(resp.Encode(resp.BulkStrings(items...)))
}

// step is one command and its expected encoded reply.
type step struct {
	args []string
	want string
}

func cmd(want string, args ...string) step {
	return step{args: args, want: want}
}

func runSteps(t *testing.T, steps []step) {
	t.Helper()
	srv := newTestServer(t, Config{})
	c := pipeClient(t, srv)
	for _, s := range steps {
		c.expect(s.want, s.args...)
	}
}

// ============================================================
// Strings and keys
// ============================================================

func TestCommands_SetGet(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{"basic", []step{
			cmd(nullBulk, "GET", "k"),
			cmd("+OK\r\n", "SET", "k", "v"),
			cmd(bulk("v"), "GET", "k"),
		}},
		{"nx and xx", []step{
			cmd(nullBulk, "SET", "k", "v", "XX"),
			cmd("+OK\r\n", "SET", "k", "v", "NX"),
			cmd(nullBulk, "SET", "k", "w", "NX"),
			cmd("+OK\r\n", "SET", "k", "w", "XX"),
			cmd(bulk("w"), "GET", "k"),
		}},
		{"get option", []step{
			cmd(nullBulk, "SET", "k", "a", "GET"),
			cmd(bulk("a"), "SET", "k", "b", "GET"),
			cmd(bulk("b"), "GET", "k"),
		}},
		{"expiry options", []step{
			cmd("+OK\r\n", "SET", "k", "v", "EX", "100"),
			cmd(":100\r\n", "TTL", "k"),
			cmd("+OK\r\n", "SET", "k", "v", "KEEPTTL"),
			cmd(":100\r\n", "TTL", "k"),
			cmd("+OK\r\n", "SET", "k", "v"),
			cmd(":-1\r\n", "TTL", "k"),
			cmd(":-2\r\n", "TTL", "missing"),
			cmd("+OK\r\n", "SET", "gone", "v", "PXAT", "1"),
			cmd(":0\r\n", "EXISTS", "gone"),
		}},
		{"invalid options", []step{
			cmd("-ERR syntax error\r\n", "SET", "k", "v", "NX", "XX"),
			cmd("-ERR syntax error\r\n", "SET", "k", "v", "EX", "1", "KEEPTTL"),
			cmd("-ERR syntax error\r\n", "SET", "k", "v", "BOGUS"),
			cmd("-ERR invalid expire time in 'set' command\r\n", "SET", "k", "v", "EX", "0"),
			cmd(notInteger, "SET", "k", "v", "PX", "soon"),
		}},
		{"wrong type", []step{
			cmd(":1\r\n", "RPUSH", "l", "x"),
			cmd(wrongType, "GET", "l"),
			cmd(wrongType, "SET", "l", "v", "GET"),
			cmd("+OK\r\n", "SET", "l", "v"),
			cmd("+string\r\n", "TYPE", "l"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runSteps(t, tt.steps)
		})
	}
}

func TestCommands_Keys(t *testing.T) {
	runSteps(t, []step{
		cmd("+OK\r\n", "SET", "a1", "x"),
		cmd("+OK\r\n", "SET", "a2", "x"),
		cmd("+OK\r\n", "SET", "b1", "x"),
		cmd(":2\r\n", "EXISTS", "a1", "b1", "zz"),
		cmd(arr("a1", "a2"), "KEYS", "a*"),
		cmd(":3\r\n", "DBSIZE"),
		cmd(":2\r\n", "DEL", "a1", "a2", "zz"),
		cmd("+none\r\n", "TYPE", "a1"),
		cmd("+OK\r\n", "FLUSHALL"),
		cmd(":0\r\n", "DBSIZE"),
		cmd("*0\r\n", "KEYS", "*"),
	})
}

func TestCommands_Expire(t *testing.T) {
	runSteps(t, []step{
		cmd(":0\r\n", "EXPIRE", "missing", "10"),
		cmd("+OK\r\n", "SET", "k", "v"),
		cmd(":1\r\n", "EXPIRE", "k", "10"),
		cmd(":10\r\n", "TTL", "k"),
		cmd(notInteger, "EXPIRE", "k", "ten"),
		cmd(":1\r\n", "EXPIRE", "k", "-1"),
		cmd(":-2\r\n", "PTTL", "k"),
	})
}

func TestCommands_DBSizeSkipsExpired(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := pipeClient(t, srv)

	c.expect("+OK\r\n", "SET", "live", "v")
	c.expect("+OK\r\n", "SET", "short", "v", "PX", "5")
	time.Sleep(30 * time.Millisecond)
	c.expect(":1\r\n", "DBSIZE")
	c.expect(arr("live"), "KEYS", "*")
}

func TestCommands_Incr(t *testing.T) {
	runSteps(t, []step{
		cmd(":1\r\n", "INCR", "n"),
		cmd(":11\r\n", "INCRBY", "n", "10"),
		cmd(":10\r\n", "DECR", "n"),
		cmd(":5\r\n", "DECRBY", "n", "5"),
		cmd("+OK\r\n", "SET", "word", "abc"),
		cmd(notInteger, "INCR", "word"),
		cmd("+OK\r\n", "SET", "max", "9223372036854775807"),
		cmd("-ERR increment or decrement would overflow\r\n", "INCR", "max"),
		cmd("+OK\r\n", "SET", "ttl", "1", "EX", "100"),
		cmd(":2\r\n", "INCR", "ttl"),
		cmd(":100\r\n", "TTL", "ttl"),
	})
}

// ============================================================
// Lists
// ============================================================

func TestCommands_Lists(t *testing.T) {
	runSteps(t, []step{
		cmd(":2\r\n", "RPUSH", "l", "b", "c"),
		cmd(":3\r\n", "LPUSH", "l", "a"),
		cmd(arr("a", "b", "c"), "LRANGE", "l", "0", "-1"),
		cmd(arr("b", "c"), "LRANGE", "l", "-2", "10"),
		cmd("*0\r\n", "LRANGE", "missing", "0", "-1"),
		cmd(":3\r\n", "LLEN", "l"),
		cmd(bulk("a"), "LPOP", "l"),
		cmd(arr("b", "c"), "LPOP", "l", "5"),
		cmd(":0\r\n", "LLEN", "l"),
		cmd(nullBulk, "LPOP", "l"),
		cmd(nullArray, "LPOP", "l", "2"),
		cmd("+OK\r\n", "SET", "s", "v"),
		cmd(wrongType, "RPUSH", "s", "x"),
		cmd(wrongType, "LLEN", "s"),
	})
}

// ============================================================
// Streams
// ============================================================

func TestCommands_XAdd(t *testing.T) {
	runSteps(t, []step{
		cmd("-ERR The ID specified in XADD must be greater than 0-0\r\n", "XADD", "s", "0-0", "f", "v"),
		cmd(bulk("5-3"), "XADD", "s", "5-3", "f", "v"),
		cmd("-ERR The ID specified in XADD is equal or smaller than the target stream top item\r\n", "XADD", "s", "5-3", "f", "v"),
		cmd("-ERR The ID specified in XADD is equal or smaller than the target stream top item\r\n", "XADD", "s", "5-2", "f", "v"),
		cmd(bulk("5-4"), "XADD", "s", "5-*", "f", "v"),
		cmd(bulk("6-0"), "XADD", "s", "6-*", "f", "v"),
		cmd("-ERR Invalid stream ID specified as stream command argument\r\n", "XADD", "s", "abc", "f", "v"),
		cmd("-ERR wrong number of arguments for 'xadd' command\r\n", "XADD", "s", "7-0", "f"),
		cmd(":3\r\n", "XLEN", "s"),
		cmd(bulk("0-1"), "XADD", "fresh", "0-*", "f", "v"),
		cmd("+stream\r\n", "TYPE", "s"),
		cmd("+OK\r\n", "SET", "str", "v"),
		cmd(wrongType, "XADD", "str", "*", "f", "v"),
	})
}

func entry(id string, fields ...string) resp.Value {
	return resp.Array{resp.BulkString(id), resp.BulkStrings(fields...)}
}

func encode(vs ...resp.Value) string {
	return string(resp.Encode(resp.Array(vs)))
}

func TestCommands_XRange(t *testing.T) {
	e11 := entry("1-1", "a", "1")
	e12 := entry("1-2", "b", "2")
	e20 := entry("2-0", "c", "3")

	runSteps(t, []step{
		cmd(bulk("1-1"), "XADD", "s", "1-1", "a", "1"),
		cmd(bulk("1-2"), "XADD", "s", "1-2", "b", "2"),
		cmd(bulk("2-0"), "XADD", "s", "2-0", "c", "3"),
		cmd(encode(e12, e20), "XRANGE", "s", "1-2", "2-0"),
		cmd(encode(e11, e12, e20), "XRANGE", "s", "-", "+"),
		cmd(encode(e11, e12), "XRANGE", "s", "1", "1"),
		cmd(encode(e11), "XRANGE", "s", "-", "+", "COUNT", "1"),
		cmd(encode(e20, e12, e11), "XREVRANGE", "s", "+", "-"),
		cmd(encode(e20, e12), "XREVRANGE", "s", "+", "-", "COUNT", "2"),
		cmd("*0\r\n", "XRANGE", "missing", "-", "+"),
		cmd(encode(resp.Array{resp.BulkString("s"), resp.Array{e12, e20}}),
			"XREAD", "STREAMS", "s", "1-1"),
		cmd(encode(resp.Array{resp.BulkString("s"), resp.Array{e12}}),
			"XREAD", "COUNT", "1", "STREAMS", "s", "1-1"),
		cmd(nullArray, "XREAD", "STREAMS", "s", "2-0"),
		cmd("-ERR Unbalanced 'xread' list of streams: for each stream key an ID or '$' must be specified.\r\n",
			"XREAD", "STREAMS", "s", "t", "0-0"),
	})
}

// ============================================================
// Transactions
// ============================================================

func TestCommands_MultiExec(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := pipeClient(t, srv)

	c.expect("+OK\r\n", "SET", "k2", "not-a-number")
	c.expect("+OK\r\n", "MULTI")
	c.expect("+QUEUED\r\n", "SET", "k", "v")
	c.expect("+QUEUED\r\n", "INCR", "k2")
	c.expect("+QUEUED\r\n", "GET", "k")
	c.expect("*3\r\n+OK\r\n"+notInteger+bulk("v"), "EXEC")

	// The connection stays usable and the transaction state is reset.
	c.expect(bulk("v"), "GET", "k")
	c.expect("-ERR EXEC without MULTI\r\n", "EXEC")
}

func TestCommands_ExecAbort(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := pipeClient(t, srv)

	c.expect("+OK\r\n", "MULTI")
	c.expect("+QUEUED\r\n", "SET", "k", "v")
	c.expect("+QUEUED\r\n", "NOSUCHCMD")
	c.expect("+QUEUED\r\n", "GET")
	c.expect("-EXECABORT Transaction discarded because of previous errors.\r\n", "EXEC")
	c.expect(nullBulk, "GET", "k")
}

func TestCommands_TxStateErrors(t *testing.T) {
	runSteps(t, []step{
		cmd("-ERR DISCARD without MULTI\r\n", "DISCARD"),
		cmd("+OK\r\n", "WATCH", "k"),
		cmd("+OK\r\n", "MULTI"),
		cmd("-ERR MULTI calls can not be nested\r\n", "MULTI"),
		cmd("-ERR WATCH inside MULTI is not allowed\r\n", "WATCH", "k"),
		cmd("+QUEUED\r\n", "SET", "k", "v"),
		cmd("+OK\r\n", "DISCARD"),
		cmd(nullBulk, "GET", "k"),
		cmd("+OK\r\n", "MULTI"),
		cmd("*0\r\n", "EXEC"),
	})
}

func TestCommands_ExecPropagatesEachWrite(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := pipeClient(t, srv)

	c.expect("+OK\r\n", "MULTI")
	c.expect("+QUEUED\r\n", "SET", "a", "1")
	c.expect("+QUEUED\r\n", "GET", "a")
	c.expect("+QUEUED\r\n", "INCR", "a")
	c.expect("*3\r\n+OK\r\n"+bulk("1")+":2\r\n", "EXEC")

	want := int64(len(resp.EncodeCommand("SET", "a", "1")) + len(resp.EncodeCommand("INCR", "a")))
	if got := srv.Primary().Offset(); got != want {
		t.Errorf("offset = %d, want %d (reads and EXEC itself are not propagated)", got, want)
	}
}

func TestCommands_ExecBlockingDoesNotBlock(t *testing.T) {
	runSteps(t, []step{
		cmd("+OK\r\n", "MULTI"),
		cmd("+QUEUED\r\n", "BLPOP", "empty", "0"),
		cmd("+QUEUED\r\n", "XREAD", "BLOCK", "0", "STREAMS", "s", "$"),
		cmd("*2\r\n"+nullArray+nullArray, "EXEC"),
	})
}

// ============================================================
// Pub/Sub mode
// ============================================================

func TestCommands_SubscribedMode(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := pipeClient(t, srv)

	c.send("SUBSCRIBE", "news", "sport")
	if got := c.read(); got != "*3\r\n"+bulk("subscribe")+bulk("news")+":1\r\n" {
		t.Errorf("first confirmation = %q", got)
	}
	if got := c.read(); got != "*3\r\n"+bulk("subscribe")+bulk("sport")+":2\r\n" {
		t.Errorf("second confirmation = %q", got)
	}

	if got := c.do("GET", "k"); !strings.HasPrefix(got, "-ERR Can't execute 'get'") {
		t.Errorf("GET while subscribed = %q", got)
	}
	c.expect(arr("pong", ""), "PING")

	c.send("UNSUBSCRIBE")
	c.read()
	if got := c.read(); got != "*3\r\n"+bulk("unsubscribe")+bulk("sport")+":0\r\n" {
		t.Errorf("last unsubscribe = %q", got)
	}
	c.expect("+PONG\r\n", "PING")
}

// ============================================================
// Replica role
// ============================================================

func TestCommands_ReadOnlyReplica(t *testing.T) {
	cfg := Config{Replication: ReplicationConfig{PrimaryHost: "127.0.0.1", PrimaryPort: 1, ReadOnly: true}}
	srv := newTestServer(t, cfg)
	c := pipeClient(t, srv)

	c.expect("-READONLY You can't write against a read only replica.\r\n", "SET", "k", "v")
	c.expect(nullBulk, "GET", "k")
	if got := c.do("INFO", "replication"); !strings.Contains(got, "role:slave") || !strings.Contains(got, "master_link_status:down") {
		t.Errorf("INFO replication = %q", got)
	}

	srv.applyReplicated([]string{"SET", "k", "from-primary"})
	c.expect(bulk("from-primary"), "GET", "k")
}

// ============================================================
// Helpers
// ============================================================

func TestErrorReply(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want resp.Value
	}{
		{"domain", domain.ErrWrongType, resp.Error("WRONGTYPE Operation against a key holding the wrong kind of value")},
		{"domain with details", domain.ErrRateLimited.WithDetails("retry after 1s"), resp.Error("ERR rate limit exceeded: retry after 1s")},
		{"already prefixed", storage.ErrSaveInProgress, resp.Error("ERR Background save already in progress")},
		{"plain", errors.New("disk full"), resp.Error("ERR disk full")},
		{"lower-case prefix", errors.New("storage: boom"), resp.Error("ERR storage: boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorReply(tt.err); got != tt.want {
				t.Errorf("errorReply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr error
	}{
		{"0", 0, nil},
		{"1.5", 1500 * time.Millisecond, nil},
		{"-1", 0, domain.ErrTimeoutNegative},
		{"abc", 0, domain.ErrTimeoutInvalid},
		{"inf", 0, domain.ErrTimeoutInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTimeout(tt.in, time.Second)
			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("timeout = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandTable(t *testing.T) {
	for name, c := range commands {
		if name != c.name || strings.ToUpper(name) != name {
			t.Errorf("command %q registered as %q", c.name, name)
		}
		if c.arity == 0 || c.run == nil {
			t.Errorf("command %q incomplete", name)
		}
	}
	if !lookupCommand("SET").arityOK(3) || lookupCommand("GET").arityOK(3) {
		t.Error("arity check mismatch")
	}
}
