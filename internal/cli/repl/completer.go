package repl

import (
	"sort"
	"strings"
)

// Commands understood by the server, plus the REPL built-ins.
var defaultCommands = []string{
	// keys and strings
	"DEL", "DBSIZE", "DECR", "DECRBY", "EXISTS", "EXPIRE", "FLUSHALL", "GET",
	"INCR", "INCRBY", "KEYS", "PTTL", "SET", "TTL", "TYPE",
	// lists
	"BLPOP", "LLEN", "LPOP", "LPUSH", "LRANGE", "RPUSH",
	// streams
	"XADD", "XLEN", "XRANGE", "XREAD", "XREVRANGE",
	// transactions
	"DISCARD", "EXEC", "MULTI", "WATCH",
	// pub/sub
	"PUBLISH", "SUBSCRIBE", "UNSUBSCRIBE",
	// server and replication
	"BGSAVE", "COMMAND", "CONFIG", "ECHO", "INFO", "LASTSAVE", "PING",
	"PSYNC", "QUIT", "REPLCONF", "SAVE", "SELECT", "WAIT",
}

var builtins = []string{"clear", "exit", "help", "quit"}

// Completer provides command name completion for the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over the server commands and built-ins.
func NewCompleter() *Completer {
	all := make([]string, 0, len(defaultCommands)+len(builtins))
	all = append(all, defaultCommands...)
	all = append(all, builtins...)
	sort.Strings(all)
	return &Completer{commands: all}
}

// Complete returns the names starting with prefix, case-insensitively, in
// sorted order. An empty prefix returns nil.
func (c *Completer) Complete(prefix string) []string {
	if prefix == "" {
		return nil
	}
	var out []string
	for _, name := range c.commands {
		if len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
			out = append(out, name)
		}
	}
	return out
}

// Known reports whether name is a server command or built-in.
func (c *Completer) Known(name string) bool {
	for _, cmd := range c.commands {
		if strings.EqualFold(cmd, name) {
			return true
		}
	}
	return false
}
