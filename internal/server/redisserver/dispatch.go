package redisserver

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/pkg/resp"
)

// waitFunc produces a deferred reply. It runs without the execution lock and
// must return once ctx is done.
type waitFunc func(ctx context.Context) resp.Value

type cmdFlags uint8

const (
	flagWrite  cmdFlags = 1 << iota // propagated to replicas, rejected on a read-only replica
	flagTx                          // runs immediately inside MULTI
	flagPubSub                      // allowed in subscribed mode
)

type command struct {
	name string

	// arity follows the usual convention: positive is an exact argument
	// count including the name, negative is a minimum.
	arity int
	flags cmdFlags
	run   func(cx *execContext, args []string) resp.Value
}

func (c *command) arityOK(n int) bool {
	if c.arity >= 0 {
		return n == c.arity
	}
	return n >= -c.arity
}

// execContext is the per-command scratch state.
type execContext struct {
	srv  *Server
	conn *Conn // nil for commands applied from the primary

	inExec      bool
	fromPrimary bool

	// wait is set by blocking commands that could not be served at once.
	wait waitFunc

	// effects replaces the verbatim frame when the command propagates.
	effects [][]byte
}

func (cx *execContext) propagate(frame []byte) {
	cx.effects = append(cx.effects, frame)
}

var commands map[string]*command

func init() {
	commands = make(map[string]*command)
	for _, group := range [][]*command{
		keyCommands,
		listCommands,
		streamCommands,
		serverCommands,
		txCommands,
		replCommands,
		pubsubCommands,
	} {
		for _, cmd := range group {
			commands[cmd.name] = cmd
		}
	}
}

func lookupCommand(name string) *command {
	return commands[name]
}

// dispatch routes one frame through the subscribe and transaction states and
// runs it. name is the upper-cased command name.
func (s *Server) dispatch(c *Conn, name string, args []string) (resp.Value, waitFunc) {
	cmd := lookupCommand(name)

	if c.subscribed() && (cmd == nil || cmd.flags&flagPubSub == 0) {
		return resp.Error(fmt.Sprintf(
			"ERR Can't execute '%s': only SUBSCRIBE / UNSUBSCRIBE / PING / QUIT are allowed in this context",
			strings.ToLower(args[0]))), nil
	}

	if c.inMulti && (cmd == nil || cmd.flags&flagTx == 0) {
		if cmd == nil || !cmd.arityOK(len(args)) {
			c.txFailed = true
		}
		c.queued = append(c.queued, args)
		return resp.SimpleString("QUEUED"), nil
	}

	if cmd == nil {
		return unknownCommand(args), nil
	}
	if !cmd.arityOK(len(args)) {
		return wrongArity(cmd.name), nil
	}
	return s.execute(c, cmd, args)
}

// execute runs cmd under the execution lock, propagates it and wakes the
// waiters its writes satisfied.
func (s *Server) execute(c *Conn, cmd *command, args []string) (resp.Value, waitFunc) {
	cx := &execContext{srv: s, conn: c}

	s.engine.Lock()
	defer s.engine.Unlock()

	reply := s.runLocked(cx, cmd, args)
	s.blocking.Flush()
	return reply, cx.wait
}

// runLocked executes one command with the lock held and propagates it when
// it is a successful write.
func (s *Server) runLocked(cx *execContext, cmd *command, args []string) resp.Value {
	if cmd.flags&flagWrite != 0 && !cx.fromPrimary && s.readOnly() {
		return errorReply(domain.ErrReadOnlyReplica)
	}

	reply := s.invoke(cx, cmd, args)
	if cmd.flags&flagWrite == 0 || cx.fromPrimary || isErrorReply(reply) {
		return reply
	}

	switch {
	case cx.effects != nil:
		for _, frame := range cx.effects {
			s.primary.Propagate(frame)
		}
	case cx.wait == nil:
		s.primary.Propagate(resp.EncodeCommand(args...))
	}
	return reply
}

func (s *Server) invoke(cx *execContext, cmd *command, args []string) (reply resp.Value) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command panicked",
				"command", cmd.name,
				"panic", r,
				"stack", string(debug.Stack()))
			cx.wait = nil
			cx.effects = nil
			reply = errorReply(domain.ErrInternal)
		}
	}()
	return cmd.run(cx, args)
}

// applyReplicated executes a write received from the primary. Nothing is
// replied and nothing is propagated.
func (s *Server) applyReplicated(args []string) {
	name := upper(args[0])
	cmd := lookupCommand(name)
	if cmd == nil || !cmd.arityOK(len(args)) || cmd.flags&flagWrite == 0 {
		s.logger.Debug("ignoring replicated frame", "command", name)
		return
	}

	cx := &execContext{srv: s, fromPrimary: true}

	s.engine.Lock()
	defer s.engine.Unlock()

	if reply := s.invoke(cx, cmd, args); isErrorReply(reply) {
		s.logger.Warn("replicated command failed", "command", name, "reply", string(reply.(resp.Error)))
	}
	s.blocking.Flush()
}

// ============================================================================
// Reply helpers
// ============================================================================

// errorReply converts err to a single-line error reply.
func errorReply(err error) resp.Value {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return resp.Error(de.Error())
	}
	msg := err.Error()
	if hasErrorPrefix(msg) {
		return resp.Error(msg)
	}
	return resp.Error("ERR " + msg)
}

// hasErrorPrefix reports whether msg already starts with an upper-case code
// such as "ERR" or "NOSCRIPT".
func hasErrorPrefix(msg string) bool {
	code, _, ok := strings.Cut(msg, " ")
	if !ok || code == "" {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isErrorReply(v resp.Value) bool {
	_, ok := v.(resp.Error)
	return ok
}

func unknownCommand(args []string) resp.Value {
	var b strings.Builder
	for _, a := range args[1:] {
		fmt.Fprintf(&b, "'%s' ", a)
	}
	return resp.Error(fmt.Sprintf("ERR unknown command '%s', with args beginning with: %s", args[0], b.String()))
}

func wrongArity(name string) resp.Value {
	return resp.Error(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
}

func metricLabel(name string) string {
	if lookupCommand(name) == nil {
		return "unknown"
	}
	return strings.ToLower(name)
}

// upper is strings.ToUpper without the allocation for already upper-case
// ASCII names.
func upper(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'a' && c <= 'z' {
			return strings.ToUpper(s)
		}
	}
	return s
}
