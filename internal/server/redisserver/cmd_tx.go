package redisserver

import (
	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/pkg/resp"
)

var txCommands = []*command{
	{name: "MULTI", arity: 1, flags: flagTx, run: cmdMulti},
	{name: "EXEC", arity: 1, flags: flagTx, run: cmdExec},
	{name: "DISCARD", arity: 1, flags: flagTx, run: cmdDiscard},
	{name: "WATCH", arity: -2, flags: flagTx, run: cmdWatch},
}

func cmdMulti(cx *execContext, _ []string) resp.Value {
	if cx.conn.inMulti {
		return errorReply(domain.ErrNestedMulti)
	}
	cx.conn.inMulti = true
	return resp.OK
}

// cmdExec runs the queued commands in order. Each one gets a fresh context,
// is propagated on its own when it writes, and reports its own error inline.
func cmdExec(cx *execContext, _ []string) resp.Value {
	c := cx.conn
	if !c.inMulti {
		return errorReply(domain.ErrExecWithoutMulti)
	}
	queued, failed := c.queued, c.txFailed
	c.resetTx()
	if failed {
		return errorReply(domain.ErrExecAbort)
	}

	out := make(resp.Array, 0, len(queued))
	for _, args := range queued {
		cmd := lookupCommand(upper(args[0]))
		item := &execContext{srv: cx.srv, conn: c, inExec: true}
		v := cx.srv.runLocked(item, cmd, args)
		if v == nil {
			v = resp.NullBulk
		}
		out = append(out, v)
	}
	return out
}

func cmdDiscard(cx *execContext, _ []string) resp.Value {
	if !cx.conn.inMulti {
		return errorReply(domain.ErrDiscardWithoutMulti)
	}
	cx.conn.resetTx()
	return resp.OK
}

// cmdWatch accepts keys without tracking them. EXEC never aborts because a
// watched key changed.
func cmdWatch(cx *execContext, _ []string) resp.Value {
	if cx.conn.inMulti {
		return errorReply(domain.ErrWatchInMulti)
	}
	return resp.OK
}
