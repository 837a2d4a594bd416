package redisserver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/pkg/resp"
)

var replCommands = []*command{
	{name: "REPLCONF", arity: -2, run: cmdReplconf},
	{name: "PSYNC", arity: 3, run: cmdPSync},
	{name: "WAIT", arity: 3, run: cmdWait},
}

func cmdReplconf(cx *execContext, args []string) resp.Value {
	switch upper(args[1]) {
	case "LISTENING-PORT":
		if len(args) != 3 {
			return errorReply(domain.ErrSyntax)
		}
		if _, err := strconv.ParseUint(args[2], 10, 16); err != nil {
			return errorReply(domain.ErrNotInteger)
		}
		cx.conn.listeningPort = args[2]
		return resp.OK
	case "CAPA", "GETACK":
		return resp.OK
	case "ACK":
		// Acknowledgements never get a reply.
		return nil
	default:
		return errorReply(domain.ErrSyntax)
	}
}

// cmdPSync answers every request with a full resync: the preamble and the
// snapshot are captured under the execution lock, so the replica's stream
// starts exactly after the state it loads.
func cmdPSync(cx *execContext, _ []string) resp.Value {
	srv, c := cx.srv, cx.conn
	if cx.inExec {
		return errorReply(domain.NewErr("PSYNC is not allowed inside a transaction"))
	}
	if c.replica != nil {
		return errorReply(domain.NewErr("already replicating"))
	}

	data, err := srv.engine.Dump()
	if err != nil {
		srv.logger.Error("snapshot for full resync failed", "error", err)
		return errorReply(err)
	}

	p := srv.primary
	preamble := fmt.Appendf(nil, "+FULLRESYNC %s %d\r\n", p.ReplID(), p.Offset())
	preamble = resp.AppendPayload(preamble, data)

	c.replica = p.AddReplica(c, c.netConn.RemoteAddr().String(), c.listeningPort, preamble)
	c.logger.Info("full resync started", "snapshot_bytes", len(data), "offset", p.Offset())
	return nil
}

// cmdWait blocks until numreplicas acknowledged the offset current at call
// time, or the timeout (milliseconds, 0 waits forever) elapses.
func cmdWait(cx *execContext, args []string) resp.Value {
	need, err := strconv.Atoi(args[1])
	if err != nil || need < 0 {
		return errorReply(domain.ErrNotInteger)
	}
	ms, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return errorReply(domain.ErrTimeoutInvalid)
	}
	if ms < 0 {
		return errorReply(domain.ErrTimeoutNegative)
	}
	timeout := time.Duration(ms) * time.Millisecond

	p := cx.srv.primary
	count, target := p.ReplicaCount(), p.Offset()
	if count == 0 || target == 0 {
		return resp.Integer(count)
	}
	if cx.inExec {
		return resp.Integer(p.AckedCount(target))
	}

	p.RequestAcks(resp.EncodeCommand("REPLCONF", "GETACK", "*"))
	w := p.WaitForAcks(need, target)
	cx.wait = func(ctx context.Context) resp.Value {
		return resp.Integer(w.Wait(ctx, timeout))
	}
	return nil
}
