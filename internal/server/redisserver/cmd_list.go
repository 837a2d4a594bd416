package redisserver

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/pkg/resp"
)

var listCommands = []*command{
	{name: "LPUSH", arity: -3, flags: flagWrite, run: cmdLPush},
	{name: "RPUSH", arity: -3, flags: flagWrite, run: cmdRPush},
	{name: "LPOP", arity: -2, flags: flagWrite, run: cmdLPop},
	{name: "LRANGE", arity: 4, run: cmdLRange},
	{name: "LLEN", arity: 2, run: cmdLLen},
	{name: "BLPOP", arity: -3, flags: flagWrite, run: cmdBLPop},
}

func push(cx *execContext, args []string, front bool) resp.Value {
	n, err := cx.srv.lists.Push(args[1], front, args[2:]...)
	if err != nil {
		return errorReply(err)
	}
	return resp.Integer(n)
}

func cmdLPush(cx *execContext, args []string) resp.Value {
	return push(cx, args, true)
}

func cmdRPush(cx *execContext, args []string) resp.Value {
	return push(cx, args, false)
}

func cmdLPop(cx *execContext, args []string) resp.Value {
	if len(args) > 3 {
		return errorReply(domain.ErrSyntax)
	}
	if len(args) == 2 {
		vals, err := cx.srv.lists.Pop(args[1], 1)
		if err != nil {
			return errorReply(err)
		}
		if len(vals) == 0 {
			return resp.NullBulk
		}
		return resp.BulkString(vals[0])
	}

	count, err := strconv.Atoi(args[2])
	if err != nil || count < 0 {
		return errorReply(domain.NewErr("value is out of range, must be positive"))
	}
	vals, err := cx.srv.lists.Pop(args[1], count)
	if err != nil {
		return errorReply(err)
	}
	if vals == nil {
		if count == 0 && cx.srv.store.Exists(args[1]) {
			return resp.Array{}
		}
		return resp.NullArray
	}
	return resp.BulkStrings(vals...)
}

func cmdLRange(cx *execContext, args []string) resp.Value {
	start, err1 := strconv.Atoi(args[2])
	stop, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		return errorReply(domain.ErrNotInteger)
	}
	vals, err := cx.srv.lists.Range(args[1], start, stop)
	if err != nil {
		return errorReply(err)
	}
	return resp.BulkStrings(vals...)
}

func cmdLLen(cx *execContext, args []string) resp.Value {
	n, err := cx.srv.lists.Len(args[1])
	if err != nil {
		return errorReply(err)
	}
	return resp.Integer(n)
}

// parseTimeout parses a blocking timeout given in unit. 0 means no limit.
func parseTimeout(s string, unit time.Duration) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, domain.ErrTimeoutInvalid
	}
	if f < 0 {
		return 0, domain.ErrTimeoutNegative
	}
	d := f * float64(unit)
	if d > math.MaxInt64 {
		return 0, domain.ErrTimeoutInvalid
	}
	return time.Duration(d), nil
}

// cmdBLPop pops from the first non-empty list or parks the client. Pops are
// propagated as LPOP so replicas do not depend on waiter order.
func cmdBLPop(cx *execContext, args []string) resp.Value {
	srv := cx.srv
	keys := args[1 : len(args)-1]
	timeout, err := parseTimeout(args[len(args)-1], time.Second)
	if err != nil {
		return errorReply(err)
	}

	for _, key := range keys {
		vals, err := srv.lists.Pop(key, 1)
		if err != nil {
			return errorReply(err)
		}
		if len(vals) > 0 {
			cx.propagate(resp.EncodeCommand("LPOP", key))
			return resp.BulkStrings(key, vals[0])
		}
	}
	if cx.inExec || cx.fromPrimary {
		return resp.NullArray
	}

	w := srv.blocking.BlockLists(keys, func(key string) (any, bool) {
		vals, err := srv.lists.Pop(key, 1)
		if err != nil || len(vals) == 0 {
			return nil, false
		}
		srv.primary.Propagate(resp.EncodeCommand("LPOP", key))
		return resp.BulkStrings(key, vals[0]), true
	})
	cx.wait = func(ctx context.Context) resp.Value {
		v, ok := w.Wait(ctx, timeout)
		if !ok {
			return resp.NullArray
		}
		return v.(resp.Value)
	}
	return nil
}
