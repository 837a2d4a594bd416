package redisserver

import (
	"context"
	"strconv"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/pkg/resp"
)

var streamCommands = []*command{
	{name: "XADD", arity: -5, flags: flagWrite, run: cmdXAdd},
	{name: "XLEN", arity: 2, run: cmdXLen},
	{name: "XRANGE", arity: -4, run: cmdXRange},
	{name: "XREVRANGE", arity: -4, run: cmdXRevRange},
	{name: "XREAD", arity: -4, run: cmdXRead},
}

func entryValue(e domain.StreamEntry) resp.Value {
	return resp.Array{resp.BulkString(e.ID.String()), resp.BulkStrings(e.Fields...)}
}

func entriesValue(entries []domain.StreamEntry) resp.Array {
	out := make(resp.Array, len(entries))
	for i, e := range entries {
		out[i] = entryValue(e)
	}
	return out
}

func cmdXAdd(cx *execContext, args []string) resp.Value {
	fields := args[3:]
	if len(fields)%2 != 0 {
		return wrongArity("XADD")
	}
	id, err := cx.srv.streams.Append(args[1], args[2], fields)
	if err != nil {
		return errorReply(err)
	}
	return resp.BulkString(id.String())
}

func cmdXLen(cx *execContext, args []string) resp.Value {
	n, err := cx.srv.streams.Len(args[1])
	if err != nil {
		return errorReply(err)
	}
	return resp.Integer(n)
}

// parseCount parses an optional trailing "COUNT n". 0 means no cap.
func parseCount(args []string) (int, error) {
	switch len(args) {
	case 0:
		return 0, nil
	case 2:
		if upper(args[0]) != "COUNT" {
			return 0, domain.ErrSyntax
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return 0, domain.ErrNotInteger
		}
		if n < 0 {
			n = 0
		}
		return n, nil
	default:
		return 0, domain.ErrSyntax
	}
}

func cmdXRange(cx *execContext, args []string) resp.Value {
	start, err := domain.ParseRangeBound(args[2], false)
	if err != nil {
		return errorReply(err)
	}
	end, err := domain.ParseRangeBound(args[3], true)
	if err != nil {
		return errorReply(err)
	}
	count, err := parseCount(args[4:])
	if err != nil {
		return errorReply(err)
	}

	entries, err := cx.srv.streams.Range(args[1], start, end)
	if err != nil {
		return errorReply(err)
	}
	if count > 0 && len(entries) > count {
		entries = entries[:count]
	}
	return entriesValue(entries)
}

// cmdXRevRange takes the end bound first.
func cmdXRevRange(cx *execContext, args []string) resp.Value {
	end, err := domain.ParseRangeBound(args[2], true)
	if err != nil {
		return errorReply(err)
	}
	start, err := domain.ParseRangeBound(args[3], false)
	if err != nil {
		return errorReply(err)
	}
	count, err := parseCount(args[4:])
	if err != nil {
		return errorReply(err)
	}

	entries, err := cx.srv.streams.RevRange(args[1], start, end, count)
	if err != nil {
		return errorReply(err)
	}
	return entriesValue(entries)
}

// xreadArgs is a parsed XREAD call.
type xreadArgs struct {
	count   int
	block   bool
	timeout time.Duration
	keys    []string
	ids     []string
}

func parseXRead(args []string) (xreadArgs, error) {
	var xa xreadArgs
	i := 1
	for ; i < len(args); i++ {
		switch upper(args[i]) {
		case "COUNT":
			if i+1 >= len(args) {
				return xa, domain.ErrSyntax
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return xa, domain.ErrNotInteger
			}
			if n > 0 {
				xa.count = n
			}
		case "BLOCK":
			if i+1 >= len(args) {
				return xa, domain.ErrSyntax
			}
			i++
			ms, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				return xa, domain.ErrTimeoutInvalid
			}
			if ms < 0 {
				return xa, domain.ErrTimeoutNegative
			}
			xa.block = true
			xa.timeout = time.Duration(ms) * time.Millisecond
		case "STREAMS":
			rest := args[i+1:]
			if len(rest) == 0 || len(rest)%2 != 0 {
				return xa, domain.ErrXReadUnbalanced
			}
			half := len(rest) / 2
			xa.keys, xa.ids = rest[:half], rest[half:]
			return xa, nil
		default:
			return xa, domain.ErrSyntax
		}
	}
	return xa, domain.ErrSyntax
}

// cmdXRead reads entries newer than each given ID. With BLOCK and nothing
// to return, "$" is resolved once and the client parks until any of the
// streams has newer entries.
func cmdXRead(cx *execContext, args []string) resp.Value {
	srv := cx.srv
	xa, err := parseXRead(args)
	if err != nil {
		return errorReply(err)
	}

	after := make([]domain.StreamID, len(xa.keys))
	for i, raw := range xa.ids {
		if raw == "$" {
			last, err := srv.streams.LastID(xa.keys[i])
			if err != nil {
				return errorReply(err)
			}
			after[i] = last
			continue
		}
		id, err := domain.ParseRangeBound(raw, false)
		if err != nil {
			return errorReply(err)
		}
		after[i] = id
	}

	collect := func() (resp.Array, error) {
		var out resp.Array
		for i, key := range xa.keys {
			entries, err := srv.streams.After(key, after[i], xa.count)
			if err != nil {
				return nil, err
			}
			if len(entries) > 0 {
				out = append(out, resp.Array{resp.BulkString(key), entriesValue(entries)})
			}
		}
		return out, nil
	}

	out, err := collect()
	if err != nil {
		return errorReply(err)
	}
	if len(out) > 0 {
		return out
	}
	if !xa.block || cx.inExec || cx.fromPrimary {
		return resp.NullArray
	}

	w := srv.blocking.BlockStreams(xa.keys, func(string) (any, bool) {
		out, err := collect()
		if err != nil || len(out) == 0 {
			return nil, false
		}
		return out, true
	})
	cx.wait = func(ctx context.Context) resp.Value {
		v, ok := w.Wait(ctx, xa.timeout)
		if !ok {
			return resp.NullArray
		}
		return v.(resp.Array)
	}
	return nil
}
