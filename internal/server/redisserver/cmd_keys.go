package redisserver

import (
	"math"
	"strconv"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/pkg/resp"
)

var keyCommands = []*command{
	{name: "GET", arity: 2, run: cmdGet},
	{name: "SET", arity: -3, flags: flagWrite, run: cmdSet},
	{name: "DEL", arity: -2, flags: flagWrite, run: cmdDel},
	{name: "EXISTS", arity: -2, run: cmdExists},
	{name: "EXPIRE", arity: 3, flags: flagWrite, run: cmdExpire},
	{name: "TTL", arity: 2, run: cmdTTL},
	{name: "PTTL", arity: 2, run: cmdPTTL},
	{name: "INCR", arity: 2, flags: flagWrite, run: cmdIncr},
	{name: "INCRBY", arity: 3, flags: flagWrite, run: cmdIncrBy},
	{name: "DECR", arity: 2, flags: flagWrite, run: cmdDecr},
	{name: "DECRBY", arity: 3, flags: flagWrite, run: cmdDecrBy},
	{name: "TYPE", arity: 2, run: cmdType},
	{name: "KEYS", arity: 2, run: cmdKeys},
	{name: "DBSIZE", arity: 1, run: cmdDBSize},
	{name: "FLUSHALL", arity: -1, flags: flagWrite, run: cmdFlushAll},
}

func cmdGet(cx *execContext, args []string) resp.Value {
	v, ok := cx.srv.store.Get(args[1])
	if !ok {
		return resp.NullBulk
	}
	if v.Kind != domain.KindString {
		return errorReply(domain.ErrWrongType)
	}
	return resp.BulkString(v.Str)
}

// setOptions is the parsed option tail of SET.
type setOptions struct {
	nx, xx  bool
	get     bool
	keepTTL bool
	expires time.Time
}

func parseSetOptions(args []string, now time.Time) (setOptions, error) {
	var opts setOptions
	hasExpiry := false
	for i := 0; i < len(args); i++ {
		switch opt := upper(args[i]); opt {
		case "NX":
			opts.nx = true
		case "XX":
			opts.xx = true
		case "GET":
			opts.get = true
		case "KEEPTTL":
			opts.keepTTL = true
		case "EX", "PX", "EXAT", "PXAT":
			if hasExpiry || i+1 >= len(args) {
				return opts, domain.ErrSyntax
			}
			i++
			n, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				return opts, domain.ErrNotInteger
			}
			at, err := expiryTime(opt, n, now)
			if err != nil {
				return opts, err
			}
			opts.expires = at
			hasExpiry = true
		default:
			return opts, domain.ErrSyntax
		}
	}
	if (opts.nx && opts.xx) || (opts.keepTTL && hasExpiry) {
		return opts, domain.ErrSyntax
	}
	return opts, nil
}

// expiryTime resolves a SET expiry option to an absolute time.
func expiryTime(opt string, n int64, now time.Time) (time.Time, error) {
	if n <= 0 {
		return time.Time{}, domain.ErrInvalidExpire
	}
	switch opt {
	case "EX":
		if n > math.MaxInt64/int64(time.Second) {
			return time.Time{}, domain.ErrInvalidExpire
		}
		return now.Add(time.Duration(n) * time.Second), nil
	case "PX":
		if n > math.MaxInt64/int64(time.Millisecond) {
			return time.Time{}, domain.ErrInvalidExpire
		}
		return now.Add(time.Duration(n) * time.Millisecond), nil
	case "EXAT":
		return time.Unix(n, 0), nil
	default:
		return time.UnixMilli(n), nil
	}
}

func cmdSet(cx *execContext, args []string) resp.Value {
	store := cx.srv.store
	key := args[1]

	opts, err := parseSetOptions(args[3:], store.Now())
	if err != nil {
		return errorReply(err)
	}

	old, exists := store.Get(key)
	var prev resp.Value = resp.NullBulk
	if opts.get && exists {
		if old.Kind != domain.KindString {
			return errorReply(domain.ErrWrongType)
		}
		prev = resp.BulkString(old.Str)
	}

	if (opts.nx && exists) || (opts.xx && !exists) {
		if opts.get {
			return prev
		}
		return resp.NullBulk
	}

	v := domain.NewString(args[2])
	switch {
	case opts.keepTTL && exists:
		v.ExpiresAt = old.ExpiresAt
	case !opts.expires.IsZero():
		v.ExpiresAt = opts.expires
	}
	store.Set(key, v)

	// An absolute expiry in the past leaves the key observable as missing.
	if v.IsExpired(store.Now()) {
		store.Delete(key)
	}

	if opts.get {
		return prev
	}
	return resp.OK
}

func cmdDel(cx *execContext, args []string) resp.Value {
	n := 0
	for _, key := range args[1:] {
		if cx.srv.store.Delete(key) {
			n++
		}
	}
	return resp.Integer(n)
}

func cmdExists(cx *execContext, args []string) resp.Value {
	n := 0
	for _, key := range args[1:] {
		if cx.srv.store.Exists(key) {
			n++
		}
	}
	return resp.Integer(n)
}

func cmdExpire(cx *execContext, args []string) resp.Value {
	store := cx.srv.store
	secs, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return errorReply(domain.ErrNotInteger)
	}
	if secs > math.MaxInt64/int64(time.Second) || secs < math.MinInt64/int64(time.Second) {
		return errorReply(domain.NewErr("invalid expire time in 'expire' command"))
	}

	v, ok := store.Get(args[1])
	if !ok {
		return resp.Integer(0)
	}
	if secs <= 0 {
		store.Delete(args[1])
		return resp.Integer(1)
	}
	store.Set(args[1], v.WithExpiry(store.Now().Add(time.Duration(secs)*time.Second)))
	return resp.Integer(1)
}

// remaining returns the key's time to live, -2 when missing and -1 when it
// has no expiry.
func remaining(cx *execContext, key string) (time.Duration, int64) {
	store := cx.srv.store
	v, ok := store.Get(key)
	if !ok {
		return 0, -2
	}
	if !v.HasExpiry() {
		return 0, -1
	}
	return v.ExpiresAt.Sub(store.Now()), 0
}

func cmdTTL(cx *execContext, args []string) resp.Value {
	d, code := remaining(cx, args[1])
	if code != 0 {
		return resp.Integer(code)
	}
	return resp.Integer((d.Milliseconds() + 500) / 1000)
}

func cmdPTTL(cx *execContext, args []string) resp.Value {
	d, code := remaining(cx, args[1])
	if code != 0 {
		return resp.Integer(code)
	}
	return resp.Integer(d.Milliseconds())
}

// incrBy adds delta to the integer at key, creating it at 0. The expiry of
// an existing key is kept.
func incrBy(cx *execContext, key string, delta int64) resp.Value {
	store := cx.srv.store

	var cur int64
	var expires time.Time
	if v, ok := store.Get(key); ok {
		if v.Kind != domain.KindString {
			return errorReply(domain.ErrWrongType)
		}
		n, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return errorReply(domain.ErrNotInteger)
		}
		cur, expires = n, v.ExpiresAt
	}

	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		return errorReply(domain.ErrOverflow)
	}
	cur += delta

	v := domain.NewString(strconv.FormatInt(cur, 10))
	v.ExpiresAt = expires
	store.Set(key, v)
	return resp.Integer(cur)
}

func cmdIncr(cx *execContext, args []string) resp.Value {
	return incrBy(cx, args[1], 1)
}

func cmdDecr(cx *execContext, args []string) resp.Value {
	return incrBy(cx, args[1], -1)
}

func cmdIncrBy(cx *execContext, args []string) resp.Value {
	delta, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return errorReply(domain.ErrNotInteger)
	}
	return incrBy(cx, args[1], delta)
}

func cmdDecrBy(cx *execContext, args []string) resp.Value {
	delta, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || delta == math.MinInt64 {
		return errorReply(domain.ErrNotInteger)
	}
	return incrBy(cx, args[1], -delta)
}

func cmdType(cx *execContext, args []string) resp.Value {
	return resp.SimpleString(cx.srv.store.Type(args[1]).String())
}

func cmdKeys(cx *execContext, args []string) resp.Value {
	return resp.BulkStrings(cx.srv.store.Keys(args[1])...)
}

func cmdDBSize(cx *execContext, _ []string) resp.Value {
	return resp.Integer(cx.srv.store.Len())
}

func cmdFlushAll(cx *execContext, args []string) resp.Value {
	if len(args) > 2 {
		return errorReply(domain.ErrSyntax)
	}
	if len(args) == 2 {
		if mode := upper(args[1]); mode != "SYNC" && mode != "ASYNC" {
			return errorReply(domain.ErrSyntax)
		}
	}
	cx.srv.store.Flush()
	return resp.OK
}
