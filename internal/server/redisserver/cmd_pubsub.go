package redisserver

import (
	"sort"

	"github.com/yndnr/respkv/pkg/resp"
)

var pubsubCommands = []*command{
	{name: "SUBSCRIBE", arity: -2, flags: flagPubSub, run: cmdSubscribe},
	{name: "UNSUBSCRIBE", arity: -1, flags: flagPubSub, run: cmdUnsubscribe},
	{name: "PUBLISH", arity: 3, run: cmdPublish},
}

// cmdSubscribe writes one confirmation per channel itself and returns no
// reply of its own.
func cmdSubscribe(cx *execContext, args []string) resp.Value {
	c := cx.conn
	if c.subs == nil {
		c.subs = make(map[string]struct{})
	}
	for _, ch := range args[1:] {
		if _, ok := c.subs[ch]; !ok {
			cx.srv.hub.Subscribe(ch, c)
			c.subs[ch] = struct{}{}
		}
		_ = c.writeValue(resp.Array{
			resp.BulkString("subscribe"),
			resp.BulkString(ch),
			resp.Integer(len(c.subs)),
		})
	}
	return nil
}

func cmdUnsubscribe(cx *execContext, args []string) resp.Value {
	c := cx.conn
	channels := args[1:]
	if len(channels) == 0 {
		for ch := range c.subs {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
	}
	if len(channels) == 0 {
		return resp.Array{resp.BulkString("unsubscribe"), resp.NullBulk, resp.Integer(0)}
	}

	for _, ch := range channels {
		if _, ok := c.subs[ch]; ok {
			cx.srv.hub.Unsubscribe(ch, c)
			delete(c.subs, ch)
		}
		_ = c.writeValue(resp.Array{
			resp.BulkString("unsubscribe"),
			resp.BulkString(ch),
			resp.Integer(len(c.subs)),
		})
	}
	return nil
}

func cmdPublish(cx *execContext, args []string) resp.Value {
	return resp.Integer(cx.srv.hub.Publish(args[1], args[2]))
}
