package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TryFunc attempts to satisfy a parked client after key received data. It
// runs with command execution serialized and returns the reply value on
// success.
type TryFunc func(key string) (any, bool)

// Waiter is one parked client. A single waiter may sit in several per-key
// queues; it is resolved exactly once, by data or by cancellation.
type Waiter struct {
	coord  *Coordinator
	kind   waitKind
	keys   []string
	try    TryFunc
	result chan any
	done   bool // guarded by coord.mu
}

type waitKind uint8

const (
	waitList waitKind = iota
	waitStream
)

type signal struct {
	kind waitKind
	key  string
}

// Coordinator owns the per-key waiter queues for blocking list pops and
// blocking stream reads.
//
// List queues are FIFO and consuming: one pushed element wakes at most one
// waiter. Stream waiters are non-consuming: every waiter whose read is now
// satisfied is woken.
//
// Data notifications are buffered by NotifyList/NotifyStream and delivered
// by Flush, which the dispatcher calls after the triggering write has been
// propagated.
type Coordinator struct {
	mu      sync.Mutex
	lists   map[string][]*Waiter
	streams map[string][]*Waiter
	pending []signal
	blocked atomic.Int64
}

// NewCoordinator creates an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		lists:   make(map[string][]*Waiter),
		streams: make(map[string][]*Waiter),
	}
}

// BlockLists parks a waiter on every key for list pushes.
func (c *Coordinator) BlockLists(keys []string, try TryFunc) *Waiter {
	return c.register(waitList, keys, try)
}

// BlockStreams parks a waiter on every key for stream appends.
func (c *Coordinator) BlockStreams(keys []string, try TryFunc) *Waiter {
	return c.register(waitStream, keys, try)
}

func (c *Coordinator) register(kind waitKind, keys []string, try TryFunc) *Waiter {
	w := &Waiter{
		coord:  c,
		kind:   kind,
		keys:   dedupe(keys),
		try:    try,
		result: make(chan any, 1),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	queues := c.queues(kind)
	for _, k := range w.keys {
		queues[k] = append(queues[k], w)
	}
	c.blocked.Add(1)
	return w
}

// Blocked returns the number of parked waiters.
func (c *Coordinator) Blocked() int {
	return int(c.blocked.Load())
}

// NotifyList records that key received list elements.
func (c *Coordinator) NotifyList(key string) {
	c.notify(signal{kind: waitList, key: key})
}

// NotifyStream records that key received a stream entry.
func (c *Coordinator) NotifyStream(key string) {
	c.notify(signal{kind: waitStream, key: key})
}

func (c *Coordinator) notify(s signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queues(s.kind)[s.key]) == 0 {
		return
	}
	for _, p := range c.pending {
		if p == s {
			return
		}
	}
	c.pending = append(c.pending, s)
}

// Flush delivers buffered notifications in arrival order.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.pending) > 0 {
		s := c.pending[0]
		c.pending = c.pending[1:]
		if s.kind == waitList {
			c.serveList(s.key)
		} else {
			c.serveStream(s.key)
		}
	}
	c.pending = nil
}

// serveList wakes head waiters while the pop keeps succeeding. A waiter
// whose attempt fails stays at the head of the queue.
func (c *Coordinator) serveList(key string) {
	for {
		q := c.lists[key]
		if len(q) == 0 {
			return
		}
		w := q[0]
		v, ok := w.try(key)
		if !ok {
			return
		}
		c.fulfill(w, v)
	}
}

func (c *Coordinator) serveStream(key string) {
	q := append([]*Waiter(nil), c.streams[key]...)
	for _, w := range q {
		if w.done {
			continue
		}
		if v, ok := w.try(key); ok {
			c.fulfill(w, v)
		}
	}
}

// fulfill resolves w with v. Caller holds c.mu.
func (c *Coordinator) fulfill(w *Waiter, v any) {
	if w.done {
		return
	}
	w.done = true
	c.remove(w)
	w.result <- v
}

// cancel resolves w without a value. It returns false when w had already
// been fulfilled.
func (c *Coordinator) cancel(w *Waiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.done {
		return false
	}
	w.done = true
	c.remove(w)
	return true
}

// remove drops w from every queue it is in. Caller holds c.mu.
func (c *Coordinator) remove(w *Waiter) {
	queues := c.queues(w.kind)
	for _, k := range w.keys {
		q := queues[k]
		for i, other := range q {
			if other == w {
				q = append(q[:i:i], q[i+1:]...)
				break
			}
		}
		if len(q) == 0 {
			delete(queues, k)
		} else {
			queues[k] = q
		}
	}
	c.blocked.Add(-1)
}

func (c *Coordinator) queues(kind waitKind) map[string][]*Waiter {
	if kind == waitList {
		return c.lists
	}
	return c.streams
}

// Wait blocks until the waiter is fulfilled, the timeout elapses or ctx is
// done. A timeout <= 0 waits without limit. ok is false when the waiter was
// cancelled.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) (v any, ok bool) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case v := <-w.result:
		return v, true
	case <-timer:
	case <-ctx.Done():
	}

	if w.coord.cancel(w) {
		return nil, false
	}
	// Lost the race: the value is already buffered.
	return <-w.result, true
}

// Cancel resolves the waiter without a value if it is still parked.
func (w *Waiter) Cancel() bool {
	return w.coord.cancel(w)
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
