package service

import (
	"context"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Coordinator - list waiters
// ============================================================================

func TestCoordinator_ListFIFO(t *testing.T) {
	c := NewCoordinator()
	ks := newMockKeyspace()
	lists := NewListService(ks, c)

	pop := func(key string) (any, bool) {
		items, err := lists.Pop(key, 1)
		if err != nil || len(items) == 0 {
			return nil, false
		}
		return items[0], true
	}

	first := c.BlockLists([]string{"q"}, pop)
	second := c.BlockLists([]string{"q"}, pop)
	if c.Blocked() != 2 {
		t.Fatalf("Blocked = %d, want 2", c.Blocked())
	}

	lists.Push("q", false, "a")
	c.Flush()

	v, ok := first.Wait(context.Background(), time.Second)
	if !ok || v != "a" {
		t.Fatalf("first waiter = %v, %v; want a", v, ok)
	}

	select {
	case v := <-second.result:
		t.Fatalf("second waiter woke with %v", v)
	default:
	}

	lists.Push("q", false, "b")
	c.Flush()
	v, ok = second.Wait(context.Background(), time.Second)
	if !ok || v != "b" {
		t.Fatalf("second waiter = %v, %v; want b", v, ok)
	}
	if c.Blocked() != 0 {
		t.Errorf("Blocked = %d, want 0", c.Blocked())
	}
}

func TestCoordinator_MultiplePushServesSeveral(t *testing.T) {
	c := NewCoordinator()
	lists := NewListService(newMockKeyspace(), c)
	pop := func(key string) (any, bool) {
		items, _ := lists.Pop(key, 1)
		if len(items) == 0 {
			return nil, false
		}
		return items[0], true
	}

	w1 := c.BlockLists([]string{"q"}, pop)
	w2 := c.BlockLists([]string{"q"}, pop)
	w3 := c.BlockLists([]string{"q"}, pop)

	lists.Push("q", false, "a", "b")
	c.Flush()

	if v, _ := w1.Wait(context.Background(), time.Second); v != "a" {
		t.Errorf("w1 = %v", v)
	}
	if v, _ := w2.Wait(context.Background(), time.Second); v != "b" {
		t.Errorf("w2 = %v", v)
	}
	if _, ok := w3.Wait(context.Background(), 10*time.Millisecond); ok {
		t.Error("w3 should time out")
	}
}

func TestCoordinator_MultiKeyWaiterResolvedOnce(t *testing.T) {
	c := NewCoordinator()
	lists := NewListService(newMockKeyspace(), c)
	var calls int
	pop := func(key string) (any, bool) {
		items, _ := lists.Pop(key, 1)
		if len(items) == 0 {
			return nil, false
		}
		calls++
		return key + ":" + items[0], true
	}

	w := c.BlockLists([]string{"a", "b", "a"}, pop)
	lists.Push("a", false, "1")
	lists.Push("b", false, "2")
	c.Flush()

	v, ok := w.Wait(context.Background(), time.Second)
	if !ok || v != "a:1" {
		t.Fatalf("Wait = %v, %v", v, ok)
	}
	if calls != 1 {
		t.Errorf("try succeeded %d times, want 1", calls)
	}
	if n, _ := lists.Len("b"); n != 1 {
		t.Errorf("b should keep its element, len = %d", n)
	}
}

func TestCoordinator_NotifyWithoutWaiters(t *testing.T) {
	c := NewCoordinator()
	c.NotifyList("x")
	c.NotifyStream("x")
	if len(c.pending) != 0 {
		t.Errorf("pending = %v, want none", c.pending)
	}
}

// ============================================================================
// Coordinator - stream waiters
// ============================================================================

func TestCoordinator_StreamWakesAll(t *testing.T) {
	c := NewCoordinator()
	streams := NewStreamEngine(newMockKeyspace(), c)

	read := func(key string) (any, bool) {
		entries, _ := streams.After(key, id(0, 0), 0)
		if len(entries) == 0 {
			return nil, false
		}
		return len(entries), true
	}

	w1 := c.BlockStreams([]string{"s"}, read)
	w2 := c.BlockStreams([]string{"s"}, read)

	streams.Append("s", "1-1", []string{"f", "v"})
	c.Flush()

	for i, w := range []*Waiter{w1, w2} {
		v, ok := w.Wait(context.Background(), time.Second)
		if !ok || v != 1 {
			t.Errorf("waiter %d = %v, %v", i, v, ok)
		}
	}
}

// ============================================================================
// Waiter - timeout and cancellation
// ============================================================================

func TestWaiter_Timeout(t *testing.T) {
	c := NewCoordinator()
	w := c.BlockLists([]string{"q"}, func(string) (any, bool) { return nil, false })

	start := time.Now()
	_, ok := w.Wait(context.Background(), 20*time.Millisecond)
	if ok {
		t.Fatal("expected timeout")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("returned before timeout")
	}
	if c.Blocked() != 0 || len(c.lists) != 0 {
		t.Error("timed out waiter should be removed")
	}
}

func TestWaiter_ContextCancel(t *testing.T) {
	c := NewCoordinator()
	w := c.BlockLists([]string{"q"}, func(string) (any, bool) { return "x", true })

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var ok bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok = w.Wait(ctx, 0)
	}()
	cancel()
	wg.Wait()

	if ok {
		t.Error("cancelled wait reported success")
	}

	// A late notification must not resurrect the waiter.
	c.NotifyList("q")
	c.Flush()
	if c.Blocked() != 0 {
		t.Errorf("Blocked = %d", c.Blocked())
	}
}

func TestWaiter_CancelAfterFulfil(t *testing.T) {
	c := NewCoordinator()
	w := c.BlockLists([]string{"q"}, func(string) (any, bool) { return "v", true })

	c.NotifyList("q")
	c.Flush()

	if w.Cancel() {
		t.Error("Cancel should report false after fulfilment")
	}
	v, ok := w.Wait(context.Background(), time.Millisecond)
	if !ok || v != "v" {
		t.Errorf("Wait = %v, %v", v, ok)
	}
}
