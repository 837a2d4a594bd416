package domain

// List is the payload of a list value. Index 0 is the head.
type List struct {
	items []string
}

// NewList returns a list holding items in order.
func NewList(items ...string) *List {
	return &List{items: append([]string(nil), items...)}
}

// Len returns the number of elements.
func (l *List) Len() int {
	return len(l.items)
}

// PushBack appends values at the tail and returns the new length.
func (l *List) PushBack(values ...string) int {
	l.items = append(l.items, values...)
	return len(l.items)
}

// PushFront inserts values at the head one at a time, so the last value ends
// up first, and returns the new length.
func (l *List) PushFront(values ...string) int {
	head := make([]string, 0, len(values)+len(l.items))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	l.items = append(head, l.items...)
	return len(l.items)
}

// PopFront removes and returns up to n elements from the head.
func (l *List) PopFront(n int) []string {
	if n > len(l.items) {
		n = len(l.items)
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, n)
	copy(out, l.items[:n])
	clear(l.items[:n])
	l.items = l.items[n:]
	return out
}

// Range returns elements between start and stop inclusive. Negative indexes
// count from the tail, out-of-range bounds are clamped.
func (l *List) Range(start, stop int) []string {
	n := len(l.items)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []string{}
	}
	out := make([]string, stop-start+1)
	copy(out, l.items[start:stop+1])
	return out
}

// Items returns a copy of all elements.
func (l *List) Items() []string {
	return append([]string(nil), l.items...)
}
