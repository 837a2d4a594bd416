package cmap

// Item is a key-value pair returned by Items.
type Item[V any] struct {
	Key   string
	Value V
}

// Range calls fn for every key-value pair until fn returns false.
// fn must not call back into the map's write methods.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns all keys.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Items returns all key-value pairs as a slice.
func (m *Map[V]) Items() []Item[V] {
	items := make([]Item[V], 0, m.Count())
	m.Range(func(key string, value V) bool {
		items = append(items, Item[V]{Key: key, Value: value})
		return true
	})
	return items
}

// Update atomically replaces the value for key with fn's result.
// When fn returns keep=false the key is removed instead.
func (m *Map[V]) Update(key string, fn func(value V, exists bool) (V, bool)) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.items[key]
	next, keep := fn(existing, exists)
	if !keep {
		delete(s.items, key)
		return
	}
	s.items[key] = next
}
