package memory

import (
	"path"
	"sort"
	"sync/atomic"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/pkg/cmap"
)

// Entry is a key and its value, as returned by Entries.
type Entry struct {
	Key   string
	Value *domain.Value
}

// Stats reports keyspace counters.
type Stats struct {
	Keys     int
	Expiring int
	Expired  uint64 // keys removed because they expired
}

// Store is the keyspace. Command execution is serialized by the caller, so
// values handed out by Get may be mutated in place by that caller; the map
// itself is safe for concurrent readers such as the metrics collector.
type Store struct {
	data    *cmap.Map[*domain.Value]
	now     func() time.Time
	expired atomic.Uint64
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithShardCount sets the number of map shards.
func WithShardCount(n int) Option {
	return func(s *Store) {
		s.data = cmap.New[*domain.Value](cmap.WithShardCount(n))
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		data: cmap.New[*domain.Value](),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Get returns the live value for key. An expired value is deleted and
// reported as missing.
func (s *Store) Get(key string) (*domain.Value, bool) {
	v, ok := s.data.Get(key)
	if !ok {
		return nil, false
	}
	if v.IsExpired(s.now()) {
		s.expire(key)
		return nil, false
	}
	return v, true
}

// Set stores v under key, replacing any previous value.
func (s *Store) Set(key string, v *domain.Value) {
	s.data.Set(key, v)
}

// Delete removes key and reports whether a live value was removed.
func (s *Store) Delete(key string) bool {
	v, ok := s.data.Get(key)
	if !ok {
		return false
	}
	if v.IsExpired(s.now()) {
		s.expire(key)
		return false
	}
	return s.data.Delete(key)
}

// Exists reports whether key holds a live value.
func (s *Store) Exists(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Type returns the kind stored at key, KindNone when absent.
func (s *Store) Type(key string) domain.Kind {
	v, ok := s.Get(key)
	if !ok {
		return domain.KindNone
	}
	return v.Kind
}

// Keys returns live keys matching a glob pattern, sorted. An empty pattern
// or "*" matches everything.
func (s *Store) Keys(pattern string) []string {
	now := s.now()
	var keys, dead []string
	s.data.Range(func(key string, v *domain.Value) bool {
		if v.IsExpired(now) {
			dead = append(dead, key)
			return true
		}
		if pattern == "" || pattern == "*" {
			keys = append(keys, key)
			return true
		}
		if ok, err := path.Match(pattern, key); err == nil && ok {
			keys = append(keys, key)
		}
		return true
	})
	for _, key := range dead {
		s.expire(key)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns all live key/value pairs sorted by key.
func (s *Store) Entries() []Entry {
	now := s.now()
	var out []Entry
	var dead []string
	s.data.Range(func(key string, v *domain.Value) bool {
		if v.IsExpired(now) {
			dead = append(dead, key)
			return true
		}
		out = append(out, Entry{Key: key, Value: v})
		return true
	})
	for _, key := range dead {
		s.expire(key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of live keys. Expired keys it passes over are
// deleted.
func (s *Store) Len() int {
	now := s.now()
	n := 0
	var dead []string
	s.data.Range(func(key string, v *domain.Value) bool {
		if v.IsExpired(now) {
			dead = append(dead, key)
		} else {
			n++
		}
		return true
	})
	for _, key := range dead {
		s.expire(key)
	}
	return n
}

// Flush removes every key.
func (s *Store) Flush() {
	s.data.Clear()
}

// Replace swaps the whole keyspace for entries, skipping values that are
// already expired.
func (s *Store) Replace(entries []Entry) {
	now := s.now()
	s.data.Clear()
	for _, e := range entries {
		if e.Value == nil || e.Value.IsExpired(now) {
			continue
		}
		s.data.Set(e.Key, e.Value)
	}
}

// Sweep deletes up to limit expired keys and returns how many it removed.
// limit <= 0 means no limit.
func (s *Store) Sweep(limit int) int {
	now := s.now()
	var dead []string
	s.data.Range(func(key string, v *domain.Value) bool {
		if v.IsExpired(now) {
			dead = append(dead, key)
		}
		return limit <= 0 || len(dead) < limit
	})
	removed := 0
	for _, key := range dead {
		if s.expire(key) {
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of keyspace counters.
func (s *Store) Stats() Stats {
	st := Stats{Expired: s.expired.Load()}
	now := s.now()
	s.data.Range(func(_ string, v *domain.Value) bool {
		if v.IsExpired(now) {
			return true
		}
		st.Keys++
		if v.HasExpiry() {
			st.Expiring++
		}
		return true
	})
	return st
}

func (s *Store) expire(key string) bool {
	now := s.now()
	ok := s.data.DeleteIf(key, func(v *domain.Value) bool {
		return v.IsExpired(now)
	})
	if ok {
		s.expired.Add(1)
	}
	return ok
}
