package service

import (
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
)

// mockKeyspace is a map-backed Keyspace with a settable clock.
type mockKeyspace struct {
	data map[string]*domain.Value
	now  time.Time
}

func newMockKeyspace() *mockKeyspace {
	return &mockKeyspace{
		data: make(map[string]*domain.Value),
		now:  time.UnixMilli(1_700_000_000_000),
	}
}

func (m *mockKeyspace) Get(key string) (*domain.Value, bool) {
	v, ok := m.data[key]
	if !ok || v.IsExpired(m.now) {
		return nil, false
	}
	return v, true
}

func (m *mockKeyspace) Set(key string, v *domain.Value) { m.data[key] = v }

func (m *mockKeyspace) Delete(key string) bool {
	_, ok := m.data[key]
	delete(m.data, key)
	return ok
}

func (m *mockKeyspace) Now() time.Time { return m.now }

// recordingNotifier records notifications in order.
type recordingNotifier struct {
	lists   []string
	streams []string
}

func (r *recordingNotifier) NotifyList(key string)   { r.lists = append(r.lists, key) }
func (r *recordingNotifier) NotifyStream(key string) { r.streams = append(r.streams, key) }
