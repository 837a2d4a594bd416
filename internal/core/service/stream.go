package service

import (
	"github.com/yndnr/respkv/internal/core/domain"
)

// StreamEngine implements stream operations over a Keyspace.
type StreamEngine struct {
	ks       Keyspace
	notifier Notifier
}

// NewStreamEngine creates a StreamEngine. notifier may be nil.
func NewStreamEngine(ks Keyspace, notifier Notifier) *StreamEngine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &StreamEngine{ks: ks, notifier: notifier}
}

// stream returns the stream at key, nil when absent.
func (e *StreamEngine) stream(key string) (*domain.Value, error) {
	v, ok := e.ks.Get(key)
	if !ok {
		return nil, nil
	}
	if v.Kind != domain.KindStream {
		return nil, domain.ErrWrongType
	}
	return v, nil
}

// Append resolves requested against the stream's last ID and appends an
// entry with the given flattened field/value pairs. The stream is created on
// first append; an existing expiry is preserved.
func (e *StreamEngine) Append(key, requested string, fields []string) (domain.StreamID, error) {
	req, err := domain.ParseRequestedID(requested)
	if err != nil {
		return domain.StreamID{}, err
	}

	v, err := e.stream(key)
	if err != nil {
		return domain.StreamID{}, err
	}

	var s *domain.Stream
	if v != nil {
		s = v.Stream
	} else {
		s = domain.NewStream()
	}

	last, hasLast := s.LastID()
	id, err := req.Resolve(last, hasLast, uint64(e.ks.Now().UnixMilli()))
	if err != nil {
		return domain.StreamID{}, err
	}
	if err := s.Append(id, fields); err != nil {
		return domain.StreamID{}, err
	}

	if v == nil {
		e.ks.Set(key, domain.NewStreamValue(s))
	}
	e.notifier.NotifyStream(key)
	return id, nil
}

// Range returns entries with start <= ID <= end.
func (e *StreamEngine) Range(key string, start, end domain.StreamID) ([]domain.StreamEntry, error) {
	v, err := e.stream(key)
	if err != nil || v == nil {
		return nil, err
	}
	return v.Stream.Range(start, end), nil
}

// RevRange returns entries with start <= ID <= end, newest first, capped at
// count when count > 0.
func (e *StreamEngine) RevRange(key string, start, end domain.StreamID, count int) ([]domain.StreamEntry, error) {
	entries, err := e.Range(key, start, end)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if count > 0 && len(entries) > count {
		entries = entries[:count]
	}
	return entries, nil
}

// After returns entries with ID strictly greater than id, capped at count
// when count > 0.
func (e *StreamEngine) After(key string, id domain.StreamID, count int) ([]domain.StreamEntry, error) {
	v, err := e.stream(key)
	if err != nil || v == nil {
		return nil, err
	}
	entries := v.Stream.After(id)
	if count > 0 && len(entries) > count {
		entries = entries[:count]
	}
	return entries, nil
}

// LastID returns the newest ID of the stream at key, 0-0 when the key is
// absent or the stream is empty.
func (e *StreamEngine) LastID(key string) (domain.StreamID, error) {
	v, err := e.stream(key)
	if err != nil || v == nil {
		return domain.StreamID{}, err
	}
	id, _ := v.Stream.LastID()
	return id, nil
}

// Len returns the number of entries in the stream at key.
func (e *StreamEngine) Len(key string) (int, error) {
	v, err := e.stream(key)
	if err != nil || v == nil {
		return 0, err
	}
	return v.Stream.Len(), nil
}
