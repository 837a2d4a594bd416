package service

import (
	"github.com/yndnr/respkv/internal/core/domain"
)

// ListService implements list operations over a Keyspace. Lists that become
// empty are deleted.
type ListService struct {
	ks       Keyspace
	notifier Notifier
}

// NewListService creates a ListService. notifier may be nil.
func NewListService(ks Keyspace, notifier Notifier) *ListService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ListService{ks: ks, notifier: notifier}
}

func (s *ListService) list(key string) (*domain.List, error) {
	v, ok := s.ks.Get(key)
	if !ok {
		return nil, nil
	}
	if v.Kind != domain.KindList {
		return nil, domain.ErrWrongType
	}
	return v.List, nil
}

// Push adds values at the head (front) or tail and returns the new length.
func (s *ListService) Push(key string, front bool, values ...string) (int, error) {
	l, err := s.list(key)
	if err != nil {
		return 0, err
	}
	if l == nil {
		l = domain.NewList()
		s.ks.Set(key, domain.NewListValue(l))
	}

	var n int
	if front {
		n = l.PushFront(values...)
	} else {
		n = l.PushBack(values...)
	}
	s.notifier.NotifyList(key)
	return n, nil
}

// Pop removes up to count elements from the head.
func (s *ListService) Pop(key string, count int) ([]string, error) {
	l, err := s.list(key)
	if err != nil || l == nil {
		return nil, err
	}
	out := l.PopFront(count)
	if l.Len() == 0 {
		s.ks.Delete(key)
	}
	return out, nil
}

// Range returns elements between start and stop inclusive.
func (s *ListService) Range(key string, start, stop int) ([]string, error) {
	l, err := s.list(key)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return []string{}, nil
	}
	return l.Range(start, stop), nil
}

// Len returns the list length, 0 when absent.
func (s *ListService) Len(key string) (int, error) {
	l, err := s.list(key)
	if err != nil || l == nil {
		return 0, err
	}
	return l.Len(), nil
}
