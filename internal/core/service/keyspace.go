package service

import (
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
)

// Keyspace is the storage interface the engines operate on.
type Keyspace interface {
	// Get returns the live value at key.
	Get(key string) (*domain.Value, bool)

	// Set stores v under key.
	Set(key string, v *domain.Value)

	// Delete removes key.
	Delete(key string) bool

	// Now returns the keyspace clock.
	Now() time.Time
}

// Notifier receives "new data" events for keys.
type Notifier interface {
	NotifyList(key string)
	NotifyStream(key string)
}

type nopNotifier struct{}

func (nopNotifier) NotifyList(string)   {}
func (nopNotifier) NotifyStream(string) {}
