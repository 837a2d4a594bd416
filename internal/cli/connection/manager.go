package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"

	"github.com/yndnr/respkv/pkg/resp"
)

// ErrNoAdmin is returned when no admin address is configured.
var ErrNoAdmin = errors.New("admin address not configured (set --admin)")

// Manager owns the connections of one CLI session. The RESP connection is
// dialed on first use and redialed after a transport failure.
type Manager struct {
	mu     sync.Mutex
	opts   Options
	client *Client
	admin  *AdminClient
}

// NewManager creates a manager. adminAddr may be empty; adminTLS selects
// https for the admin API.
func NewManager(opts Options, adminAddr string, adminTLS *tls.Config) *Manager {
	m := &Manager{opts: opts}
	if adminAddr != "" {
		m.admin = NewAdminClient(adminAddr, adminTLS)
	}
	return m
}

// Options returns the RESP connection options.
func (m *Manager) Options() Options {
	return m.opts
}

// Client returns the live RESP connection, dialing it if needed.
func (m *Manager) Client(ctx context.Context) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}
	c, err := Dial(ctx, m.opts)
	if err != nil {
		return nil, err
	}
	m.client = c
	return c, nil
}

// Do runs one command. A transport failure drops the connection so the
// next call redials; the failed command is not retried.
func (m *Manager) Do(ctx context.Context, args ...string) (resp.Value, error) {
	c, err := m.Client(ctx)
	if err != nil {
		return nil, err
	}
	v, err := c.Do(ctx, args...)
	if err != nil {
		m.drop(c)
		return nil, err
	}
	return v, nil
}

// Receive waits for a pushed message on the current connection.
func (m *Manager) Receive(ctx context.Context) (resp.Value, error) {
	c, err := m.Client(ctx)
	if err != nil {
		return nil, err
	}
	v, err := c.Receive(ctx)
	if err != nil {
		m.drop(c)
		return nil, err
	}
	return v, nil
}

func (m *Manager) drop(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == c {
		m.client = nil
	}
	c.Close()
}

// Reset drops the current RESP connection.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
}

// Admin returns the admin client.
func (m *Manager) Admin() (*AdminClient, error) {
	if m.admin == nil {
		return nil, ErrNoAdmin
	}
	return m.admin, nil
}

// IsConnected reports whether a RESP connection is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

// Close closes any open connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}
