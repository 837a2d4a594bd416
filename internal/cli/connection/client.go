package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/yndnr/respkv/pkg/resp"
)

// Default timeouts.
const (
	DefaultDialTimeout = 5 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// ErrClosed is returned by a Client after Close.
var ErrClosed = errors.New("connection closed")

// Options configures a RESP connection.
type Options struct {
	// Network is "tcp" (the default) or "unix".
	Network     string
	Addr        string
	TLSConfig   *tls.Config // nil for plain TCP
	DialTimeout time.Duration
	// Timeout bounds each request when the context has no deadline.
	// Zero waits forever, which blocking commands need.
	Timeout time.Duration
}

// Client is a single RESP connection. Calls are serialized.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	rd      *resp.Reader
	addr    string
	timeout time.Duration
	closed  bool
}

// Dial connects to opts.Addr over opts.Network.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	network := opts.Network
	if network == "" {
		network = "tcp"
	}

	var (
		conn net.Conn
		err  error
	)
	if opts.TLSConfig != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: opts.TLSConfig}
		conn, err = td.DialContext(ctx, network, opts.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, network, opts.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}

	return newClient(conn, opts.Addr, opts.Timeout), nil
}

func newClient(conn net.Conn, addr string, timeout time.Duration) *Client {
	return &Client{
		conn:    conn,
		rd:      resp.NewReader(conn),
		addr:    addr,
		timeout: timeout,
	}
}

// Addr returns the address the client dialed.
func (c *Client) Addr() string {
	return c.addr
}

// Do sends one command and waits for its reply. Server errors come back as
// a resp.Error value, not a Go error; Go errors mean the connection is no
// longer usable.
func (c *Client) Do(ctx context.Context, args ...string) (resp.Value, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	stop := c.watch(ctx)
	defer stop()
	if _, err := c.conn.Write(resp.EncodeCommand(args...)); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	v, err := c.rd.ReadValue()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return v, nil
}

// Receive waits for the next pushed message, as delivered after SUBSCRIBE.
func (c *Client) Receive(ctx context.Context) (resp.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	stop := c.watch(ctx)
	defer stop()
	return c.rd.ReadValue()
}

// watch sets the I/O deadline for one request and interrupts blocked I/O
// when ctx is cancelled.
func (c *Client) watch(ctx context.Context) (stop func() bool) {
	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	c.conn.SetDeadline(deadline)
	return context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// ReplyError converts an error reply into a Go error, or returns nil.
func ReplyError(v resp.Value) error {
	if e, ok := v.(resp.Error); ok {
		return errors.New(string(e))
	}
	return nil
}
