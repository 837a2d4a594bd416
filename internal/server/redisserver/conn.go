package redisserver

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/respkv/internal/core/service"
	"github.com/yndnr/respkv/pkg/resp"
)

const readChunk = 16 * 1024

// Conn is one client connection and its session state.
//
// The session fields are owned by the connection goroutine; the dispatcher
// touches them only while that goroutine is inside dispatch.
type Conn struct {
	id       string
	netConn  net.Conn
	clientIP string
	logger   *slog.Logger

	writeTimeout time.Duration
	wmu          sync.Mutex
	closed       atomic.Bool

	parser resp.Parser
	buf    []byte // inbound bytes not yet parsed

	// Transaction state.
	inMulti  bool
	queued   [][]string
	txFailed bool

	// Pub/sub state.
	subs map[string]struct{}

	// Replication state. listeningPort comes from REPLCONF; replica is set
	// by PSYNC, after which the connection only carries REPLCONF ACKs
	// inbound and propagated frames outbound.
	listeningPort string
	replica       *service.Replica

	quit    bool
	readErr error // set when a blocked client disconnected
}

func newConn(id string, c net.Conn, writeTimeout time.Duration, allowInline bool, logger *slog.Logger) *Conn {
	ip := c.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return &Conn{
		id:           id,
		netConn:      c,
		clientIP:     ip,
		writeTimeout: writeTimeout,
		parser:       resp.Parser{AllowInline: allowInline},
		logger:       logger.With("conn_id", id, "remote_addr", c.RemoteAddr().String()),
	}
}

// ID identifies the connection. It implements service.Subscriber.
func (c *Conn) ID() string { return c.id }

// Write sends p under the connection write lock. It implements
// service.ReplicaConn.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.netConn.Write(p)
}

// Close closes the socket once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

// Deliver writes a pub/sub message. It implements service.Subscriber.
func (c *Conn) Deliver(channel, message string) {
	msg := resp.BulkStrings("message", channel, message)
	if _, err := c.Write(resp.Encode(msg)); err != nil {
		c.logger.Debug("pubsub delivery failed", "channel", channel, "error", err)
	}
}

func (c *Conn) writeValue(v resp.Value) error {
	_, err := c.Write(v.AppendRESP(nil))
	return err
}

func (c *Conn) resetTx() {
	c.inMulti = false
	c.queued = nil
	c.txFailed = false
}

func (c *Conn) subscribed() bool {
	return len(c.subs) > 0
}
