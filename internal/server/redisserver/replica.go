package redisserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/respkv/pkg/resp"
)

const (
	dialTimeout = 5 * time.Second

	// syncTimeout bounds the handshake and the snapshot transfer.
	syncTimeout = 60 * time.Second
)

// Follower is the replica side of replication: it performs the handshake,
// loads the primary's snapshot and applies the propagated command stream.
// It reconnects with exponential backoff when the link drops.
type Follower struct {
	srv    *Server
	cfg    ReplicationConfig
	addr   string
	logger *slog.Logger

	offset atomic.Int64 // bytes of the command stream processed
	linkUp atomic.Bool

	mu     sync.Mutex
	replID string
	cancel context.CancelFunc
	done   chan struct{}
}

// FollowerStatus is a point-in-time view of the replica link.
type FollowerStatus struct {
	Host   string
	Port   int
	Up     bool
	Offset int64
	ReplID string
}

// LinkStatus returns "up" or "down", as INFO reports it.
func (s FollowerStatus) LinkStatus() string {
	if s.Up {
		return "up"
	}
	return "down"
}

func newFollower(srv *Server, cfg ReplicationConfig, logger *slog.Logger) *Follower {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 100 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	addr := net.JoinHostPort(cfg.PrimaryHost, strconv.Itoa(cfg.PrimaryPort))
	return &Follower{
		srv:    srv,
		cfg:    cfg,
		addr:   addr,
		logger: logger.With("primary", addr),
	}
}

func (f *Follower) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	f.mu.Lock()
	f.cancel = cancel
	f.done = make(chan struct{})
	done := f.done
	f.mu.Unlock()

	go func() {
		defer close(done)
		f.run(ctx)
	}()
}

func (f *Follower) stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Offset returns the number of stream bytes processed since the last full
// resync.
func (f *Follower) Offset() int64 {
	return f.offset.Load()
}

// Status returns the link state.
func (f *Follower) Status() FollowerStatus {
	f.mu.Lock()
	replID := f.replID
	f.mu.Unlock()
	return FollowerStatus{
		Host:   f.cfg.PrimaryHost,
		Port:   f.cfg.PrimaryPort,
		Up:     f.linkUp.Load(),
		Offset: f.offset.Load(),
		ReplID: replID,
	}
}

func (f *Follower) run(ctx context.Context) {
	backoff := f.cfg.ReconnectMin
	for {
		synced, err := f.sync(ctx)
		f.linkUp.Store(false)
		if ctx.Err() != nil {
			return
		}
		if synced {
			backoff = f.cfg.ReconnectMin
		}
		f.logger.Warn("replication link down", "error", err, "retry_in", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff = min(backoff*2, f.cfg.ReconnectMax)
	}
}

func (f *Follower) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: dialTimeout}
	if f.cfg.TLSConfig != nil {
		td := &tls.Dialer{NetDialer: d, Config: f.cfg.TLSConfig}
		return td.DialContext(ctx, "tcp", f.addr)
	}
	return d.DialContext(ctx, "tcp", f.addr)
}

// sync runs one connection: handshake, snapshot load, then the command
// stream until it fails. synced reports whether the snapshot was loaded.
func (f *Follower) sync(ctx context.Context) (synced bool, err error) {
	conn, err := f.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetDeadline(time.Now().Add(syncTimeout))
	rd := resp.NewReader(conn)
	replID, err := f.handshake(conn, rd)
	if err != nil {
		return false, err
	}

	payload, err := rd.ReadPayload()
	if err != nil {
		return false, fmt.Errorf("read snapshot: %w", err)
	}
	n, err := f.srv.engine.Load(payload)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	f.mu.Lock()
	f.replID = replID
	f.mu.Unlock()
	f.offset.Store(0)
	f.linkUp.Store(true)
	f.logger.Info("full resync complete", "repl_id", replID, "keys", n, "snapshot_bytes", len(payload))

	return true, f.stream(conn, rd.Buffered())
}

// handshake performs PING, REPLCONF listening-port, REPLCONF capa and PSYNC,
// each gated on the previous reply, and returns the primary's replication
// ID.
func (f *Follower) handshake(conn net.Conn, rd *resp.Reader) (string, error) {
	port := strconv.Itoa(f.srv.Port())
	steps := []struct {
		args []string
		want string
	}{
		{[]string{"PING"}, "PONG"},
		{[]string{"REPLCONF", "listening-port", port}, "OK"},
		{[]string{"REPLCONF", "capa", "psync2"}, "OK"},
	}
	for _, step := range steps {
		reply, err := roundTrip(conn, rd, step.args...)
		if err != nil {
			return "", err
		}
		if !strings.EqualFold(reply, step.want) {
			return "", fmt.Errorf("%s: unexpected reply %q", step.args[0], reply)
		}
	}

	reply, err := roundTrip(conn, rd, "PSYNC", "?", "-1")
	if err != nil {
		return "", err
	}
	fields := strings.Fields(reply)
	if len(fields) != 3 || upper(fields[0]) != "FULLRESYNC" {
		return "", fmt.Errorf("PSYNC: unexpected reply %q", reply)
	}
	return fields[1], nil
}

// roundTrip sends a command and returns the simple string reply.
func roundTrip(conn net.Conn, rd *resp.Reader, args ...string) (string, error) {
	if _, err := conn.Write(resp.EncodeCommand(args...)); err != nil {
		return "", fmt.Errorf("%s: %w", args[0], err)
	}
	v, err := rd.ReadValue()
	if err != nil {
		return "", fmt.Errorf("%s: %w", args[0], err)
	}
	switch v := v.(type) {
	case resp.SimpleString:
		return string(v), nil
	case resp.Error:
		return "", fmt.Errorf("%s: %s", args[0], string(v))
	default:
		return "", fmt.Errorf("%s: unexpected reply type %T", args[0], v)
	}
}

// stream applies propagated frames. The offset advances by each frame's
// exact size, after a GETACK is answered with the offset that precedes it.
func (f *Follower) stream(conn net.Conn, pending []byte) error {
	buf := append([]byte(nil), pending...)
	chunk := make([]byte, readChunk)
	var parser resp.Parser

	for {
		off := 0
		for off < len(buf) {
			args, n, err := parser.Parse(buf[off:])
			if err != nil {
				return fmt.Errorf("replication stream: %w", err)
			}
			if n == 0 {
				break
			}
			off += n

			if isGetAck(args) {
				ack := resp.EncodeCommand("REPLCONF", "ACK", strconv.FormatInt(f.offset.Load(), 10))
				if _, err := conn.Write(ack); err != nil {
					return fmt.Errorf("send ack: %w", err)
				}
			} else if len(args) > 0 {
				f.srv.applyReplicated(args)
			}
			f.offset.Add(int64(n))
		}
		buf = buf[:copy(buf, buf[off:])]

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func isGetAck(args []string) bool {
	return len(args) == 3 && upper(args[0]) == "REPLCONF" && upper(args[1]) == "GETACK"
}
