package redisserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/respkv/internal/core/service"
	"github.com/yndnr/respkv/internal/storage"
	"github.com/yndnr/respkv/internal/storage/memory"
	"github.com/yndnr/respkv/internal/telemetry/metric"
	"github.com/yndnr/respkv/pkg/resp"
)

// Config holds the RESP server configuration.
type Config struct {
	// Address is the plaintext listen address, e.g. "0.0.0.0:6379".
	Address string

	// TLSAddress enables a second, TLS-wrapped listener when non-empty.
	TLSAddress string
	TLSConfig  *tls.Config

	// ReadTimeout bounds the time to receive the rest of a partially read
	// frame (slowloris protection). 0 disables it.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single reply write. 0 disables it.
	WriteTimeout time.Duration

	// IdleTimeout closes connections idle between commands. 0 disables it.
	IdleTimeout time.Duration

	// RateLimit is the maximum number of commands per second per client IP.
	// 0 disables rate limiting.
	RateLimit int

	// AllowInline accepts telnet-style inline commands.
	AllowInline bool

	// Replication makes this server a replica when PrimaryHost is set.
	Replication ReplicationConfig
}

// ReplicationConfig configures the replica role.
type ReplicationConfig struct {
	PrimaryHost string
	PrimaryPort int

	// ReadOnly rejects client writes while replicating.
	ReadOnly bool

	// TLSConfig dials the primary over TLS when set.
	TLSConfig *tls.Config

	// ReconnectMin and ReconnectMax bound the reconnect backoff.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Address:      "0.0.0.0:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		AllowInline:  true,
		Replication: ReplicationConfig{
			ReadOnly:     true,
			ReconnectMin: 100 * time.Millisecond,
			ReconnectMax: 5 * time.Second,
		},
	}
}

// Deps are the collaborators the server is built on.
type Deps struct {
	// Engine owns the keyspace and the execution lock. Required.
	Engine *storage.Engine

	// Primary tracks replicas. Nil creates one with default settings.
	Primary *service.Primary

	// Metrics records command and connection metrics. Optional.
	Metrics *metric.Registry

	Logger *slog.Logger
}

// Server is the RESP protocol server.
type Server struct {
	cfg     Config
	engine  *storage.Engine
	store   *memory.Store
	metrics *metric.Registry
	logger  *slog.Logger

	lists    *service.ListService
	streams  *service.StreamEngine
	blocking *service.Coordinator
	primary  *service.Primary
	hub      *service.Hub
	limiter  *service.RateLimiterRegistry
	follower *Follower

	startedAt time.Time
	port      atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners []net.Listener
	conns     map[*Conn]struct{}
	running   atomic.Bool
	wg        sync.WaitGroup
}

// New creates a server. It does not listen until Start.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("redisserver: engine is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Primary == nil {
		deps.Primary = service.NewPrimary(service.PrimaryConfig{
			WriteTimeout: cfg.WriteTimeout,
			Logger:       deps.Logger,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		engine:    deps.Engine,
		store:     deps.Engine.Store(),
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		blocking:  service.NewCoordinator(),
		primary:   deps.Primary,
		hub:       service.NewHub(),
		limiter:   service.NewRateLimiterRegistry(cfg.RateLimit),
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[*Conn]struct{}),
	}
	s.lists = service.NewListService(s.store, s.blocking)
	s.streams = service.NewStreamEngine(s.store, s.blocking)

	if cfg.Replication.PrimaryHost != "" {
		s.follower = newFollower(s, cfg.Replication, deps.Logger)
	}
	return s, nil
}

// Start opens the configured listeners and, for a replica, starts the link
// to the primary. Listen errors are returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("redisserver: listen %s: %w", s.cfg.Address, err)
	}
	s.setPort(ln.Addr())
	s.logger.Info("resp server listening", "address", ln.Addr().String())
	s.goServe(ln)

	if s.cfg.TLSAddress != "" {
		if s.cfg.TLSConfig == nil {
			s.closeListeners()
			return errors.New("redisserver: TLS address set without TLS config")
		}
		tln, err := tls.Listen("tcp", s.cfg.TLSAddress, s.cfg.TLSConfig)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("redisserver: listen %s: %w", s.cfg.TLSAddress, err)
		}
		s.logger.Info("resp TLS server listening", "address", tln.Addr().String())
		s.goServe(tln)
	}

	if s.follower != nil {
		s.follower.start(s.ctx)
	}
	return nil
}

func (s *Server) goServe(ln net.Listener) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Serve(ln); err != nil {
			s.logger.Error("accept loop stopped", "address", ln.Addr().String(), "error", err)
		}
	}()
}

func (s *Server) setPort(addr net.Addr) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		s.port.Store(int64(tcp.Port))
	}
}

// Port returns the bound plaintext port, or 0 before Start.
func (s *Server) Port() int {
	return int(s.port.Load())
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.running.Store(true)
	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()
	if s.Port() == 0 {
		s.setPort(ln.Addr())
	}

	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(c)
		}()
	}
}

// ServeConn serves a single connection and returns when it closes.
func (s *Server) ServeConn(nc net.Conn) {
	c := newConn(ulid.Make().String(), nc, s.cfg.WriteTimeout, s.cfg.AllowInline, s.logger)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.metrics.ConnOpened()
	c.logger.Debug("connection opened")

	defer s.closeConn(c)
	s.serveConn(c)
}

func (s *Server) closeConn(c *Conn) {
	if c.replica != nil {
		s.primary.RemoveReplica(c.replica)
	}
	if c.subscribed() {
		s.hub.UnsubscribeAll(c)
	}
	_ = c.Close()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.metrics.ConnClosed()
	c.logger.Debug("connection closed")
}

func (s *Server) serveConn(c *Conn) {
	chunk := make([]byte, readChunk)
	for {
		if !s.drain(c) {
			return
		}

		if err := c.netConn.SetReadDeadline(s.readDeadline(c)); err != nil {
			return
		}
		n, err := c.netConn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
		}
		if err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.As(err, &netErr) && netErr.Timeout():
				c.logger.Debug("connection timed out")
			default:
				c.logger.Debug("connection read error", "error", err)
			}
			return
		}
	}
}

// drain runs every complete frame in the accumulator. It reports false when
// the connection must be closed.
func (s *Server) drain(c *Conn) bool {
	off := 0
	defer func() {
		c.buf = c.buf[:copy(c.buf, c.buf[off:])]
	}()

	for off < len(c.buf) {
		args, n, err := c.parser.Parse(c.buf[off:])
		if err != nil {
			c.logger.Warn("protocol error", "error", err)
			s.metrics.Rejected("protocol")
			_ = c.writeValue(resp.Error("ERR Protocol error: " + err.Error()))
			return false
		}
		if n == 0 {
			return true
		}
		off += n
		if len(args) == 0 {
			continue
		}

		s.handle(c, args)
		if c.quit || c.readErr != nil || c.closed.Load() {
			return false
		}
	}
	return true
}

func (s *Server) readDeadline(c *Conn) time.Time {
	switch {
	case c.replica != nil:
		return time.Time{}
	case len(c.buf) > 0 && s.cfg.ReadTimeout > 0:
		return time.Now().Add(s.cfg.ReadTimeout)
	case len(c.buf) == 0 && s.cfg.IdleTimeout > 0 && !c.subscribed():
		return time.Now().Add(s.cfg.IdleTimeout)
	}
	return time.Time{}
}

// handle runs one frame and writes its reply.
func (s *Server) handle(c *Conn, args []string) {
	name := upper(args[0])

	// A replica link carries only acknowledgements inbound.
	if c.replica != nil {
		if name == "REPLCONF" && len(args) == 3 && upper(args[1]) == "ACK" {
			if off, err := strconv.ParseInt(args[2], 10, 64); err == nil {
				s.primary.Ack(c.replica, off)
			}
		}
		return
	}

	if err := s.limiter.Check(c.clientIP); err != nil {
		s.metrics.Rejected("rate_limit")
		_ = c.writeValue(errorReply(err))
		return
	}

	start := time.Now()
	reply, wait := s.dispatch(c, name, args)
	if wait != nil {
		reply = s.await(c, wait)
		if c.readErr != nil {
			return
		}
	}
	if reply != nil {
		if err := c.writeValue(reply); err != nil {
			c.logger.Debug("write failed", "error", err)
			c.quit = true
		}
	}
	s.metrics.ObserveCommand(metricLabel(name), time.Since(start), isErrorReply(reply))
}

// await runs a deferred reply outside the execution lock. A watcher keeps
// reading the socket so a client that disconnects while parked cancels its
// wait.
func (s *Server) await(c *Conn, wait waitFunc) resp.Value {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var (
		pending  []byte
		stopping atomic.Bool
		done     = make(chan struct{})
	)
	_ = c.netConn.SetReadDeadline(time.Time{})
	go func() {
		defer close(done)
		chunk := make([]byte, readChunk)
		for {
			n, err := c.netConn.Read(chunk)
			if n > 0 {
				pending = append(pending, chunk[:n]...)
			}
			if err != nil {
				if !stopping.Load() {
					c.readErr = err
					cancel()
				}
				return
			}
		}
	}()

	v := wait(ctx)

	stopping.Store(true)
	_ = c.netConn.SetReadDeadline(time.Now())
	<-done
	if c.readErr != nil {
		c.logger.Debug("client left while blocked", "error", c.readErr)
	}
	c.buf = append(c.buf, pending...)
	return v
}

// Shutdown stops accepting, disconnects clients, stops the replica link and
// waits for connection goroutines until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	s.cancel()
	firstErr := s.closeListeners()

	if s.follower != nil {
		s.follower.stop()
	}

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) closeListeners() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) && firstErr == nil {
			firstErr = err
		}
	}
	s.listeners = nil
	return firstErr
}

// Primary returns the replication state of the primary role.
func (s *Server) Primary() *service.Primary {
	return s.primary
}

// Follower returns the replica link, or nil on a primary.
func (s *Server) Follower() *Follower {
	return s.follower
}

// Role returns "master" or "slave", as INFO reports it.
func (s *Server) Role() string {
	if s.follower != nil {
		return "slave"
	}
	return "master"
}

// Ready reports whether the server serves current data: always on a
// primary, and on a replica once the link is up.
func (s *Server) Ready() bool {
	return s.follower == nil || s.follower.Status().Up
}

func (s *Server) readOnly() bool {
	return s.follower != nil && s.cfg.Replication.ReadOnly
}

// Stats samples server state for the metrics collector.
func (s *Server) Stats() metric.Stats {
	st := s.store.Stats()
	offset := s.primary.Offset()
	if s.follower != nil {
		offset = s.follower.Offset()
	}
	return metric.Stats{
		Role:              s.Role(),
		Keys:              st.Keys,
		Expires:           st.Expiring,
		BlockedClients:    s.blocking.Blocked(),
		ConnectedReplicas: s.primary.ReplicaCount(),
		ReplicationOffset: offset,
		PubSubChannels:    len(s.hub.Channels()),
	}
}

// NumConns returns the number of open client connections.
func (s *Server) NumConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
