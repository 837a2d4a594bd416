package localserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
)

// ConnServer serves one client connection until it closes.
type ConnServer interface {
	ServeConn(net.Conn)
}

// Config configures the socket listener.
type Config struct {
	// Path is the socket file.
	Path string

	// Perm is applied to the socket file after binding. Zero means 0700.
	Perm os.FileMode
}

// Server accepts connections on a Unix socket.
type Server struct {
	cfg      Config
	handler  ConnServer
	logger   *slog.Logger
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// New creates a Server. Call Listen then Serve.
func New(cfg Config, handler ConnServer, logger *slog.Logger) *Server {
	if cfg.Perm == 0 {
		cfg.Perm = 0o700
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "unixsocket"),
	}
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.cfg.Path
}

// Listen binds the socket, replacing a stale socket file left by a previous
// run. A regular file at the path is never removed.
func (s *Server) Listen() error {
	if err := removeStale(s.cfg.Path); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.cfg.Path)
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", s.cfg.Path, err)
	}
	if err := os.Chmod(s.cfg.Path, s.cfg.Perm); err != nil {
		ln.Close()
		return fmt.Errorf("chmod %s: %w", s.cfg.Path, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.running.Store(true)
	return nil
}

func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// Serve accepts connections until Close. It returns nil once closed.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("localserver: Serve called before Listen")
	}

	s.logger.Info("unix socket listening", "path", s.cfg.Path, "perm", fmt.Sprintf("%o", s.cfg.Perm))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handler.ServeConn(conn)
		}()
	}
}

// Close stops accepting and removes the socket file. Open connections are
// left to the connection server.
func (s *Server) Close() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	err := ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if rmErr := os.Remove(s.cfg.Path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// Shutdown closes the listener and waits for served connections to
// return, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	closeErr := s.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
