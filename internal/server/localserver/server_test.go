package localserver

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// echoServer copies each line back in upper case.
type echoServer struct{}

func (echoServer) ServeConn(c net.Conn) {
	defer c.Close()
	sc := bufio.NewScanner(c)
	for sc.Scan() {
		if _, err := io.WriteString(c, strings.ToUpper(sc.Text())+"\n"); err != nil {
			return
		}
	}
}

func startServer(t *testing.T, perm os.FileMode) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kv.sock")
	s := New(Config{Path: path, Perm: perm}, echoServer{}, nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go s.Serve()
	t.Cleanup(func() { s.Close() })
	return s
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestServer_ServeConn(t *testing.T) {
	s := startServer(t, 0)

	conn, err := net.Dial("unix", s.Path())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	io.WriteString(conn, "ping\n")
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	if line != "PING\n" {
		t.Errorf("reply = %q, want %q", line, "PING\n")
	}
}

func TestServer_Perm(t *testing.T) {
	s := startServer(t, 0o770)

	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		t.Errorf("mode = %v, want socket", fi.Mode())
	}
	if got := fi.Mode().Perm(); got != 0o770 {
		t.Errorf("perm = %o, want 770", got)
	}
}

func TestServer_DefaultPerm(t *testing.T) {
	s := New(Config{Path: "x.sock"}, echoServer{}, nil)
	if s.cfg.Perm != 0o700 {
		t.Errorf("Perm = %o, want 700", s.cfg.Perm)
	}
}

func TestServer_CloseRemovesSocket(t *testing.T) {
	s := startServer(t, 0)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("socket still present after Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.sock")

	stale, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	// Leave the file behind the way a crashed process would.
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	stale.Close()

	s := New(Config{Path: path}, echoServer{}, nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() over stale socket error = %v", err)
	}
	s.Close()
}

func TestServer_RefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.sock")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New(Config{Path: path}, echoServer{}, nil)
	if err := s.Listen(); err == nil {
		s.Close()
		t.Fatal("Listen() over a regular file should fail")
	}
	if data, _ := os.ReadFile(path); string(data) != "data" {
		t.Error("regular file was modified")
	}
}

func TestServer_ServeBeforeListen(t *testing.T) {
	s := New(Config{Path: "x.sock"}, echoServer{}, nil)
	if err := s.Serve(); err == nil {
		t.Error("Serve() before Listen should fail")
	}
}

func TestServer_ShutdownWaitsForConns(t *testing.T) {
	s := startServer(t, 0)

	conn, err := net.Dial("unix", s.Path())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	// Round-trip once so the handler goroutine is running.
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	io.WriteString(conn, "a\n")
	bufio.NewReader(conn).ReadString('\n')

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); err != context.DeadlineExceeded {
		t.Errorf("Shutdown() with open conn = %v, want deadline exceeded", err)
	}

	conn.Close()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := s.Shutdown(ctx2); err != nil {
		t.Errorf("Shutdown() after client left = %v", err)
	}
}
