package command

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/respkv/pkg/resp"
)

// runApp runs the CLI with args and returns what it printed. HOME points at
// a temporary directory so no user configuration or history leaks in.
func runApp(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out, errOut bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	err = app.Run(append([]string{"respkv-cli"}, args...))
	return out.String(), errOut.String(), err
}

func exitCode(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// respServer is a minimal RESP endpoint backed by a map.
type respServer struct {
	host, port string
	received   chan []string
}

func newRESPServer(t *testing.T) *respServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	s := &respServer{host: host, port: port, received: make(chan []string, 64)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *respServer) serve(conn net.Conn) {
	defer conn.Close()
	data := map[string]string{}
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, err := conn.Read(tmp)
		if err != nil {
			return
		}
		buf = append(buf, tmp[:n]...)
		for {
			args, used, err := resp.ParseCommand(buf)
			if err != nil || used == 0 {
				break
			}
			buf = buf[used:]
			s.received <- args
			conn.Write(resp.Encode(s.reply(data, args)))
		}
	}
}

func (s *respServer) reply(data map[string]string, args []string) resp.Value {
	switch strings.ToUpper(args[0]) {
	case "PING":
		return resp.SimpleString("PONG")
	case "SET":
		data[args[1]] = args[2]
		return resp.OK
	case "GET":
		v, ok := data[args[1]]
		if !ok {
			return resp.NullBulk
		}
		return resp.BulkString(v)
	case "LRANGE":
		return resp.BulkStrings("a", "b")
	default:
		return resp.Error("ERR unknown command '" + args[0] + "'")
	}
}

func (s *respServer) flags() []string {
	return []string{"--host", s.host, "--port", s.port}
}

// envelope writes an admin API response.
func envelope(w http.ResponseWriter, status int, code string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":       code,
		"message":    code,
		"request_id": "req-test",
		"data":       data,
	})
}
