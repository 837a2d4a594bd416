package redisserver

import (
	"fmt"
	"net"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/internal/infra/buildinfo"
	"github.com/yndnr/respkv/pkg/resp"
)

// compatVersion is the redis_version INFO reports to clients that gate
// features on it.
const compatVersion = "7.2.0"

var serverCommands = []*command{
	{name: "PING", arity: -1, flags: flagPubSub, run: cmdPing},
	{name: "ECHO", arity: 2, run: cmdEcho},
	{name: "QUIT", arity: -1, flags: flagTx | flagPubSub, run: cmdQuit},
	{name: "COMMAND", arity: -1, run: cmdCommand},
	{name: "SELECT", arity: 2, run: cmdSelect},
	{name: "INFO", arity: -1, run: cmdInfo},
	{name: "CONFIG", arity: -2, run: cmdConfig},
	{name: "SAVE", arity: 1, run: cmdSave},
	{name: "BGSAVE", arity: -1, run: cmdBGSave},
	{name: "LASTSAVE", arity: 1, run: cmdLastSave},
}

func cmdPing(cx *execContext, args []string) resp.Value {
	if len(args) > 2 {
		return wrongArity("PING")
	}
	if cx.conn != nil && cx.conn.subscribed() {
		msg := ""
		if len(args) == 2 {
			msg = args[1]
		}
		return resp.BulkStrings("pong", msg)
	}
	if len(args) == 2 {
		return resp.BulkString(args[1])
	}
	return resp.SimpleString("PONG")
}

func cmdEcho(_ *execContext, args []string) resp.Value {
	return resp.BulkString(args[1])
}

func cmdQuit(cx *execContext, _ []string) resp.Value {
	cx.conn.quit = true
	return resp.OK
}

func cmdCommand(_ *execContext, args []string) resp.Value {
	if len(args) >= 2 && upper(args[1]) == "COUNT" {
		return resp.Integer(len(commands))
	}
	return resp.Array{}
}

func cmdSelect(_ *execContext, args []string) resp.Value {
	if args[1] != "0" {
		return errorReply(domain.NewErr("DB index is out of range"))
	}
	return resp.OK
}

// ============================================================================
// INFO
// ============================================================================

var infoSections = []string{"server", "clients", "persistence", "replication", "keyspace"}

func cmdInfo(cx *execContext, args []string) resp.Value {
	want := infoSections
	if len(args) > 1 {
		want = nil
		for _, a := range args[1:] {
			switch a = strings.ToLower(a); a {
			case "all", "default", "everything":
				want = infoSections
			default:
				want = append(want, a)
			}
		}
	}

	var b strings.Builder
	for _, section := range want {
		start := b.Len()
		switch section {
		case "server":
			cx.srv.infoServer(&b)
		case "clients":
			cx.srv.infoClients(&b)
		case "persistence":
			cx.srv.infoPersistence(&b)
		case "replication":
			cx.srv.infoReplication(&b)
		case "keyspace":
			cx.srv.infoKeyspace(&b)
		}
		if b.Len() > start {
			b.WriteString("\r\n")
		}
	}
	return resp.BulkString(strings.TrimSuffix(b.String(), "\r\n"))
}

func infoLine(b *strings.Builder, key string, value any) {
	fmt.Fprintf(b, "%s:%v\r\n", key, value)
}

func (s *Server) infoServer(b *strings.Builder) {
	bi := buildinfo.Get()
	b.WriteString("# Server\r\n")
	infoLine(b, "redis_version", compatVersion)
	infoLine(b, "respkv_version", bi.Version)
	infoLine(b, "respkv_git_sha1", bi.Commit)
	infoLine(b, "go_version", runtime.Version())
	infoLine(b, "os", runtime.GOOS+" "+runtime.GOARCH)
	infoLine(b, "process_id", os.Getpid())
	infoLine(b, "tcp_port", s.Port())
	infoLine(b, "uptime_in_seconds", int64(time.Since(s.startedAt).Seconds()))
}

func (s *Server) infoClients(b *strings.Builder) {
	b.WriteString("# Clients\r\n")
	infoLine(b, "connected_clients", s.NumConns())
	infoLine(b, "blocked_clients", s.blocking.Blocked())
	infoLine(b, "pubsub_channels", len(s.hub.Channels()))
}

func (s *Server) infoPersistence(b *strings.Builder) {
	b.WriteString("# Persistence\r\n")
	infoLine(b, "rdb_bgsave_in_progress", boolInt(s.engine.Saving()))
	infoLine(b, "rdb_last_save_time", s.engine.LastSave().Unix())
	infoLine(b, "rdb_path", s.engine.Snapshots().Path())
}

func (s *Server) infoReplication(b *strings.Builder) {
	b.WriteString("# Replication\r\n")
	infoLine(b, "role", s.Role())
	if f := s.follower; f != nil {
		st := f.Status()
		infoLine(b, "master_host", st.Host)
		infoLine(b, "master_port", st.Port)
		infoLine(b, "master_link_status", st.LinkStatus())
		infoLine(b, "slave_repl_offset", st.Offset)
		infoLine(b, "slave_read_only", boolInt(s.cfg.Replication.ReadOnly))
	}
	replicas := s.primary.Replicas()
	infoLine(b, "connected_slaves", len(replicas))
	for i, r := range replicas {
		host := r.Addr
		if h, _, err := net.SplitHostPort(r.Addr); err == nil {
			host = h
		}
		infoLine(b, "slave"+strconv.Itoa(i),
			fmt.Sprintf("ip=%s,port=%s,state=online,offset=%d", host, r.ListeningPort, r.AckOffset))
	}
	infoLine(b, "master_replid", s.primary.ReplID())
	infoLine(b, "master_repl_offset", s.primary.Offset())
}

func (s *Server) infoKeyspace(b *strings.Builder) {
	b.WriteString("# Keyspace\r\n")
	st := s.store.Stats()
	if st.Keys > 0 {
		infoLine(b, "db0", fmt.Sprintf("keys=%d,expires=%d,avg_ttl=0", st.Keys, st.Expiring))
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ============================================================================
// CONFIG, persistence
// ============================================================================

func cmdConfig(cx *execContext, args []string) resp.Value {
	if upper(args[1]) != "GET" {
		return errorReply(domain.NewErr(fmt.Sprintf("unknown subcommand '%s'. Try CONFIG HELP.", args[1])))
	}
	if len(args) < 3 {
		return wrongArity("CONFIG|GET")
	}

	snap := cx.srv.engine.Snapshots()
	params := []struct{ name, value string }{
		{"dir", snap.Dir()},
		{"dbfilename", snap.DBFilename()},
		{"port", strconv.Itoa(cx.srv.Port())},
		{"replica-read-only", yesNo(cx.srv.cfg.Replication.ReadOnly)},
		{"appendonly", "no"},
	}

	var out []string
	seen := make(map[string]bool)
	for _, pattern := range args[2:] {
		pattern = strings.ToLower(pattern)
		for _, p := range params {
			if seen[p.name] {
				continue
			}
			if ok, _ := path.Match(pattern, p.name); ok {
				seen[p.name] = true
				out = append(out, p.name, p.value)
			}
		}
	}
	return resp.BulkStrings(out...)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func cmdSave(cx *execContext, _ []string) resp.Value {
	if cx.srv.engine.Saving() {
		return errorReply(domain.NewErr("Background save already in progress"))
	}
	if _, err := cx.srv.engine.SaveLocked(cx.srv.ctx); err != nil {
		cx.srv.logger.Error("save failed", "error", err)
		return errorReply(err)
	}
	return resp.OK
}

func cmdBGSave(cx *execContext, args []string) resp.Value {
	if len(args) > 2 || (len(args) == 2 && upper(args[1]) != "SCHEDULE") {
		return errorReply(domain.ErrSyntax)
	}
	if err := cx.srv.engine.BackgroundSave(); err != nil {
		return errorReply(err)
	}
	return resp.SimpleString("Background saving started")
}

func cmdLastSave(cx *execContext, _ []string) resp.Value {
	return resp.Integer(cx.srv.engine.LastSave().Unix())
}
