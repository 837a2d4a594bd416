package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyReplication(&cfg.Replication, cfg.Server.Port); err != nil {
		return err
	}
	if cfg.Expiry.SweepInterval <= 0 {
		return errors.New("expiry.sweep_interval must be positive")
	}
	if cfg.Telemetry.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Telemetry.Metrics.Addr); err != nil {
			return fmt.Errorf("telemetry.metrics.addr: %w", err)
		}
		if cfg.Telemetry.Metrics.TLS && !cfg.Server.TLS.Enabled {
			return errors.New("telemetry.metrics.tls requires server.tls")
		}
		for _, entry := range cfg.Telemetry.Metrics.AllowList {
			if !validACLEntry(entry) {
				return fmt.Errorf("telemetry.metrics.allow_list: invalid entry %q", entry)
			}
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if err := verifyPort("server.port", cfg.Port); err != nil {
		return err
	}
	if cfg.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if cfg.UnixSocket != "" {
		if _, err := ParseSocketPerm(cfg.UnixSocketPerm); err != nil {
			return fmt.Errorf("server.unixsocketperm: %w", err)
		}
	}
	if cfg.TLS.Enabled {
		if err := verifyPort("server.tls.port", cfg.TLS.Port); err != nil {
			return err
		}
		if cfg.TLS.Port == cfg.Port {
			return errors.New("server.tls.port must differ from server.port")
		}
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return errors.New("server.tls requires cert_file and key_file")
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.Dir == "" {
		return errors.New("storage.dir is required")
	}
	if cfg.DBFilename == "" || strings.ContainsAny(cfg.DBFilename, `/\`) {
		return fmt.Errorf("storage.dbfilename must be a plain file name, got %q", cfg.DBFilename)
	}
	if cfg.SnapshotInterval < 0 {
		return errors.New("storage.snapshot_interval must not be negative")
	}
	if cfg.Archive.Enabled {
		if cfg.Archive.Retention < 1 {
			return errors.New("storage.archive.retention must be at least 1")
		}
		if cfg.Archive.Passphrase != "" && len(cfg.Archive.Passphrase) < 8 {
			return errors.New("storage.archive.passphrase must be at least 8 characters")
		}
	}
	return nil
}

func verifyReplication(cfg *ReplicationSection, ownPort int) error {
	if cfg.ReplicaOf == "" {
		return nil
	}
	host, port, err := ParseReplicaOf(cfg.ReplicaOf)
	if err != nil {
		return err
	}
	if (host == "127.0.0.1" || host == "localhost") && port == ownPort {
		return errors.New("replication.replicaof points at this server")
	}
	if cfg.ReconnectMin <= 0 || cfg.ReconnectMax < cfg.ReconnectMin {
		return errors.New("replication.reconnect_min must be positive and not above reconnect_max")
	}
	return nil
}

func validACLEntry(entry string) bool {
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}

func verifyPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s must be in 0..65535, got %d", name, port)
	}
	return nil
}

// ParseReplicaOf splits "<host> <port>" (or "<host>:<port>").
func ParseReplicaOf(s string) (host string, port int, err error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 2:
		host = fields[0]
		port, err = strconv.Atoi(fields[1])
	case 1:
		var p string
		host, p, err = net.SplitHostPort(fields[0])
		if err == nil {
			port, err = strconv.Atoi(p)
		}
	default:
		return "", 0, fmt.Errorf("replication.replicaof must be \"<host> <port>\", got %q", s)
	}
	if err != nil || port <= 0 || port > 65535 || host == "" {
		return "", 0, fmt.Errorf("replication.replicaof: invalid address %q", s)
	}
	return host, port, nil
}

// ParseSocketPerm parses octal permission digits such as "770". Empty
// means 0700.
func ParseSocketPerm(s string) (os.FileMode, error) {
	if s == "" {
		return 0o700, nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0"), 8, 32)
	if err != nil || n > 0o777 {
		return 0, fmt.Errorf("invalid permission %q, want octal digits like 700", s)
	}
	return os.FileMode(n), nil
}
