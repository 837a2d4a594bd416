package config

import "time"

// ServerConfig is the root configuration for respkv-server.
type ServerConfig struct {
	Server      ServerSection      `koanf:"server"`
	Storage     StorageSection     `koanf:"storage"`
	Replication ReplicationSection `koanf:"replication"`
	Expiry      ExpirySection      `koanf:"expiry"`
	Telemetry   TelemetrySection   `koanf:"telemetry"`
	Log         LogSection         `koanf:"log"`
}

// ServerSection configures the RESP listener.
type ServerSection struct {
	Bind string `koanf:"bind"`
	Port int    `koanf:"port"`

	// ReadTimeout bounds the time to receive the rest of a partially read
	// frame. IdleTimeout closes connections idle between commands; 0
	// keeps them open.
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// RateLimit is the commands per second allowed per client IP; 0 disables.
	RateLimit int `koanf:"rate_limit"`

	// AllowInline accepts telnet-style inline commands.
	AllowInline bool `koanf:"allow_inline"`

	// UnixSocket additionally serves clients on this socket path.
	// UnixSocketPerm is its mode as octal digits, e.g. "700".
	UnixSocket     string `koanf:"unixsocket"`
	UnixSocketPerm string `koanf:"unixsocketperm"`

	TLS TLSConfig `koanf:"tls"`
}

// TLSConfig configures an additional TLS listener.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Port     int    `koanf:"port"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`

	// ClientCAFile enables mutual TLS when set.
	ClientCAFile string `koanf:"client_ca_file"`
}

// StorageSection configures snapshots and the archive.
type StorageSection struct {
	Dir              string        `koanf:"dir"`
	DBFilename       string        `koanf:"dbfilename"`
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
	SaveOnShutdown   bool          `koanf:"save_on_shutdown"`
	Archive          ArchiveConfig `koanf:"archive"`
}

// ArchiveConfig configures the Badger snapshot archive.
type ArchiveConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Dir        string        `koanf:"dir"`
	Retention  int           `koanf:"retention"`
	GCInterval time.Duration `koanf:"gc_interval"`

	// Passphrase enables encryption at rest when set.
	Passphrase string `koanf:"passphrase"`
}

// ReplicationSection configures the replica role.
type ReplicationSection struct {
	// ReplicaOf is "<host> <port>"; empty runs as a primary.
	ReplicaOf string `koanf:"replicaof"`

	// ReadOnly rejects client writes on a replica.
	ReadOnly bool `koanf:"read_only"`

	// QueueSize bounds the frames buffered per replica on a primary.
	QueueSize int `koanf:"queue_size"`

	// ReconnectMin and ReconnectMax bound the replica link backoff.
	ReconnectMin time.Duration `koanf:"reconnect_min"`
	ReconnectMax time.Duration `koanf:"reconnect_max"`

	TLS ReplicationTLSConfig `koanf:"tls"`
}

// ReplicationTLSConfig configures TLS on the replica link.
type ReplicationTLSConfig struct {
	Enabled    bool   `koanf:"enabled"`
	CAFile     string `koanf:"ca_file"`
	ServerName string `koanf:"server_name"`
}

// ExpirySection configures active expiry.
type ExpirySection struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
	SweepLimit    int           `koanf:"sweep_limit"`
}

// TelemetrySection configures observability endpoints.
type TelemetrySection struct {
	Metrics MetricsConfig `koanf:"metrics"`
}

// MetricsConfig configures the admin HTTP endpoint serving /metrics.
type MetricsConfig struct {
	Enabled   bool     `koanf:"enabled"`
	Addr      string   `koanf:"addr"`
	AllowList []string `koanf:"allow_list"`

	// RateLimit is requests per second per client IP; 0 disables.
	RateLimit int `koanf:"rate_limit"`

	// TLS serves the endpoint over HTTPS with the server.tls key pair.
	TLS bool `koanf:"tls"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
