package config

import "time"

// CLIConfig is the configuration for respkv-cli.
type CLIConfig struct {
	Host string `koanf:"host" json:"host" yaml:"host"`
	Port int    `koanf:"port" json:"port" yaml:"port"`

	// Socket, when set, is a Unix socket path used instead of Host and Port.
	Socket string `koanf:"socket" json:"socket,omitempty" yaml:"socket,omitempty"`

	// Admin is the admin HTTP address used by the snapshot commands.
	Admin string `koanf:"admin" json:"admin,omitempty" yaml:"admin,omitempty"`

	// Output is the format for admin results: table, json or yaml.
	Output string `koanf:"output" json:"output" yaml:"output"`

	Timeout     time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	HistoryFile string        `koanf:"history_file" json:"history_file,omitempty" yaml:"history_file,omitempty"`

	TLS TLSConfig `koanf:"tls" json:"tls" yaml:"tls"`
}

// TLSConfig configures TLS for both the RESP and admin connections.
type TLSConfig struct {
	Enabled            bool   `koanf:"enabled" json:"enabled" yaml:"enabled"`
	CAFile             string `koanf:"ca_file" json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	CertFile           string `koanf:"cert_file" json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile            string `koanf:"key_file" json:"key_file,omitempty" yaml:"key_file,omitempty"`
	ServerName         string `koanf:"server_name" json:"server_name,omitempty" yaml:"server_name,omitempty"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify" json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Host:    "127.0.0.1",
		Port:    6379,
		Output:  "table",
		Timeout: 30 * time.Second,
	}
}
