package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"go.yaml.in/yaml/v3"

	"github.com/yndnr/respkv/internal/infra/confloader"
)

// EnvPrefix is the environment variable prefix for CLI settings.
const EnvPrefix = "RESPKV_CLI_"

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".respkv", "cli.yaml")
}

// LoadOption adjusts Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	allowMissing bool
}

// AllowMissing lets an explicit path be absent, as when the file is about
// to be created.
func AllowMissing() LoadOption {
	return func(o *loadOptions) { o.allowMissing = true }
}

// Load reads the configuration. An explicit path must exist unless
// AllowMissing is given; an empty path falls back to DefaultConfigPath and
// tolerates its absence. flags holds dotted keys set on the command line.
func Load(path string, flags map[string]any, opts ...LoadOption) (*CLIConfig, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	allowMissing := o.allowMissing
	if path == "" {
		path = DefaultConfigPath()
		allowMissing = true
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || !allowMissing {
			return nil, fmt.Errorf("config file: %w", err)
		}
		path = ""
	}

	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithEnvPrefix(EnvPrefix),
		confloader.WithFlags(flags),
	)

	cfg := Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a loaded configuration.
func Validate(cfg *CLIConfig) error {
	var errs []error
	if cfg.Host == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	switch cfg.Output {
	case "table", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("output %q must be table, json or yaml", cfg.Output))
	}
	if cfg.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if cfg.Socket != "" && cfg.TLS.Enabled {
		errs = append(errs, errors.New("tls cannot be used with a unix socket"))
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}
	return errors.Join(errs...)
}

// Addr returns the RESP address: the socket path when set, else host:port.
func (c *CLIConfig) Addr() string {
	if c.Socket != "" {
		return c.Socket
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Network returns "unix" when a socket path is configured, else "tcp".
func (c *CLIConfig) Network() string {
	if c.Socket != "" {
		return "unix"
	}
	return "tcp"
}

// Save writes cfg as YAML, creating the directory if needed. The file is
// private to the user since it may name key files.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
