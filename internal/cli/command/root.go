package command

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/respkv/internal/cli/config"
	"github.com/yndnr/respkv/internal/cli/connection"
	"github.com/yndnr/respkv/internal/cli/output"
	"github.com/yndnr/respkv/internal/infra/buildinfo"
	"github.com/yndnr/respkv/internal/infra/tlsroots"
)

const metaSession = "session"

// session is the state shared by every command of one invocation.
type session struct {
	cfg    *config.CLIConfig
	conns  *connection.Manager
	format output.Format
	raw    bool
	out    io.Writer
	errOut io.Writer
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "respkv-cli",
		Usage:                "Command-line client for respkv",
		UsageText:            "respkv-cli [options] [COMMAND [ARG...]]",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		HideHelpCommand:      true,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			AdminCommand(),
			RDBCommand(),
			SettingsCommand(),
		},
		Before: before,
		After:  after,
		Action: rootAction,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI configuration file (default ~/.respkv/cli.yaml)",
			EnvVars: []string{"RESPKV_CLI_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "server hostname (default 127.0.0.1)",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "server port (default 6379)",
		},
		&cli.StringFlag{
			Name:    "socket",
			Aliases: []string{"s"},
			Usage:   "server Unix socket path, overrides host and port",
		},
		&cli.StringFlag{
			Name:  "admin",
			Usage: "admin HTTP address, e.g. 127.0.0.1:9090",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "format for admin results: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "print replies without quoting or type annotations",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "dial and admin request timeout",
		},
		&cli.BoolFlag{
			Name:  "tls",
			Usage: "connect using TLS",
		},
		&cli.StringFlag{
			Name:  "cacert",
			Usage: "CA certificate file to verify the server",
		},
		&cli.StringFlag{
			Name:  "cert",
			Usage: "client certificate file",
		},
		&cli.StringFlag{
			Name:  "key",
			Usage: "client private key file",
		},
		&cli.StringFlag{
			Name:  "sni",
			Usage: "server name for TLS verification",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "skip TLS certificate verification",
		},
	}
}

// flagKeys maps global flags to configuration keys.
var flagKeys = map[string]string{
	"host":     "host",
	"port":     "port",
	"socket":   "socket",
	"admin":    "admin",
	"output":   "output",
	"timeout":  "timeout",
	"tls":      "tls.enabled",
	"cacert":   "tls.ca_file",
	"cert":     "tls.cert_file",
	"key":      "tls.key_file",
	"sni":      "tls.server_name",
	"insecure": "tls.insecure_skip_verify",
}

// flagOverrides returns the explicitly set global flags as config keys.
func flagOverrides(c *cli.Context) map[string]any {
	out := make(map[string]any)
	for name, key := range flagKeys {
		if !c.IsSet(name) {
			continue
		}
		out[key] = c.Value(name)
	}
	return out
}

func before(c *cli.Context) error {
	var opts []config.LoadOption
	if c.Args().First() == "settings" {
		opts = append(opts, config.AllowMissing())
	}
	cfg, err := config.Load(c.String("config"), flagOverrides(c), opts...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config: %v", err), 2)
	}
	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	tlsConfig, err := clientTLS(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("tls: %v", err), 2)
	}
	conns := connection.NewManager(connection.Options{
		Network:     cfg.Network(),
		Addr:        cfg.Addr(),
		TLSConfig:   tlsConfig,
		DialTimeout: cfg.Timeout,
	}, cfg.Admin, tlsConfig)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[metaSession] = &session{
		cfg:    cfg,
		conns:  conns,
		format: format,
		raw:    c.Bool("raw"),
		out:    c.App.Writer,
		errOut: c.App.ErrWriter,
	}
	return nil
}

func after(c *cli.Context) error {
	if s, ok := c.App.Metadata[metaSession].(*session); ok {
		s.conns.Close()
	}
	return nil
}

// clientTLS builds the client TLS configuration, nil when TLS is off.
func clientTLS(cfg *config.CLIConfig) (*tls.Config, error) {
	if !cfg.TLS.Enabled {
		return nil, nil
	}
	serverName := cfg.TLS.ServerName
	if serverName == "" {
		serverName = cfg.Host
	}
	return tlsroots.ClientConfig(tlsroots.ClientOptions{
		CAFile:             cfg.TLS.CAFile,
		ServerName:         serverName,
		CertFile:           cfg.TLS.CertFile,
		KeyFile:            cfg.TLS.KeyFile,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
	})
}

func getSession(c *cli.Context) (*session, error) {
	if s, ok := c.App.Metadata[metaSession].(*session); ok {
		return s, nil
	}
	return nil, errors.New("session not initialized")
}

// formatter returns the admin result formatter.
func (s *session) formatter() output.Formatter {
	return output.NewFormatter(s.format)
}

// printError prints an error message to the error writer.
func (s *session) printError(format string, args ...any) {
	fmt.Fprintf(s.errOut, "error: "+format+"\n", args...)
}
