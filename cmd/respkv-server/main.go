package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/respkv/internal/core/service"
	"github.com/yndnr/respkv/internal/infra/buildinfo"
	"github.com/yndnr/respkv/internal/infra/confloader"
	"github.com/yndnr/respkv/internal/infra/shutdown"
	"github.com/yndnr/respkv/internal/infra/tlsroots"
	"github.com/yndnr/respkv/internal/server/config"
	"github.com/yndnr/respkv/internal/server/httpserver"
	"github.com/yndnr/respkv/internal/server/localserver"
	"github.com/yndnr/respkv/internal/server/redisserver"
	"github.com/yndnr/respkv/internal/storage"
	"github.com/yndnr/respkv/internal/storage/snapshot"
	"github.com/yndnr/respkv/internal/telemetry/logger"
	"github.com/yndnr/respkv/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintln(c.App.Writer, "respkv-server", buildinfo.String())
	}
	return &cli.App{
		Name:            "respkv-server",
		Usage:           "Redis-compatible key-value server",
		Version:         buildinfo.Version,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to the YAML configuration file", EnvVars: []string{"RESPKV_CONFIG"}},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "RESP listen port"},
			&cli.StringFlag{Name: "bind", Usage: "RESP listen address"},
			&cli.StringFlag{Name: "unixsocket", Usage: "also serve clients on this Unix socket path"},
			&cli.StringFlag{Name: "dir", Usage: "snapshot directory"},
			&cli.StringFlag{Name: "dbfilename", Usage: "snapshot file name"},
			&cli.StringFlag{Name: "replicaof", Usage: `replicate from "<host> <port>"`},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve the admin HTTP endpoint on this address"},
		},
		Action: run,
	}
}

// flagOverrides maps the flags set on the command line to config keys.
func flagOverrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"port":         "server.port",
		"bind":         "server.bind",
		"unixsocket":   "server.unixsocket",
		"dir":          "storage.dir",
		"dbfilename":   "storage.dbfilename",
		"replicaof":    "replication.replicaof",
		"log-level":    "log.level",
		"metrics-addr": "telemetry.metrics.addr",
	}
	out := make(map[string]any)
	for flag, key := range keys {
		if !c.IsSet(flag) {
			continue
		}
		if flag == "port" {
			out[key] = c.Int(flag)
		} else {
			out[key] = c.String(flag)
		}
	}
	if c.IsSet("metrics-addr") {
		out["telemetry.metrics.enabled"] = true
	}
	return out
}

func run(c *cli.Context) error {
	loader := confloader.NewLoader(
		confloader.WithConfigFile(c.String("config")),
		confloader.WithFlags(flagOverrides(c)),
	)
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting respkv-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", loader.FilePath())
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	registry := metric.NewRegistry()
	shutdownHandler := shutdown.NewHandler(shutdownTimeout, slogLogger)

	archive, err := initArchive(cfg, registry, slogLogger)
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}

	engine, err := initStorage(cfg, archive, registry, slogLogger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	// A corrupt snapshot is logged by Recover; the server starts empty.
	_, _ = engine.Recover()

	certs, err := initCertificates(cfg, slogLogger)
	if err != nil {
		return fmt.Errorf("init tls: %w", err)
	}

	srvCfg, err := serverConfig(cfg, certs)
	if err != nil {
		return err
	}
	srv, err := redisserver.New(srvCfg, redisserver.Deps{
		Engine: engine,
		Primary: service.NewPrimary(service.PrimaryConfig{
			QueueSize:    cfg.Replication.QueueSize,
			WriteTimeout: cfg.Server.WriteTimeout,
			Logger:       slogLogger.With("component", "replication"),
		}),
		Metrics: registry,
		Logger:  slogLogger,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	registry.Registerer().MustRegister(metric.NewCollector(srv.Stats))

	engine.Start()
	if err := srv.Start(); err != nil {
		engine.Close()
		return err
	}

	// Hooks run in registration order: stop accepting work first, persist,
	// then release storage.
	if cfg.Server.UnixSocket != "" {
		local, err := startUnixSocket(cfg, srv, slogLogger)
		if err != nil {
			srv.Shutdown(context.Background())
			engine.Close()
			return err
		}
		shutdownHandler.OnShutdown("unix socket", func(context.Context) error {
			return local.Close()
		})
	}
	shutdownHandler.OnShutdown("resp server", srv.Shutdown)

	if cfg.Telemetry.Metrics.Enabled {
		admin, err := startAdmin(cfg, srv, engine, archive, registry, certs, slogLogger)
		if err != nil {
			srv.Shutdown(context.Background())
			engine.Close()
			return err
		}
		shutdownHandler.OnShutdown("admin http", admin.Shutdown)
	}

	if cfg.Storage.SaveOnShutdown {
		shutdownHandler.OnShutdown("final snapshot", func(ctx context.Context) error {
			_, err := engine.Save(ctx)
			return err
		})
	}
	shutdownHandler.OnShutdown("storage engine", func(context.Context) error {
		return engine.Close()
	})
	if archive != nil {
		shutdownHandler.OnShutdown("snapshot archive", func(context.Context) error {
			return archive.Close()
		})
	}
	if certs != nil {
		certs.StartAsync()
		shutdownHandler.OnShutdown("certificate watcher", func(context.Context) error {
			certs.Stop()
			return nil
		})
	}

	if path := loader.FilePath(); path != "" {
		watcher, err := watchConfig(path, loader, log)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	log.Info("server started", "port", srv.Port(), "role", srv.Role())
	if err := shutdownHandler.Wait(c.Context); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// startUnixSocket serves srv on the configured socket path as well.
func startUnixSocket(cfg *config.ServerConfig, srv *redisserver.Server, log *slog.Logger) (*localserver.Server, error) {
	perm, err := config.ParseSocketPerm(cfg.Server.UnixSocketPerm)
	if err != nil {
		return nil, err
	}
	local := localserver.New(localserver.Config{Path: cfg.Server.UnixSocket, Perm: perm}, srv, log)
	if err := local.Listen(); err != nil {
		return nil, err
	}
	go func() {
		if err := local.Serve(); err != nil {
			log.Error("unix socket stopped", "error", err)
		}
	}()
	return local, nil
}

// loadConfig loads configuration from flags, environment and file on top
// of the defaults, and validates the result.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger creates the structured logger and installs it as the default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// initArchive opens the snapshot archive, or returns nil when disabled.
func initArchive(cfg *config.ServerConfig, registry *metric.Registry, log *slog.Logger) (*storage.Archive, error) {
	ac := cfg.Storage.Archive
	if !ac.Enabled {
		return nil, nil
	}
	dir := ac.Dir
	if dir == "" {
		dir = filepath.Join(cfg.Storage.Dir, "archive")
	}

	archiveCfg := storage.DefaultArchiveConfig(dir)
	archiveCfg.Retention = ac.Retention
	archiveCfg.GCInterval = ac.GCInterval
	archiveCfg.Passphrase = ac.Passphrase

	archive, err := storage.OpenArchive(archiveCfg, log.With("component", "archive"))
	if err != nil {
		return nil, err
	}
	return archive.RegisterMetrics(registry.Registerer()), nil
}

// initStorage creates the engine over the snapshot file and the archive.
func initStorage(cfg *config.ServerConfig, archive *storage.Archive, registry *metric.Registry, log *slog.Logger) (*storage.Engine, error) {
	storageCfg := storage.DefaultConfig()
	storageCfg.Snapshot = snapshot.Config{
		Dir:        cfg.Storage.Dir,
		DBFilename: cfg.Storage.DBFilename,
	}
	storageCfg.SnapshotInterval = cfg.Storage.SnapshotInterval
	storageCfg.SweepInterval = cfg.Expiry.SweepInterval
	storageCfg.SweepLimit = cfg.Expiry.SweepLimit
	storageCfg.Archive = archive
	storageCfg.Logger = log.With("component", "storage")
	storageCfg.OnSave = func(info *snapshot.Info, elapsed time.Duration) {
		registry.ObserveSnapshot(info.Size, elapsed, nil)
	}
	return storage.New(storageCfg)
}

// initCertificates loads the server key pair when TLS is enabled.
func initCertificates(cfg *config.ServerConfig, log *slog.Logger) (*tlsroots.Watcher, error) {
	if !cfg.Server.TLS.Enabled {
		return nil, nil
	}
	return tlsroots.NewWatcher(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile,
		tlsroots.WithLogger(log.With("component", "tls")))
}

// serverConfig maps the file configuration onto the RESP server.
func serverConfig(cfg *config.ServerConfig, certs *tlsroots.Watcher) (redisserver.Config, error) {
	sc := cfg.Server
	out := redisserver.Config{
		Address:      net.JoinHostPort(sc.Bind, strconv.Itoa(sc.Port)),
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
		RateLimit:    sc.RateLimit,
		AllowInline:  sc.AllowInline,
	}

	if certs != nil {
		tlsCfg, err := tlsroots.ServerConfig(certs, sc.TLS.ClientCAFile)
		if err != nil {
			return out, fmt.Errorf("server tls: %w", err)
		}
		out.TLSAddress = net.JoinHostPort(sc.Bind, strconv.Itoa(sc.TLS.Port))
		out.TLSConfig = tlsCfg
	}

	rc := cfg.Replication
	if rc.ReplicaOf == "" {
		return out, nil
	}
	host, port, err := config.ParseReplicaOf(rc.ReplicaOf)
	if err != nil {
		return out, err
	}
	out.Replication = redisserver.ReplicationConfig{
		PrimaryHost:  host,
		PrimaryPort:  port,
		ReadOnly:     rc.ReadOnly,
		ReconnectMin: rc.ReconnectMin,
		ReconnectMax: rc.ReconnectMax,
	}
	if rc.TLS.Enabled {
		tlsCfg, err := replicaTLSConfig(rc.TLS, host, certs)
		if err != nil {
			return out, fmt.Errorf("replication tls: %w", err)
		}
		out.Replication.TLSConfig = tlsCfg
	}
	return out, nil
}

// replicaTLSConfig builds the client side of the replica link. The server
// key pair doubles as the client certificate for primaries requiring
// mutual TLS.
func replicaTLSConfig(rt config.ReplicationTLSConfig, host string, certs *tlsroots.Watcher) (*tls.Config, error) {
	serverName := rt.ServerName
	if serverName == "" {
		serverName = host
	}
	tlsCfg, err := tlsroots.ClientConfig(tlsroots.ClientOptions{
		CAFile:     rt.CAFile,
		ServerName: serverName,
	})
	if err != nil {
		return nil, err
	}
	if certs != nil {
		tlsCfg.GetClientCertificate = certs.GetClientCertificate
	}
	return tlsCfg, nil
}

// startAdmin serves /metrics, health checks and the admin API.
func startAdmin(cfg *config.ServerConfig, srv *redisserver.Server, engine *storage.Engine, archive *storage.Archive,
	registry *metric.Registry, certs *tlsroots.Watcher, log *slog.Logger) (*httpserver.Server, error) {
	mc := cfg.Telemetry.Metrics

	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.Backend = srv
	routerCfg.Snapshots = engine
	routerCfg.Metrics = registry.Handler()
	routerCfg.Logger = log.With("component", "admin")
	routerCfg.AllowList = mc.AllowList
	routerCfg.RateLimit = mc.RateLimit
	if archive != nil {
		routerCfg.Archive = archive
	}

	var tlsCfg *tls.Config
	if mc.TLS && certs != nil {
		var err error
		if tlsCfg, err = tlsroots.ServerConfig(certs, ""); err != nil {
			return nil, err
		}
	}

	admin := httpserver.New(mc.Addr, httpserver.NewRouter(routerCfg), tlsCfg)
	if err := admin.Listen(); err != nil {
		return nil, fmt.Errorf("admin http: listen %s: %w", mc.Addr, err)
	}
	go func() {
		if err := admin.Serve(); err != nil {
			log.Error("admin http server error", "error", err)
		}
	}()
	log.Info("admin http listening", "addr", admin.Addr(), "tls", tlsCfg != nil)
	return admin, nil
}

// watchConfig reloads the file on change and applies the settings that
// can change at runtime. Currently that is the log level.
func watchConfig(path string, loader *confloader.Loader, log logger.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log.Slog()))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return nil, err
	}
	watcher.OnChange(func(string) {
		if err := applyReload(loader); err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		log.Info("config reloaded", "log_level", logger.GetLevel())
	})
	watcher.StartAsync()
	return watcher, nil
}

// applyReload re-reads every source and applies the runtime-tunable
// settings. The running configuration is left untouched on error.
func applyReload(loader *confloader.Loader) error {
	cfg := config.Default()
	if err := loader.Reload(cfg); err != nil {
		return err
	}
	if err := config.Verify(cfg); err != nil {
		return err
	}
	logger.SetLevel(cfg.Log.Level)
	return nil
}
