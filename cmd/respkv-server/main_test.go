package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/respkv/internal/infra/confloader"
	"github.com/yndnr/respkv/internal/server/config"
	"github.com/yndnr/respkv/internal/telemetry/logger"
)

func TestFlagOverrides(t *testing.T) {
	var got map[string]any
	app := newApp()
	app.Action = func(c *cli.Context) error {
		got = flagOverrides(c)
		return nil
	}

	args := []string{"respkv-server", "--port", "7000", "--replicaof", "10.0.0.1 6379", "--metrics-addr", "127.0.0.1:9999"}
	if err := app.Run(args); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]any{
		"server.port":               7000,
		"replication.replicaof":     "10.0.0.1 6379",
		"telemetry.metrics.addr":    "127.0.0.1:9999",
		"telemetry.metrics.enabled": true,
	}
	if len(got) != len(want) {
		t.Fatalf("overrides = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestLoadConfig_FlagsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "respkv.yaml")
	yaml := "server:\n  port: 7001\nstorage:\n  dbfilename: file.rdb\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithFlags(map[string]any{"server.port": 7002}),
	)
	cfg, err := loadConfig(loader)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Port != 7002 {
		t.Errorf("port = %d, want the flag value", cfg.Server.Port)
	}
	if cfg.Storage.DBFilename != "file.rdb" {
		t.Errorf("dbfilename = %q, want the file value", cfg.Storage.DBFilename)
	}
	if cfg.Storage.Dir != config.DefaultDir {
		t.Errorf("dir = %q, want the default", cfg.Storage.Dir)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	loader := confloader.NewLoader(confloader.WithFlags(map[string]any{"server.port": 70000}))
	if _, err := loadConfig(loader); err == nil {
		t.Fatal("loadConfig accepted an out-of-range port")
	}
}

func TestServerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Bind = "127.0.0.1"
	cfg.Server.RateLimit = 50
	cfg.Replication.ReplicaOf = "10.0.0.5 6380"

	sc, err := serverConfig(cfg, nil)
	if err != nil {
		t.Fatalf("serverConfig: %v", err)
	}
	if sc.Address != "127.0.0.1:6379" || sc.RateLimit != 50 || sc.TLSAddress != "" {
		t.Errorf("server config = %+v", sc)
	}
	r := sc.Replication
	if r.PrimaryHost != "10.0.0.5" || r.PrimaryPort != 6380 || !r.ReadOnly || r.TLSConfig != nil {
		t.Errorf("replication = %+v", r)
	}
}

func TestReplicaTLSConfig_DefaultsServerName(t *testing.T) {
	tlsCfg, err := replicaTLSConfig(config.ReplicationTLSConfig{Enabled: true}, "primary.internal", nil)
	if err != nil {
		t.Fatalf("replicaTLSConfig: %v", err)
	}
	if tlsCfg.ServerName != "primary.internal" {
		t.Errorf("ServerName = %q", tlsCfg.ServerName)
	}
	if tlsCfg.GetClientCertificate != nil {
		t.Error("client certificate set without a server key pair")
	}
}

func TestApplyReload(t *testing.T) {
	t.Cleanup(func() { logger.SetLevel("info") })

	path := filepath.Join(t.TempDir(), "respkv.yaml")
	write := func(level string) {
		t.Helper()
		if err := os.WriteFile(path, []byte("log:\n  level: "+level+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	loader := confloader.NewLoader(confloader.WithConfigFile(path))

	write("debug")
	if err := applyReload(loader); err != nil {
		t.Fatalf("applyReload: %v", err)
	}
	if got := logger.GetLevel(); got != "debug" {
		t.Errorf("level = %q after reload", got)
	}

	write("loud")
	if err := applyReload(loader); err == nil {
		t.Error("applyReload accepted an unknown level")
	}
	if got := logger.GetLevel(); got != "debug" {
		t.Errorf("level = %q after a rejected reload", got)
	}
}
