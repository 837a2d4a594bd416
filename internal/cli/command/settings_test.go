package command

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/respkv/internal/cli/config"
)

func TestSettingsInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")

	out, _, err := runApp(t, "", "--config", path, "--port", "7100", "settings", "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Errorf("output = %q", out)
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7100 {
		t.Errorf("Port = %d, want 7100", cfg.Port)
	}

	// A second init refuses to overwrite.
	_, _, err = runApp(t, "", "--config", path, "settings", "init")
	if exitCode(err) != 1 {
		t.Errorf("exit code = %d (%v), want 1", exitCode(err), err)
	}
	if _, _, err := runApp(t, "", "--config", path, "settings", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestSettingsShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	os.WriteFile(path, []byte("host: cache-7\n"), 0o600)

	out, _, err := runApp(t, "", "--config", path, "-o", "yaml", "settings", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "host: cache-7") {
		t.Errorf("output = %q", out)
	}
}

func TestSettingsPath(t *testing.T) {
	out, _, err := runApp(t, "", "--config", "/etc/respkv/cli.yaml", "settings", "path")
	if err != nil {
		t.Fatal(err)
	}
	if out != "/etc/respkv/cli.yaml\n" {
		t.Errorf("output = %q", out)
	}
}
