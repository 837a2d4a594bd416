package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newJSONLogger(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log %q: %v", buf.String(), err)
	}
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"default config", DefaultConfig()},
		{"json format", Config{Level: "debug", Format: "json"}},
		{"text format", Config{Level: "info", Format: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if l == nil || l.Slog() == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestLogger_Levels(t *testing.T) {
	l, buf := newJSONLogger(t, "debug")

	tests := []struct {
		log   func(string, ...any)
		level string
	}{
		{l.Debug, "DEBUG"},
		{l.Info, "INFO"},
		{l.Warn, "WARN"},
		{l.Error, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf.Reset()
			tt.log("message", "k", "v")
			entry := decode(t, buf)
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
			if entry["k"] != "v" {
				t.Errorf("k = %v, want v", entry["k"])
			}
		})
	}
}

func TestLogger_With(t *testing.T) {
	l, buf := newJSONLogger(t, "info")

	l.With("component", "replication").Info("linked")

	entry := decode(t, buf)
	if entry["component"] != "replication" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newJSONLogger(t, "info")
	defer SetLevel("info")

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info, got %q", buf.String())
	}

	SetLevel("debug")
	if GetLevel() != "debug" {
		t.Errorf("GetLevel() = %q", GetLevel())
	}
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("debug should pass after SetLevel(debug)")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"INFO", "info"},
		{"warning", "warn"},
		{"error", "error"},
		{"bogus", "info"},
	}
	defer SetLevel("info")
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			SetLevel(tt.in)
			if got := GetLevel(); got != tt.want {
				t.Errorf("GetLevel() after SetLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "Info", "warn", "warning", "error"} {
		if !ValidLevel(lvl) {
			t.Errorf("ValidLevel(%q) = false", lvl)
		}
	}
	if ValidLevel("trace") {
		t.Error("ValidLevel(trace) = true")
	}
}

func TestWrap(t *testing.T) {
	l, buf := newJSONLogger(t, "info")
	w := Wrap(l.Slog())
	w.Info("wrapped")
	if !strings.Contains(buf.String(), "wrapped") {
		t.Error("Wrap should log through the given slog.Logger")
	}
	if Wrap(nil) == nil {
		t.Error("Wrap(nil) returned nil")
	}
}

func TestDefaultLogger(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	l, buf := newJSONLogger(t, "info")
	SetDefault(l)

	Info("package level")
	if !strings.Contains(buf.String(), "package level") {
		t.Error("package-level Info should use the default logger")
	}
}

func TestLogger_WithContext(t *testing.T) {
	l, buf := newJSONLogger(t, "info")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.WithContext(ctx).Info("ctx message")
	if buf.Len() == 0 {
		t.Error("WithContext logger should produce output")
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: "info", Format: "text", Output: &buf})
	l.Info("hello", "port", 6379)

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "port=6379") {
		t.Errorf("text output = %q", out)
	}
}
