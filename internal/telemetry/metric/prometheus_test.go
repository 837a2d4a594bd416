package metric

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.CommandsTotal == nil || r.CommandDuration == nil {
		t.Error("command metrics are nil")
	}
	if r.ConnectionsActive == nil || r.ConnectionsTotal == nil {
		t.Error("connection metrics are nil")
	}
}

func TestGlobal(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same instance")
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ObserveCommand("get", time.Millisecond, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"go_goroutines", "process_", `respkv_commands_total{command="get",status="ok"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCommandMetrics(t *testing.T) {
	r := NewRegistry()

	r.ObserveCommand("set", time.Millisecond, false)
	r.ObserveCommand("set", time.Millisecond, false)
	r.ObserveCommand("set", time.Millisecond, true)

	if got := testutil.ToFloat64(r.CommandsTotal.WithLabelValues("set", "ok")); got != 2 {
		t.Errorf("set ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.CommandsTotal.WithLabelValues("set", "error")); got != 1 {
		t.Errorf("set error = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.CommandDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestConnectionMetrics(t *testing.T) {
	r := NewRegistry()

	r.ConnOpened()
	r.ConnOpened()
	r.ConnClosed()
	r.Rejected("rate_limit")

	if got := testutil.ToFloat64(r.ConnectionsActive); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.ConnectionsTotal); got != 2 {
		t.Errorf("total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.RejectedTotal.WithLabelValues("rate_limit")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
}

func TestSnapshotMetrics(t *testing.T) {
	r := NewRegistry()

	r.ObserveSnapshot(1024, 10*time.Millisecond, nil)
	r.ObserveSnapshot(0, 0, errors.New("disk full"))

	if got := testutil.ToFloat64(r.SnapshotSize); got != 1024 {
		t.Errorf("size = %v, want 1024", got)
	}
	if got := testutil.ToFloat64(r.SnapshotsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	r.ObserveCommand("get", time.Millisecond, false)
	r.ConnOpened()
	r.ConnClosed()
	r.Rejected("protocol")
	r.ObserveSnapshot(1, time.Millisecond, nil)
}

// ============================================================
// Collector
// ============================================================

func TestCollector(t *testing.T) {
	c := NewCollector(func() Stats {
		return Stats{
			Role:              "master",
			Keys:              3,
			Expires:           1,
			BlockedClients:    2,
			ConnectedReplicas: 1,
			ReplicationOffset: 512,
		}
	})

	r := NewRegistry()
	r.Registerer().MustRegister(c)

	expected := `
# HELP respkv_keyspace_keys Keys in the keyspace.
# TYPE respkv_keyspace_keys gauge
respkv_keyspace_keys 3
# HELP respkv_blocked_clients Clients parked in BLPOP or XREAD BLOCK.
# TYPE respkv_blocked_clients gauge
respkv_blocked_clients 2
# HELP respkv_replication_is_primary 1 when this node is a primary.
# TYPE respkv_replication_is_primary gauge
respkv_replication_is_primary 1
`
	err := testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected),
		"respkv_keyspace_keys", "respkv_blocked_clients", "respkv_replication_is_primary")
	if err != nil {
		t.Error(err)
	}

	if n := testutil.CollectAndCount(c); n != 7 {
		t.Errorf("collected %d metrics, want 7", n)
	}
}
