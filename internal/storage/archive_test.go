package storage

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestArchive(t *testing.T, passphrase string) *Archive {
	t.Helper()
	cfg := DefaultArchiveConfig("")
	cfg.InMemory = true
	cfg.GCInterval = time.Hour
	cfg.Passphrase = passphrase
	a, err := OpenArchive(cfg, slog.Default())
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchive_PutGet(t *testing.T) {
	a := newTestArchive(t, "")
	now := time.UnixMilli(1_700_000_000_000)

	entry, stored, err := a.Put([]byte("REDIS0011-one"), 3, now)
	if err != nil || !stored {
		t.Fatalf("Put = %v, %v", stored, err)
	}
	if entry.Keys != 3 || entry.Size != 13 || entry.Encrypted {
		t.Errorf("entry = %+v", entry)
	}

	got, data, err := a.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "REDIS0011-one" || got.Digest != entry.Digest {
		t.Errorf("Get = %+v %q", got, data)
	}

	if _, _, err := a.Get("01ARZ3NDEKTSV4RRFFQ69G5FAV"); !errors.Is(err, ErrArchiveEntryNotFound) {
		t.Errorf("missing Get err = %v", err)
	}
}

func TestArchive_Dedupe(t *testing.T) {
	a := newTestArchive(t, "")
	now := time.Now()

	first, _, _ := a.Put([]byte("same"), 1, now)
	again, stored, err := a.Put([]byte("same"), 1, now.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if stored || again.ID != first.ID {
		t.Errorf("duplicate stored = %v, id %s vs %s", stored, again.ID, first.ID)
	}

	_, stored, _ = a.Put([]byte("different"), 1, now.Add(2*time.Second))
	if !stored {
		t.Error("changed payload should be stored")
	}
}

func TestArchive_ListOrderAndRetention(t *testing.T) {
	cfg := DefaultArchiveConfig("")
	cfg.InMemory = true
	cfg.Retention = 3
	a, err := OpenArchive(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	base := time.UnixMilli(1_700_000_000_000)
	var ids []string
	for i := 0; i < 5; i++ {
		e, _, err := a.Put([]byte{byte('a' + i)}, i, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, e.ID)
	}

	entries, err := a.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.ID != ids[i+2] {
			t.Errorf("entries[%d] = %s, want %s", i, e.ID, ids[i+2])
		}
	}

	latest, err := a.Latest()
	if err != nil || latest.ID != ids[4] {
		t.Errorf("Latest = %v, %v", latest, err)
	}

	removed, err := a.Prune(1)
	if err != nil || removed != 2 {
		t.Errorf("Prune(1) = %d, %v", removed, err)
	}
}

func TestArchive_Encrypted(t *testing.T) {
	a := newTestArchive(t, "archive passphrase")
	if !a.Encrypted() {
		t.Fatal("archive should be encrypted")
	}

	entry, _, err := a.Put([]byte("secret rdb"), 1, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Encrypted {
		t.Error("entry should be marked encrypted")
	}

	_, data, err := a.Get(entry.ID)
	if err != nil || string(data) != "secret rdb" {
		t.Errorf("Get = %q, %v", data, err)
	}
}

func TestArchive_LatestEmpty(t *testing.T) {
	a := newTestArchive(t, "")
	if _, err := a.Latest(); !errors.Is(err, ErrArchiveEntryNotFound) {
		t.Errorf("Latest() err = %v", err)
	}
}

func TestArchive_Metrics(t *testing.T) {
	a := newTestArchive(t, "")
	reg := prometheus.NewRegistry()
	a.RegisterMetrics(reg)

	now := time.Now()
	a.Put([]byte("x"), 1, now)
	a.Put([]byte("x"), 1, now)

	if got := testutil.ToFloat64(a.metricsDeduped); got != 1 {
		t.Errorf("deduplicated_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(a.metricsEntries); got != 1 {
		t.Errorf("entries = %v, want 1", got)
	}
}

func TestArchive_ClosedPut(t *testing.T) {
	cfg := DefaultArchiveConfig("")
	cfg.InMemory = true
	a, err := OpenArchive(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	a.Close()
	if _, _, err := a.Put([]byte("x"), 0, time.Now()); !errors.Is(err, ErrArchiveClosed) {
		t.Errorf("Put after Close err = %v", err)
	}
}
