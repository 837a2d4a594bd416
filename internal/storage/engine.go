package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/internal/storage/memory"
	"github.com/yndnr/respkv/internal/storage/rdb"
	"github.com/yndnr/respkv/internal/storage/snapshot"
)

var ErrSaveInProgress = errors.New("ERR Background save already in progress")

// Config configures the storage engine.
type Config struct {
	Snapshot snapshot.Config

	// SnapshotInterval is the period of automatic saves. 0 disables them.
	SnapshotInterval time.Duration

	// SweepInterval and SweepLimit tune active expiry.
	SweepInterval time.Duration
	SweepLimit    int

	// Archive receives every successful save when set.
	Archive *Archive

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	// OnSave observes every completed save, for metrics.
	OnSave func(info *snapshot.Info, elapsed time.Duration)

	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{
		Snapshot:         snapshot.DefaultConfig(),
		SnapshotInterval: 0,
		SweepInterval:    memory.DefaultSweepInterval,
		SweepLimit:       memory.DefaultSweepLimit,
	}
}

// Engine owns the keyspace, its execution lock and its persistence.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	store    *memory.Store
	snapshot *snapshot.Manager
	archive  *Archive
	sweeper  *memory.Sweeper
	logger   *slog.Logger
	now      func() time.Time

	lastSave atomic.Int64 // unix seconds
	saving   atomic.Bool
	bgWG     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates an engine. Call Recover to load the snapshot and Start to
// launch background work.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Snapshot.Logger == nil {
		cfg.Snapshot.Logger = cfg.Logger
	}

	mgr, err := snapshot.NewManager(cfg.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		store:    memory.New(memory.WithClock(cfg.Clock)),
		snapshot: mgr,
		archive:  cfg.Archive,
		logger:   cfg.Logger,
		now:      cfg.Clock,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	e.sweeper = memory.NewSweeper(e.store, memory.SweeperConfig{
		Interval: cfg.SweepInterval,
		Limit:    cfg.SweepLimit,
		Locker:   e,
		Logger:   cfg.Logger,
	})
	e.lastSave.Store(cfg.Clock().Unix())
	return e, nil
}

// Lock acquires the execution lock. Every command runs under it.
func (e *Engine) Lock() { e.mu.Lock() }

// Unlock releases the execution lock.
func (e *Engine) Unlock() { e.mu.Unlock() }

// Store returns the keyspace.
func (e *Engine) Store() *memory.Store { return e.store }

// Snapshots returns the snapshot file manager.
func (e *Engine) Snapshots() *snapshot.Manager { return e.snapshot }

// Archive returns the archive, nil when disabled.
func (e *Engine) Archive() *Archive { return e.archive }

// Recover loads <dir>/<dbfilename> into the store. A missing file is not an
// error. A corrupt file is logged and the store stays empty.
func (e *Engine) Recover() (int, error) {
	start := e.now()
	snap, info, err := e.snapshot.Load(start)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			e.logger.Info("no snapshot found, starting with empty keyspace", "path", e.snapshot.Path())
			return 0, nil
		}
		e.logger.Error("snapshot load failed, starting with empty keyspace",
			"path", e.snapshot.Path(),
			"error", err)
		return 0, err
	}

	e.Lock()
	e.store.Replace(EntriesFromRecords(snap.Records))
	e.Unlock()

	e.logger.Info("snapshot loaded",
		"path", info.Path,
		"keys", len(snap.Records),
		"skipped_expired", snap.Skipped,
		"elapsed", time.Since(start))
	return len(snap.Records), nil
}

// Load replaces the keyspace with an RDB payload, as received by a replica
// during full resync. The caller must not hold the lock.
func (e *Engine) Load(payload []byte) (int, error) {
	snap, err := snapshot.Decode(bytes.NewReader(payload), e.now())
	if err != nil {
		return 0, err
	}
	e.Lock()
	e.store.Replace(EntriesFromRecords(snap.Records))
	e.Unlock()
	return len(snap.Records), nil
}

// Records returns the string keys as snapshot records. The caller must
// hold the lock.
func (e *Engine) Records() []rdb.Record {
	return RecordsFromEntries(e.store.Entries())
}

// Dump encodes the current keyspace. The caller must hold the lock.
func (e *Engine) Dump() ([]byte, error) {
	return snapshot.Encode(e.Records(), e.now())
}

// Save writes the snapshot synchronously, taking the lock to collect
// records.
func (e *Engine) Save(ctx context.Context) (*snapshot.Info, error) {
	e.Lock()
	records := e.Records()
	e.Unlock()
	return e.save(ctx, records)
}

// SaveLocked is Save for callers already holding the lock.
func (e *Engine) SaveLocked(ctx context.Context) (*snapshot.Info, error) {
	return e.save(ctx, e.Records())
}

func (e *Engine) save(ctx context.Context, records []rdb.Record) (*snapshot.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	now := e.now()

	info, data, err := e.snapshot.Save(records, now)
	if err != nil {
		return nil, err
	}
	e.lastSave.Store(now.Unix())

	if e.archive != nil {
		entry, stored, err := e.archive.Put(data, info.Keys, now)
		switch {
		case err != nil:
			e.logger.Warn("archive snapshot failed", "error", err)
		case stored:
			e.logger.Debug("snapshot archived", "archive_id", entry.ID)
		}
	}

	elapsed := time.Since(start)
	if e.cfg.OnSave != nil {
		e.cfg.OnSave(info, elapsed)
	}
	e.logger.Info("snapshot saved",
		"path", info.Path,
		"keys", info.Keys,
		"size_bytes", info.Size,
		"elapsed", elapsed)
	return info, nil
}

// BackgroundSave collects records under the held lock and writes them on a
// goroutine. It fails if a background save is already running.
func (e *Engine) BackgroundSave() error {
	if !e.saving.CompareAndSwap(false, true) {
		return ErrSaveInProgress
	}
	records := e.Records()

	e.bgWG.Add(1)
	go func() {
		defer e.bgWG.Done()
		defer e.saving.Store(false)
		if _, err := e.save(context.Background(), records); err != nil {
			e.logger.Error("background save failed", "error", err)
		}
	}()
	return nil
}

// LastSave returns the time of the last successful save, or of startup.
func (e *Engine) LastSave() time.Time {
	return time.Unix(e.lastSave.Load(), 0)
}

// Saving reports whether a background save is running.
func (e *Engine) Saving() bool {
	return e.saving.Load()
}

// Start launches the sweeper and the periodic save loop.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.sweeper.Start()
		go e.backgroundLoop()
	})
}

// backgroundLoop runs periodic snapshot creation.
func (e *Engine) backgroundLoop() {
	defer close(e.doneCh)

	if e.cfg.SnapshotInterval <= 0 {
		<-e.stopCh
		return
	}

	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.saving.Load() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.Save(ctx); err != nil {
				e.logger.Error("auto snapshot failed", "error", err)
			}
			cancel()

		case <-e.stopCh:
			return
		}
	}
}

// Close stops background work and waits for a running background save.
// It does not write a final snapshot; call Save first if one is wanted.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() {
		e.logger.Info("shutting down storage engine")
		e.sweeper.Stop()
		close(e.stopCh)
		e.startOnce.Do(func() { close(e.doneCh) })
		<-e.doneCh
		e.bgWG.Wait()
	})
	return nil
}

// RecordsFromEntries converts string values to snapshot records. Lists and
// streams have no representation in the string-only format and are left
// out.
func RecordsFromEntries(entries []memory.Entry) []rdb.Record {
	out := make([]rdb.Record, 0, len(entries))
	for _, ent := range entries {
		if ent.Value == nil || ent.Value.Kind != domain.KindString {
			continue
		}
		out = append(out, rdb.Record{
			Key:       ent.Key,
			Value:     ent.Value.Str,
			ExpiresAt: ent.Value.ExpiresAt,
		})
	}
	return out
}

// EntriesFromRecords converts loaded records to store entries.
func EntriesFromRecords(records []rdb.Record) []memory.Entry {
	out := make([]memory.Entry, 0, len(records))
	for _, r := range records {
		v := domain.NewString(r.Value)
		if !r.ExpiresAt.IsZero() {
			v = v.WithExpiry(r.ExpiresAt)
		}
		out = append(out, memory.Entry{Key: r.Key, Value: v})
	}
	return out
}
