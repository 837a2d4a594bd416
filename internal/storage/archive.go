package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/respkv/internal/storage/snapshot"
	"github.com/yndnr/respkv/pkg/crypto/seal"
)

var (
	ErrArchiveEntryNotFound = errors.New("archive: entry not found")
	ErrArchiveClosed        = errors.New("archive: closed")
	ErrDigestMismatch       = errors.New("archive: digest mismatch")
)

// Badger key layout.
var (
	metaPrefix = []byte("m/")
	dataPrefix = []byte("d/")
	saltKey    = []byte("sys/salt")
)

const (
	DefaultArchiveRetention  = 24
	DefaultArchiveGCInterval = 10 * time.Minute
	archivePurpose           = "respkv-archive"
)

// ArchiveConfig configures the snapshot archive.
type ArchiveConfig struct {
	// Dir is the Badger directory.
	Dir string

	// Retention is the number of entries kept. 0 keeps everything.
	Retention int

	// GCInterval is the value log GC period. 0 uses the default.
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC.
	GCThreshold float64

	// Passphrase enables encryption at rest when set.
	Passphrase string

	// Algorithm selects the AEAD, empty for the platform default.
	Algorithm string

	// CacheSize is Badger's block cache size in bytes.
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64

	// SyncWrites makes every write durable before returning.
	SyncWrites bool

	// InMemory runs Badger without touching disk, for tests.
	InMemory bool
}

// DefaultArchiveConfig returns the default archive configuration.
func DefaultArchiveConfig(dir string) ArchiveConfig {
	return ArchiveConfig{
		Dir:              dir,
		Retention:        DefaultArchiveRetention,
		GCInterval:       DefaultArchiveGCInterval,
		GCThreshold:      0.5,
		CacheSize:        16 << 20,
		ValueLogFileSize: 64 << 20,
		SyncWrites:       true,
	}
}

// ArchiveEntry describes one archived snapshot.
type ArchiveEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Keys      int       `json:"keys"`
	Size      int64     `json:"size"`
	Digest    string    `json:"digest"`
	Encrypted bool      `json:"encrypted"`
}

// Archive keeps a rolling history of RDB snapshots in Badger, keyed by
// ULID so lexical key order is creation order.
type Archive struct {
	db     *badger.DB
	cfg    ArchiveConfig
	sealer *seal.Sealer
	logger *slog.Logger

	mu      sync.Mutex // serializes Put/Prune
	entropy *ulid.MonotonicEntropy
	closed  atomic.Bool

	lastGCTime atomic.Int64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsEntries      prometheus.Gauge
	metricsDeduped      prometheus.Counter

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenArchive opens or creates the archive.
func OpenArchive(cfg ArchiveConfig, logger *slog.Logger) (*Archive, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("archive: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultArchiveGCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger.With("component", "badger")}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("archive: open badger: %w", err)
	}

	a := &Archive{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if cfg.Passphrase != "" {
		if err := a.initSealer(); err != nil {
			db.Close()
			return nil, err
		}
	}

	go a.gcLoop()

	logger.Info("snapshot archive opened",
		"dir", cfg.Dir,
		"retention", cfg.Retention,
		"encrypted", a.sealer != nil)
	return a, nil
}

// initSealer loads or creates the archive salt and derives the key.
func (a *Archive) initSealer() error {
	var salt []byte
	err := a.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(saltKey)
		if err == nil {
			salt, err = item.ValueCopy(nil)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if salt, err = seal.NewSalt(); err != nil {
			return err
		}
		return txn.Set(saltKey, salt)
	})
	if err != nil {
		return fmt.Errorf("archive: load salt: %w", err)
	}

	s, err := seal.New(seal.Config{
		Passphrase: []byte(a.cfg.Passphrase),
		Salt:       salt,
		Purpose:    archivePurpose,
		Algorithm:  seal.Algorithm(a.cfg.Algorithm),
	})
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	a.sealer = s
	return nil
}

// Put archives an RDB payload. When its digest equals the newest entry's,
// nothing is written and the existing entry is returned with stored=false.
func (a *Archive) Put(data []byte, keys int, now time.Time) (entry *ArchiveEntry, stored bool, err error) {
	if a.closed.Load() {
		return nil, false, ErrArchiveClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	digest := snapshot.Digest(data)
	if latest, err := a.latest(); err == nil && latest.Digest == digest {
		if a.metricsDeduped != nil {
			a.metricsDeduped.Inc()
		}
		return latest, false, nil
	} else if err != nil && !errors.Is(err, ErrArchiveEntryNotFound) {
		return nil, false, err
	}

	id, err := ulid.New(ulid.Timestamp(now), a.entropy)
	if err != nil {
		return nil, false, fmt.Errorf("archive: new id: %w", err)
	}
	entry = &ArchiveEntry{
		ID:        id.String(),
		CreatedAt: now,
		Keys:      keys,
		Size:      int64(len(data)),
		Digest:    digest,
		Encrypted: a.sealer != nil,
	}

	payload := data
	if a.sealer != nil {
		if payload, err = a.sealer.Seal(data, []byte(entry.ID)); err != nil {
			return nil, false, fmt.Errorf("archive: seal: %w", err)
		}
	}
	meta, err := json.Marshal(entry)
	if err != nil {
		return nil, false, fmt.Errorf("archive: marshal entry: %w", err)
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(entry.ID), meta); err != nil {
			return err
		}
		return txn.Set(dataKey(entry.ID), payload)
	})
	if err != nil {
		return nil, false, fmt.Errorf("archive: write: %w", err)
	}

	if a.cfg.Retention > 0 {
		if _, err := a.pruneLocked(a.cfg.Retention); err != nil {
			a.logger.Warn("archive prune failed", "error", err)
		}
	}
	return entry, true, nil
}

// List returns all entries, oldest first.
func (a *Archive) List() ([]ArchiveEntry, error) {
	var out []ArchiveEntry
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = metaPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e ArchiveEntry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return out, nil
}

// Latest returns the newest entry.
func (a *Archive) Latest() (*ArchiveEntry, error) {
	return a.latest()
}

func (a *Archive) latest() (*ArchiveEntry, error) {
	var entry *ArchiveEntry
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = metaPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the last key with the prefix.
		it.Seek(append(append([]byte(nil), metaPrefix...), 0xFF))
		if !it.Valid() {
			return ErrArchiveEntryNotFound
		}
		entry = &ArchiveEntry{}
		return it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns the entry and its plaintext RDB payload, verifying the digest.
func (a *Archive) Get(id string) (*ArchiveEntry, []byte, error) {
	var (
		entry ArchiveEntry
		data  []byte
	)
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &entry) }); err != nil {
			return err
		}
		item, err = txn.Get(dataKey(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, ErrArchiveEntryNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("archive: get: %w", err)
	}

	if entry.Encrypted {
		if a.sealer == nil {
			return nil, nil, fmt.Errorf("archive: entry %s is encrypted and no passphrase is configured", id)
		}
		if data, err = a.sealer.Open(data, []byte(entry.ID)); err != nil {
			return nil, nil, fmt.Errorf("archive: %w", err)
		}
	}
	if snapshot.Digest(data) != entry.Digest {
		return nil, nil, ErrDigestMismatch
	}
	return &entry, data, nil
}

// Prune keeps the newest keep entries and returns how many were removed.
func (a *Archive) Prune(keep int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pruneLocked(keep)
}

func (a *Archive) pruneLocked(keep int) (int, error) {
	entries, err := a.List()
	if err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}
	if len(entries) <= keep {
		a.setEntriesGauge(len(entries))
		return 0, nil
	}

	victims := entries[:len(entries)-keep]
	err = a.db.Update(func(txn *badger.Txn) error {
		for _, e := range victims {
			if err := txn.Delete(metaKey(e.ID)); err != nil {
				return err
			}
			if err := txn.Delete(dataKey(e.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive: prune: %w", err)
	}
	a.setEntriesGauge(keep)
	a.logger.Debug("archive pruned", "removed", len(victims), "kept", keep)
	return len(victims), nil
}

// GC runs Badger value log GC until nothing more can be rewritten.
func (a *Archive) GC() error {
	if a.cfg.InMemory {
		return nil
	}
	for {
		err := a.db.RunValueLogGC(a.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return fmt.Errorf("archive: gc: %w", err)
		}
	}
	a.lastGCTime.Store(time.Now().UnixMilli())
	return nil
}

// Size returns the LSM and value log sizes in bytes.
func (a *Archive) Size() (lsm, vlog int64) {
	return a.db.Size()
}

// Encrypted reports whether new entries are sealed.
func (a *Archive) Encrypted() bool {
	return a.sealer != nil
}

// Close stops GC and closes Badger.
func (a *Archive) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(a.stopCh)
	<-a.doneCh

	if err := a.db.Close(); err != nil {
		return fmt.Errorf("archive: close: %w", err)
	}
	a.logger.Info("snapshot archive closed")
	return nil
}

// RegisterMetrics registers archive gauges with reg.
func (a *Archive) RegisterMetrics(reg prometheus.Registerer) *Archive {
	a.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "respkv",
		Subsystem: "archive",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	a.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "respkv",
		Subsystem: "archive",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	a.metricsEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "respkv",
		Subsystem: "archive",
		Name:      "entries",
		Help:      "Number of archived snapshots",
	})
	a.metricsDeduped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "respkv",
		Subsystem: "archive",
		Name:      "deduplicated_total",
		Help:      "Snapshots not archived because they matched the newest entry",
	})
	reg.MustRegister(a.metricsLSMSize, a.metricsValueLogSize, a.metricsEntries, a.metricsDeduped)

	if entries, err := a.List(); err == nil {
		a.metricsEntries.Set(float64(len(entries)))
	}
	a.updateSizeGauges()
	return a
}

func (a *Archive) setEntriesGauge(n int) {
	if a.metricsEntries != nil {
		a.metricsEntries.Set(float64(n))
	}
}

func (a *Archive) updateSizeGauges() {
	if a.metricsLSMSize == nil {
		return
	}
	lsm, vlog := a.db.Size()
	a.metricsLSMSize.Set(float64(lsm))
	a.metricsValueLogSize.Set(float64(vlog))
}

// gcLoop runs periodic value log GC and refreshes size gauges.
func (a *Archive) gcLoop() {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.GC(); err != nil {
				a.logger.Error("archive gc failed", "error", err)
			}
			a.updateSizeGauges()
		case <-a.stopCh:
			return
		}
	}
}

func metaKey(id string) []byte { return append(append([]byte(nil), metaPrefix...), id...) }
func dataKey(id string) []byte { return append(append([]byte(nil), dataPrefix...), id...) }

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger's
// info chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
