package snapshot

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/yndnr/respkv/internal/storage/rdb"
)

var (
	ErrNotFound = errors.New("snapshot: not found")
)

// Defaults match the well-known server.
const (
	DefaultDir        = "."
	DefaultDBFilename = "dump.rdb"
)

// Config configures the snapshot manager.
type Config struct {
	Dir        string
	DBFilename string
	Logger     *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Dir:        DefaultDir,
		DBFilename: DefaultDBFilename,
	}
}

// Info describes a saved or loaded snapshot.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Keys      int       `json:"keys"`
	CreatedAt time.Time `json:"created_at"`
	Digest    string    `json:"digest"`
}

// Manager reads and writes the snapshot file.
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

// NewManager creates a Manager. The directory is created on first save.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.DBFilename == "" {
		cfg.DBFilename = DefaultDBFilename
	}
	if filepath.Base(cfg.DBFilename) != cfg.DBFilename {
		return nil, fmt.Errorf("snapshot: dbfilename %q must not contain a path", cfg.DBFilename)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: cfg.Logger}, nil
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string { return m.cfg.Dir }

// DBFilename returns the snapshot file name.
func (m *Manager) DBFilename() string { return m.cfg.DBFilename }

// Path returns <dir>/<dbfilename>.
func (m *Manager) Path() string {
	return filepath.Join(m.cfg.Dir, m.cfg.DBFilename)
}

// Encode renders records as an RDB byte slice, as sent to replicas.
func Encode(records []rdb.Record, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := rdb.Encode(&buf, records, rdb.EncodeOptions{Now: now}); err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Digest returns the hex BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewDigest returns a streaming hash whose hex sum matches Digest.
func NewDigest() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}

// Save writes records to the snapshot file atomically and returns the
// written bytes together with the file info.
func (m *Manager) Save(records []rdb.Record, now time.Time) (*Info, []byte, error) {
	data, err := Encode(records, now)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(m.cfg.Dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("snapshot: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(m.cfg.Dir, "temp-"+m.cfg.DBFilename+"-*")
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, nil, fmt.Errorf("snapshot: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, nil, fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, nil, fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmpPath, m.Path()); err != nil {
		return nil, nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	info := &Info{
		Path:      m.Path(),
		Size:      int64(len(data)),
		Keys:      countLive(records, now),
		CreatedAt: now,
		Digest:    Digest(data),
	}
	m.logger.Debug("snapshot written", "path", info.Path, "size_bytes", info.Size, "keys", info.Keys)
	return info, data, nil
}

// Load reads and decodes the snapshot file. Records already expired at now
// are dropped. A missing file returns ErrNotFound.
func (m *Manager) Load(now time.Time) (*rdb.Snapshot, *Info, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("snapshot: read: %w", err)
	}

	snap, err := Decode(bytes.NewReader(data), now)
	if err != nil {
		return nil, nil, err
	}
	if !snap.ChecksumOK {
		m.logger.Warn("snapshot checksum mismatch, loading anyway", "path", m.Path())
	}

	st, err := os.Stat(m.Path())
	created := now
	if err == nil {
		created = st.ModTime()
	}
	info := &Info{
		Path:      m.Path(),
		Size:      int64(len(data)),
		Keys:      len(snap.Records),
		CreatedAt: created,
		Digest:    Digest(data),
	}
	return snap, info, nil
}

// Decode decodes an RDB stream relative to now.
func Decode(r io.Reader, now time.Time) (*rdb.Snapshot, error) {
	snap, err := rdb.Decode(r, rdb.WithClock(func() time.Time { return now }))
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return snap, nil
}

func countLive(records []rdb.Record, now time.Time) int {
	n := 0
	for _, r := range records {
		if r.ExpiresAt.IsZero() || r.ExpiresAt.After(now) {
			n++
		}
	}
	return n
}
