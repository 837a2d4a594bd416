package memory

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default sweeper settings.
const (
	DefaultSweepInterval = 100 * time.Millisecond
	DefaultSweepLimit    = 200
)

// SweeperConfig configures the active expiry sweeper.
type SweeperConfig struct {
	// Interval between sweeps. Zero disables the sweeper.
	Interval time.Duration

	// Limit caps deletions per sweep.
	Limit int

	// Locker serializes sweeps with command execution. May be nil.
	Locker sync.Locker

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Sweeper periodically removes expired keys that are never read again.
type Sweeper struct {
	store  *Store
	cfg    SweeperConfig
	logger *slog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSweeper creates a sweeper for store. Call Start to run it.
func NewSweeper(store *Store, cfg SweeperConfig) *Sweeper {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultSweepLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper{
		store:  store,
		cfg:    cfg,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the sweep loop. It is a no-op when Interval is zero.
func (s *Sweeper) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	if s.cfg.Interval <= 0 {
		close(s.doneCh)
		return
	}
	go s.loop()
}

// SweepOnce runs a single sweep and returns the number of keys removed.
func (s *Sweeper) SweepOnce() int {
	if s.cfg.Locker != nil {
		s.cfg.Locker.Lock()
		defer s.cfg.Locker.Unlock()
	}
	return s.store.Sweep(s.cfg.Limit)
}

func (s *Sweeper) loop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// A full batch means more are likely pending; keep going until
			// a short batch or a stop request.
			for n := s.SweepOnce(); n >= s.cfg.Limit; n = s.SweepOnce() {
				select {
				case <-s.stopCh:
					return
				default:
				}
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	s.logger.Debug("expiry sweeper stopped")
}
