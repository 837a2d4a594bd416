package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultReplicaQueueSize bounds the frames buffered for one replica.
const DefaultReplicaQueueSize = 4096

// PrimaryConfig configures a Primary.
type PrimaryConfig struct {
	// ReplID is the replication ID. Empty generates a random 40-char ID.
	ReplID string

	// QueueSize bounds the per-replica outbound queue.
	QueueSize int

	// WriteTimeout bounds a single write to a replica socket.
	WriteTimeout time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ReplicaConn is the outbound side of a replica connection.
type ReplicaConn interface {
	io.Writer
	io.Closer
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Replica is a connected replica fed by its own writer goroutine.
type Replica struct {
	ID            string
	Addr          string
	ListeningPort string

	conn       ReplicaConn
	out        chan []byte
	baseOffset int64 // primary offset at registration; set under Primary.mu
	ackOffset  atomic.Int64
	removed   bool // guarded by Primary.mu
	done      chan struct{}
}

// AckOffset returns the last offset the replica acknowledged. Replicas
// count from zero at the end of their full resync.
func (r *Replica) AckOffset() int64 {
	return r.ackOffset.Load()
}

// acked returns the acknowledged position in the primary's offset space.
func (r *Replica) acked() int64 {
	return r.baseOffset + r.ackOffset.Load()
}

// Done is closed when the replica's writer goroutine exits.
func (r *Replica) Done() <-chan struct{} {
	return r.done
}

// ReplicaInfo is a read-only view of a replica for INFO and metrics.
type ReplicaInfo struct {
	ID            string
	Addr          string
	ListeningPort string
	// BaseOffset is the primary offset the replica's snapshot reflects.
	BaseOffset int64
	// AckOffset is the acknowledged position in the primary's offset space.
	AckOffset int64
}

// Primary tracks replicas, propagates writes and answers WAIT.
type Primary struct {
	cfg    PrimaryConfig
	logger *slog.Logger

	mu         sync.Mutex
	replID     string
	offset     int64
	replicas   []*Replica
	ackWaiters []*AckWaiter
}

// NewPrimary creates a Primary with no replicas and offset 0.
func NewPrimary(cfg PrimaryConfig) *Primary {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultReplicaQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReplID == "" {
		cfg.ReplID = NewReplID()
	}
	return &Primary{
		cfg:    cfg,
		logger: cfg.Logger,
		replID: cfg.ReplID,
	}
}

// NewReplID returns a random 40 hex character replication ID.
func NewReplID() string {
	var b [20]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ReplID returns the replication ID.
func (p *Primary) ReplID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replID
}

// Offset returns the number of bytes propagated so far.
func (p *Primary) Offset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// ReplicaCount returns the number of live replicas.
func (p *Primary) ReplicaCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.replicas)
}

// Replicas returns a snapshot of the live replicas in registration order.
func (p *Primary) Replicas() []ReplicaInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ReplicaInfo, len(p.replicas))
	for i, r := range p.replicas {
		out[i] = ReplicaInfo{
			ID:            r.ID,
			Addr:          r.Addr,
			ListeningPort: r.ListeningPort,
			BaseOffset:    r.baseOffset,
			AckOffset:     r.acked(),
		}
	}
	return out
}

// AddReplica registers conn as a replica. preamble (the full-resync reply
// and snapshot) is written before any propagated frame. The replica's
// acknowledgements are taken relative to the offset at registration, which
// must be the offset announced in the preamble.
func (p *Primary) AddReplica(conn ReplicaConn, addr, listeningPort string, preamble []byte) *Replica {
	r := &Replica{
		ID:            ulid.Make().String(),
		Addr:          addr,
		ListeningPort: listeningPort,
		conn:          conn,
		out:           make(chan []byte, p.cfg.QueueSize),
		done:          make(chan struct{}),
	}
	if len(preamble) > 0 {
		r.out <- preamble
	}

	p.mu.Lock()
	r.baseOffset = p.offset
	p.replicas = append(p.replicas, r)
	p.mu.Unlock()

	go p.writeLoop(r)

	p.logger.Info("replica attached",
		"replica_id", r.ID,
		"addr", addr,
		"listening_port", listeningPort)
	return r
}

// RemoveReplica detaches r and closes its connection.
func (p *Primary) RemoveReplica(r *Replica) {
	p.mu.Lock()
	removed := p.removeLocked(r)
	p.mu.Unlock()

	if removed {
		p.logger.Info("replica detached", "replica_id", r.ID, "addr", r.Addr)
	}
}

func (p *Primary) removeLocked(r *Replica) bool {
	if r.removed {
		return false
	}
	r.removed = true
	for i, other := range p.replicas {
		if other == r {
			p.replicas = append(p.replicas[:i:i], p.replicas[i+1:]...)
			break
		}
	}
	close(r.out)
	p.checkAcksLocked()
	return true
}

// Propagate queues frame for every replica and advances the offset by its
// length whether or not any replica accepts it.
func (p *Primary) Propagate(frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.offset += int64(len(frame))
	p.broadcastLocked(frame)
}

// RequestAcks sends REPLCONF GETACK * to every replica. The request does not
// advance the offset.
func (p *Primary) RequestAcks(frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcastLocked(frame)
}

func (p *Primary) broadcastLocked(frame []byte) {
	var overflow []*Replica
	for _, r := range p.replicas {
		select {
		case r.out <- frame:
		default:
			overflow = append(overflow, r)
		}
	}
	for _, r := range overflow {
		p.logger.Warn("replica queue full, dropping replica", "replica_id", r.ID, "addr", r.Addr)
		p.removeLocked(r)
	}
}

func (p *Primary) writeLoop(r *Replica) {
	defer close(r.done)
	defer r.conn.Close()

	for frame := range r.out {
		if d, ok := r.conn.(deadliner); ok && p.cfg.WriteTimeout > 0 {
			_ = d.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
		}
		if _, err := r.conn.Write(frame); err != nil {
			p.logger.Warn("replica write failed", "replica_id", r.ID, "error", err)
			p.RemoveReplica(r)
			// Drain so RemoveReplica's close ends the loop.
			for range r.out {
			}
			return
		}
	}
}

// Ack records an acknowledged offset from r.
func (p *Primary) Ack(r *Replica, offset int64) {
	for {
		cur := r.ackOffset.Load()
		if offset <= cur || r.ackOffset.CompareAndSwap(cur, offset) {
			break
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkAcksLocked()
}

// countAckedLocked counts replicas that acknowledged at least target.
func (p *Primary) countAckedLocked(target int64) int {
	n := 0
	for _, r := range p.replicas {
		if r.acked() >= target {
			n++
		}
	}
	return n
}

// AckedCount returns how many replicas acknowledged at least target.
func (p *Primary) AckedCount(target int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countAckedLocked(target)
}

func (p *Primary) checkAcksLocked() {
	kept := p.ackWaiters[:0]
	for _, w := range p.ackWaiters {
		if n := p.countAckedLocked(w.target); n >= w.need {
			w.resolveLocked(n)
			continue
		}
		kept = append(kept, w)
	}
	clear(p.ackWaiters[len(kept):])
	p.ackWaiters = kept
}

// AckWaiter is a pending WAIT.
type AckWaiter struct {
	p      *Primary
	target int64
	need   int
	done   bool // guarded by p.mu
	result chan int
}

// WaitForAcks registers a WAIT for need replicas to reach target. It is
// resolved immediately when enough replicas already have.
func (p *Primary) WaitForAcks(need int, target int64) *AckWaiter {
	w := &AckWaiter{p: p, target: target, need: need, result: make(chan int, 1)}

	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.countAckedLocked(target); n >= need {
		w.resolveLocked(n)
		return w
	}
	p.ackWaiters = append(p.ackWaiters, w)
	return w
}

func (w *AckWaiter) resolveLocked(n int) {
	if w.done {
		return
	}
	w.done = true
	w.result <- n
}

// Wait returns the number of replicas that reached the target when enough
// did, or when the timeout elapses or ctx ends. timeout <= 0 waits without
// limit.
func (w *AckWaiter) Wait(ctx context.Context, timeout time.Duration) int {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case n := <-w.result:
		return n
	case <-timer:
	case <-ctx.Done():
	}

	p := w.p
	p.mu.Lock()
	if w.done {
		p.mu.Unlock()
		return <-w.result
	}
	w.done = true
	for i, other := range p.ackWaiters {
		if other == w {
			p.ackWaiters = append(p.ackWaiters[:i:i], p.ackWaiters[i+1:]...)
			break
		}
	}
	n := p.countAckedLocked(w.target)
	p.mu.Unlock()
	return n
}
