// ════════════════════════════════════════════════════════════════════════════════════════════════
// Quiescent-State Based Reclamation
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Deferred Reuse Of Published Objects
//
// Description:
//   Epoch scheme. Writers retire objects after unpublishing them; every retirement is stamped
//   with the current global epoch and bumps it. Readers periodically announce the epoch they
//   observed while outside any critical section. An object retired at epoch E is handed to its
//   callback once every online reader has announced an epoch greater than E.
//
// Threads:
//   - Readers: Lock/Unlock around dereferences, Quiescent between them
//   - Writers: one Retirer each, Retire never blocks
//   - Callback goroutine: Step drains retirers and fires callbacks
//
// Ordering:
//   Publication happens before Retire's epoch bump. A reader that loaded the bumped epoch
//   therefore loads the new pointer on its next dereference. All cross-goroutine accesses are
//   sequentially consistent sync/atomic operations.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package rcu

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"tradecore/cacheline"
	"tradecore/spsc"
)

// offline is the announced epoch of a reader that holds no references.
const offline = 0

// ErrRetireOverflow is raised when a writer retires faster than the callback
// goroutine drains.
var ErrRetireOverflow = errors.New("rcu: retire ring full")

// Domain tracks readers and retirers that share a grace-period clock.
type Domain struct {
	epoch cacheline.Padded[atomic.Uint64]

	mu       sync.Mutex
	readers  atomic.Pointer[[]*Reader]
	retirers atomic.Pointer[[]*Retirer]

	fired   atomic.Uint64
	retired atomic.Uint64
}

// NewDomain creates an empty domain.
func NewDomain() *Domain {
	d := &Domain{}
	d.epoch.Value().Store(1)
	d.readers.Store(&[]*Reader{})
	d.retirers.Store(&[]*Retirer{})
	return d
}

// Epoch returns the current global epoch.
func (d *Domain) Epoch() uint64 { return d.epoch.Value().Load() }

// ─────────────────────────────── Readers ───────────────────────────────────

// Reader is the per-goroutine read-side handle. Not safe for concurrent use.
type Reader struct {
	announced cacheline.Padded[atomic.Uint64]
	d         *Domain
	depth     int32
	entry     uint64 // epoch at the first Lock since the last quiescent state
}

// Register adds an online reader that has just passed a quiescent state.
func (d *Domain) Register() *Reader {
	r := &Reader{d: d}
	r.announced.Value().Store(d.Epoch())

	d.mu.Lock()
	old := *d.readers.Load()
	next := make([]*Reader, len(old), len(old)+1)
	copy(next, old)
	next = append(next, r)
	d.readers.Store(&next)
	d.mu.Unlock()
	return r
}

// Unregister removes r. r must be outside any critical section.
func (r *Reader) Unregister() {
	r.mustBeOutside("unregister")
	r.announced.Value().Store(offline)

	d := r.d
	d.mu.Lock()
	old := *d.readers.Load()
	next := make([]*Reader, 0, len(old))
	for _, x := range old {
		if x != r {
			next = append(next, x)
		}
	}
	d.readers.Store(&next)
	d.mu.Unlock()
}

// Lock opens a read-side critical section. Sections nest. The first Lock
// after a quiescent state samples the epoch that the next Quiescent
// announces, so a reader never claims an epoch newer than the data it read.
//
//go:nosplit
//go:inline
func (r *Reader) Lock() {
	if r.depth == 0 && r.entry == 0 {
		r.entry = r.d.epoch.Value().Load()
	}
	r.depth++
}

// Unlock closes the innermost critical section.
func (r *Reader) Unlock() {
	if r.depth == 0 {
		panic("rcu: unlock without lock")
	}
	r.depth--
}

// Quiescent announces that r holds no references obtained before this call.
// The announced epoch is the one sampled at the first Lock since the previous
// quiescent state, or the current epoch when r has not locked since.
func (r *Reader) Quiescent() {
	r.mustBeOutside("quiescent state")
	e := r.entry
	if e == 0 {
		e = r.d.epoch.Value().Load()
	}
	r.entry = 0
	r.announced.Value().Store(e)
}

// Offline excludes r from grace periods until Online. Use before blocking.
func (r *Reader) Offline() {
	r.mustBeOutside("offline")
	r.entry = 0
	r.announced.Value().Store(offline)
}

// Online rejoins grace-period accounting.
func (r *Reader) Online() {
	r.announced.Value().Store(r.d.epoch.Value().Load())
}

// InCritical reports whether r is inside a critical section.
func (r *Reader) InCritical() bool { return r.depth > 0 }

func (r *Reader) mustBeOutside(op string) {
	if r.depth != 0 {
		panic("rcu: " + op + " inside a critical section")
	}
}

// oldest returns the smallest epoch announced by an online reader, or
// MaxUint64 when no reader is online.
func (d *Domain) oldest() uint64 {
	low := uint64(math.MaxUint64)
	for _, r := range *d.readers.Load() {
		if e := r.announced.Value().Load(); e != offline && e < low {
			low = e
		}
	}
	return low
}

// Readers returns the number of registered readers.
func (d *Domain) Readers() int { return len(*d.readers.Load()) }

// ─────────────────────────────── Retirers ──────────────────────────────────

// retirement travels from a writer to the callback goroutine.
type retirement struct {
	ref   uint64
	epoch uint64
}

// Retirer is one writer's retirement channel. Retire is for the owning writer
// only. The callback runs on the goroutine calling Domain.Step.
type Retirer struct {
	ring    *spsc.Ring[retirement]
	pending *queue.Queue
	fn      func(ref uint64)
	d       *Domain
}

// NewRetirer registers a writer-side channel able to hold capacity
// retirements in flight (power of two). fn receives each retired reference
// once its grace period has elapsed.
func (d *Domain) NewRetirer(capacity int, fn func(ref uint64)) *Retirer {
	if fn == nil {
		panic("rcu: nil reclaim callback")
	}
	rt := &Retirer{
		ring:    spsc.New[retirement](capacity),
		pending: queue.New(),
		fn:      fn,
		d:       d,
	}

	d.mu.Lock()
	old := *d.retirers.Load()
	next := make([]*Retirer, len(old), len(old)+1)
	copy(next, old)
	next = append(next, rt)
	d.retirers.Store(&next)
	d.mu.Unlock()
	return rt
}

// Retire schedules ref for its callback. The object must already be
// unreachable for new readers. A full ring panics with ErrRetireOverflow.
func (rt *Retirer) Retire(ref uint64) {
	e := rt.ring.TryEnqueue()
	if !e.Ok() {
		panic(ErrRetireOverflow)
	}
	v := e.Value()
	v.ref = ref
	v.epoch = rt.d.epoch.Value().Add(1) - 1
	rt.d.retired.Add(1)
	e.Commit()
}

// drain moves everything from the ring into the local FIFO. Stamps are
// monotonic per retirer, so the FIFO stays sorted by epoch.
func (rt *Retirer) drain() {
	for {
		d := rt.ring.TryDequeue()
		if !d.Ok() {
			return
		}
		rt.pending.Add(*d.Value())
		d.Release()
	}
}

// fire runs callbacks for every retirement older than horizon.
func (rt *Retirer) fire(horizon uint64) int {
	n := 0
	for rt.pending.Length() > 0 {
		r := rt.pending.Peek().(retirement)
		if r.epoch >= horizon {
			break
		}
		rt.pending.Remove()
		rt.fn(r.ref)
		n++
	}
	return n
}

// ─────────────────────────────── Callback side ─────────────────────────────

// Step drains every retirer and fires the callbacks whose grace period has
// elapsed. Single callback goroutine only. Returns the number fired.
func (d *Domain) Step() int {
	retirers := *d.retirers.Load()
	for _, rt := range retirers {
		rt.drain()
	}
	// Reader states are read after the drain so every drained stamp is
	// compared against announcements made after its retirement.
	horizon := d.oldest()
	n := 0
	for _, rt := range retirers {
		n += rt.fire(horizon)
	}
	d.fired.Add(uint64(n))
	return n
}

// Pending is the number of retirements not yet handed to their callback.
func (d *Domain) Pending() int {
	return int(d.retired.Load() - d.fired.Load())
}

// Fired is the number of callbacks run so far.
func (d *Domain) Fired() uint64 { return d.fired.Load() }

// Synchronize waits until every reader online at the time of the call has
// passed a quiescent state. Cold path. Must not be called by a reader inside
// a critical section.
func (d *Domain) Synchronize(ctx context.Context) error {
	target := d.epoch.Value().Add(1)
	for spins := 0; ; spins++ {
		if d.oldest() >= target {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if spins < 64 {
			runtime.Gosched()
			continue
		}
		time.Sleep(50 * time.Microsecond)
	}
}

// Barrier steps until every retirement made before the call has fired, or
// ctx ends. The caller must be the callback goroutine.
func (d *Domain) Barrier(ctx context.Context) error {
	goal := d.retired.Load()
	for d.fired.Load() < goal {
		if d.Step() > 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}
