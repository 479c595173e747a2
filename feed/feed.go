// ════════════════════════════════════════════════════════════════════════════════════════════════
// Market Data Feed
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: RCU Writer Publishing Receive Positions
//
// Description:
//   The writer polls every partition link once per step. When any partition has new bytes it
//   publishes the descriptor it has been filling and retires the previously published one.
//   Retired descriptors come back through a lock-free reclaim stack once their grace period has
//   elapsed; the smallest position recorded across a drained batch bounds how far each link may
//   be flushed.
//
// Invariants:
//   - published != current at all times
//   - A published descriptor is never written until its reclaim callback has fired
//   - Flush positions only move forward
//
// Threads:
//   Step runs on the writer goroutine. Poll may be called from any registered reader inside a
//   critical section. The reclaim callback runs on the domain's callback goroutine.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package feed

import (
	"errors"
	"math"
	"math/bits"
	"sync/atomic"

	"tradecore/debug"
	"tradecore/link"
	"tradecore/pool"
	"tradecore/rcu"
	"tradecore/utils"
)

// ErrNoLinks is returned when a feed is built without partitions.
var ErrNoLinks = errors.New("feed: no partition links")

// Stats are writer-side counters, safe to read from any goroutine.
type Stats struct {
	Published    atomic.Uint64
	Reclaimed    atomic.Uint64
	FlushedBytes atomic.Uint64
	PoolInUse    atomic.Int64
	PoolHigh     atomic.Int64
}

// Feed is the RCU writer over a fixed set of partition links.
type Feed struct {
	name  string
	links []link.Link

	published atomic.Pointer[Descriptor]
	current   *Descriptor

	pds     *pool.Pool[Descriptor]
	stack   *ReclaimStack
	retirer *rcu.Retirer
	domain  *rcu.Domain

	flushed []int64 // per partition, tracks RecvFlush calls
	size    []int   // per partition, last seen window size
	bound   []int64 // scratch for reclaim batches
	lastTs  []int64

	started bool
	stopped bool
	stats   Stats
}

// New builds a feed over links whose descriptors come from a pool of
// poolCapacity entries. The pool must cover the worst-case number of
// descriptors waiting for a grace period.
func New(name string, d *rcu.Domain, links []link.Link, poolCapacity int) (*Feed, error) {
	if len(links) == 0 {
		return nil, ErrNoLinks
	}
	if poolCapacity < 2 {
		return nil, errors.New("feed: descriptor pool needs at least two entries")
	}
	width := len(links)
	f := &Feed{
		name:    name,
		links:   links,
		pds:     pool.New[Descriptor](poolCapacity, false),
		domain:  d,
		flushed: make([]int64, width),
		size:    make([]int, width),
		bound:   make([]int64, width),
		lastTs:  make([]int64, width),
	}
	f.stack = newReclaimStack(f.pds)
	// Every live descriptor but the current one can be in flight.
	f.retirer = d.NewRetirer(1<<bits.Len(uint(f.pds.Cap()-1)), f.reclaim)

	first := f.allocate()
	first.clear()
	f.published.Store(first)
	f.current = f.allocate()
	f.current.clear()
	return f, nil
}

// allocate takes a descriptor from the pool. Exhaustion panics.
func (f *Feed) allocate() *Descriptor {
	ref, d := f.pds.Allocate()
	if d.Positions == nil {
		d.Positions = make([]RecvPosition, len(f.links))
	}
	d.instance = ref
	d.stack = f.stack
	d.next.Store(int32(pool.Nil))
	f.stats.PoolInUse.Store(int64(f.pds.Len()))
	if h := int64(f.pds.HighWater()); h > f.stats.PoolHigh.Load() {
		f.stats.PoolHigh.Store(h)
	}
	return d
}

// reclaim runs on the callback goroutine once no reader can hold ref.
func (f *Feed) reclaim(ref uint64) {
	f.pds.At(pool.Ref(ref)).stack.Push(pool.Ref(ref))
}

// Name identifies the feed in logs and metrics.
func (f *Feed) Name() string { return f.name }

// Width is the number of partitions.
func (f *Feed) Width() int { return len(f.links) }

// Stats exposes the writer counters.
func (f *Feed) Stats() *Stats { return &f.stats }

// Poll returns the latest published descriptor. Callers must be inside an
// rcu read-side critical section and must not keep the pointer past it.
//
//go:nosplit
//go:inline
func (f *Feed) Poll() *Descriptor {
	return f.published.Load()
}

// Start marks the feed live.
func (f *Feed) Start() error {
	if f.started {
		return nil
	}
	f.started = true
	return nil
}

// Stop closes every partition link. Pending retirements are left to the
// callback goroutine.
func (f *Feed) Stop() error {
	if f.stopped {
		return nil
	}
	f.stopped = true
	var first error
	for i, l := range f.links {
		if err := l.Close(); err != nil {
			debug.DropError("feed "+f.name+" close partition "+utils.Itoa(i), err)
			if first == nil {
				first = err
			}
		}
	}
	debug.DropMessage("feed "+f.name, "descriptor pool capacity "+utils.Itoa(f.pds.Cap())+
		", max used "+utils.Itoa(f.pds.HighWater()))
	return first
}

// Step is one writer iteration.
func (f *Feed) Step() {
	published := f.published.Load()
	current := f.current
	changed := false

	for i, l := range f.links {
		window, size := l.RecvPoll()
		if size <= f.size[i] {
			continue
		}
		f.size[i] = size
		p := &current.Positions[i]
		p.Pos = f.flushed[i] + int64(size)
		p.End = window[:size:size]
		p.TsLocal = l.TsLastRecv()
		if p.TsLocal < f.lastTs[i] {
			// Wall clock stepped back; readers rely on monotonic stamps.
			debug.DropMessage("feed "+f.name, "partition "+utils.Itoa(i)+" timestamp regressed")
			p.TsLocal = f.lastTs[i]
		}
		f.lastTs[i] = p.TsLocal
		changed = true
	}

	if changed {
		f.published.Store(current)
		f.retirer.Retire(uint64(published.instance))
		f.stats.Published.Add(1)

		next := f.allocate()
		copy(next.Positions, current.Positions)
		f.current = next
	}

	f.collect()
}

// collect drains the reclaim stack, flushes links up to the smallest
// reclaimed position and recycles the descriptors.
func (f *Feed) collect() {
	ref := f.stack.Drain()
	if ref == pool.Nil {
		return
	}
	for i := range f.bound {
		f.bound[i] = math.MaxInt64
	}
	n := uint64(0)
	for ref != pool.Nil {
		d := f.pds.At(ref)
		for i := range f.bound {
			f.bound[i] = min(f.bound[i], d.Positions[i].Pos)
		}
		next := f.stack.Next(ref)
		f.pds.Release(ref)
		ref = next
		n++
	}
	f.stats.Reclaimed.Add(n)
	f.stats.PoolInUse.Store(int64(f.pds.Len()))

	for i, l := range f.links {
		bound := f.bound[i]
		if bound <= f.flushed[i] || bound == math.MaxInt64 {
			continue
		}
		inc := bound - f.flushed[i]
		if inc > int64(f.size[i]) {
			panic("feed: flush beyond received window")
		}
		f.flushed[i] = bound
		f.size[i] -= int(inc)
		l.RecvFlush(int(inc))
		f.stats.FlushedBytes.Add(uint64(inc))
	}
}

// Flushed returns the flush position of partition i. Writer goroutine only.
func (f *Feed) Flushed(i int) int64 { return f.flushed[i] }
