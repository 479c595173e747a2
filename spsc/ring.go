// ════════════════════════════════════════════════════════════════════════════════════════════════
// SPSC Ring With Scoped Try/Commit
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Single-Producer / Single-Consumer Hand-Off
//
// Description:
//   Fixed-capacity ring of cache-line sized slots shared by exactly one producer goroutine and
//   exactly one consumer goroutine. Neither side ever blocks: full and empty are reported via
//   handle validity and retry policy belongs to the caller.
//
// Memory model:
//   - pPosition is written only by the producer, cPosition only by the consumer
//   - Cross-side reads/writes use atomic Load/Store (plain MOV on amd64), never RMW
//   - Each side caches the other side's counter and refreshes it only when the cached view
//     says full (producer) or empty (consumer)
//
// Slot storage:
//   Slots are raw 64-byte lines, so T must be pointer-free and no larger than one line. Both
//   are checked once in New.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package spsc

import (
	"reflect"
	"sync/atomic"
	"unsafe"

	"tradecore/cacheline"
)

// consumerCtx is written by the consumer only.
type consumerCtx struct {
	cPosition uint64 // items removed; read by the producer
	pLocal    uint64 // last observed pPosition
}

// producerCtx is written by the producer only.
type producerCtx struct {
	pPosition uint64 // items added; read by the consumer
	cLocal    uint64 // last observed cPosition
}

// Ring is a bounded SPSC queue of T values stored in place.
type Ring[T any] struct {
	c     cacheline.Padded[consumerCtx]
	p     cacheline.Padded[producerCtx]
	size  uint64
	mask  uint64
	slots []cacheline.Line
}

// New allocates a ring of capacity slots. capacity must be a positive power
// of two and T must fit a single pointer-free cache line; otherwise New
// panics.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("spsc: capacity must be >0 and a power of two")
	}
	cacheline.CheckPlain(reflect.TypeOf((*T)(nil)).Elem())
	return &Ring[T]{
		size:  uint64(capacity),
		mask:  uint64(capacity - 1),
		slots: cacheline.AlignedLines(capacity),
	}
}

//go:nosplit
//go:inline
func (r *Ring[T]) slot(pos uint64) *T {
	return (*T)(unsafe.Pointer(&r.slots[pos&r.mask]))
}

// ─────────────────────────────── Producer side ──────────────────────────────

// Enqueue is a pending write into the next free slot. A valid handle that is
// dropped without Commit aborts the write: the slot stays free and the next
// TryEnqueue hands out the same slot again.
type Enqueue[T any] struct {
	r    *Ring[T]
	slot *T
	pos  uint64
}

// Ok reports whether a slot was reserved. Value and Commit must not be used
// on an invalid handle.
//
//go:nosplit
//go:inline
func (e Enqueue[T]) Ok() bool { return e.slot != nil }

// Value is the reserved slot. Its contents are whatever was stored there last.
//
//go:nosplit
//go:inline
func (e Enqueue[T]) Value() *T { return e.slot }

// Commit makes the slot visible to the consumer. A handle that is no longer
// the producer's next position (already committed, or stale) is ignored.
//
//go:nosplit
//go:inline
func (e Enqueue[T]) Commit() {
	p := e.r.p.Value()
	if p.pPosition != e.pos {
		return
	}
	atomic.StoreUint64(&p.pPosition, e.pos+1)
}

// TryEnqueue reserves the next slot, or returns an invalid handle when the
// ring is full. Producer goroutine only.
//
//go:nosplit
func (r *Ring[T]) TryEnqueue() Enqueue[T] {
	p := r.p.Value()
	pos := p.pPosition
	if pos-p.cLocal >= r.size {
		p.cLocal = atomic.LoadUint64(&r.c.Value().cPosition)
		if pos-p.cLocal >= r.size {
			return Enqueue[T]{}
		}
	}
	return Enqueue[T]{r: r, slot: r.slot(pos), pos: pos}
}

// Produce reserves a slot and passes it to fn. The write is committed only
// when fn returns true. Produce reports whether a value was committed.
func (r *Ring[T]) Produce(fn func(*T) bool) bool {
	e := r.TryEnqueue()
	if !e.Ok() {
		return false
	}
	if !fn(e.Value()) {
		return false
	}
	e.Commit()
	return true
}

// ─────────────────────────────── Consumer side ──────────────────────────────

// Dequeue is a claim on the oldest committed slot. There is no abort: a valid
// handle must be released once the value has been read.
type Dequeue[T any] struct {
	r    *Ring[T]
	slot *T
	pos  uint64
}

//go:nosplit
//go:inline
func (d Dequeue[T]) Ok() bool { return d.slot != nil }

// Value is the claimed slot. Callers must not write through it.
//
//go:nosplit
//go:inline
func (d Dequeue[T]) Value() *T { return d.slot }

// Release hands the slot back to the producer. Releasing a handle that is
// no longer the oldest claim is ignored.
//
//go:nosplit
//go:inline
func (d Dequeue[T]) Release() {
	c := d.r.c.Value()
	if c.cPosition != d.pos {
		return
	}
	atomic.StoreUint64(&c.cPosition, d.pos+1)
}

// TryDequeue claims the oldest committed slot, or returns an invalid handle
// when the ring is empty. Consumer goroutine only.
//
//go:nosplit
func (r *Ring[T]) TryDequeue() Dequeue[T] {
	c := r.c.Value()
	pos := c.cPosition
	if pos >= c.pLocal {
		c.pLocal = atomic.LoadUint64(&r.p.Value().pPosition)
		if pos >= c.pLocal {
			return Dequeue[T]{}
		}
	}
	return Dequeue[T]{r: r, slot: r.slot(pos), pos: pos}
}

// Consume passes the oldest value to fn and releases it. It reports whether a
// value was available.
func (r *Ring[T]) Consume(fn func(*T)) bool {
	d := r.TryDequeue()
	if !d.Ok() {
		return false
	}
	fn(d.Value())
	d.Release()
	return true
}

// ─────────────────────────────── Introspection ──────────────────────────────

// Size is the number of committed, unreleased values. Only meaningful while
// both sides are quiescent.
func (r *Ring[T]) Size() int {
	return int(atomic.LoadUint64(&r.p.Value().pPosition) - atomic.LoadUint64(&r.c.Value().cPosition))
}

// Cap returns the slot count.
func (r *Ring[T]) Cap() int { return int(r.size) }
