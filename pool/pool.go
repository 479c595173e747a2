// ════════════════════════════════════════════════════════════════════════════════════════════════
// Fixed-Capacity Object Pool
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Arena Storage For Queue Entries And Poll Descriptors
//
// Description:
//   Objects live in power-of-two chunks addressed by stable int32 references. Chunk storage is
//   never moved, so *T pointers stay valid until the object is released. The free list is
//   threaded through a parallel link array.
//
// Ownership:
//   One owning goroutine. No internal synchronisation.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package pool

import (
	"errors"
	"math/bits"
)

// Ref addresses one object in a pool.
type Ref int32

// Nil is the empty reference.
const Nil Ref = -1

// inUse marks the link of an allocated object.
const inUse Ref = -2

// ErrExhausted is raised when a fixed pool has no free objects left.
var ErrExhausted = errors.New("pool: exhausted")

// Pool hands out T objects by reference. Released objects keep their last
// contents; callers reinitialise what they need.
type Pool[T any] struct {
	chunks   [][]T
	links    []Ref
	free     Ref
	shift    uint
	mask     int32
	live     int
	high     int
	growable bool
}

// New creates a pool with room for at least capacity objects. A growable
// pool adds a chunk of the same size whenever it runs dry.
func New[T any](capacity int, growable bool) *Pool[T] {
	if capacity <= 0 || capacity > 1<<30 {
		panic("pool: capacity must be in (0, 2^30]")
	}
	shift := uint(bits.Len(uint(capacity - 1)))
	p := &Pool[T]{
		free:     Nil,
		shift:    shift,
		mask:     int32(1)<<shift - 1,
		growable: growable,
	}
	p.grow()
	return p
}

// grow appends one chunk and threads its slots onto the free list in
// ascending order.
func (p *Pool[T]) grow() {
	n := 1 << p.shift
	base := len(p.links)
	if base+n > 1<<31-1 {
		panic(ErrExhausted)
	}
	p.chunks = append(p.chunks, make([]T, n))
	p.links = append(p.links, make([]Ref, n)...)
	for i := n - 1; i >= 0; i-- {
		p.links[base+i] = p.free
		p.free = Ref(base + i)
	}
}

// TryAllocate takes a free object. A fixed pool with nothing free returns
// ErrExhausted.
func (p *Pool[T]) TryAllocate() (Ref, *T, error) {
	if p.free == Nil {
		if !p.growable {
			return Nil, nil, ErrExhausted
		}
		p.grow()
	}
	ref := p.free
	p.free = p.links[ref]
	p.links[ref] = inUse
	p.live++
	if p.live > p.high {
		p.high = p.live
	}
	return ref, p.At(ref), nil
}

// Allocate is TryAllocate for pools sized for their worst case: exhaustion
// is a sizing bug and panics.
func (p *Pool[T]) Allocate() (Ref, *T) {
	ref, v, err := p.TryAllocate()
	if err != nil {
		panic(err)
	}
	return ref, v
}

// Release returns ref to the free list. Releasing a free object panics.
func (p *Pool[T]) Release(ref Ref) {
	if ref < 0 || int(ref) >= len(p.links) || p.links[ref] != inUse {
		panic("pool: release of a free or foreign reference")
	}
	p.links[ref] = p.free
	p.free = ref
	p.live--
}

// At resolves ref. The pointer is stable for the lifetime of the pool.
//
//go:nosplit
//go:inline
func (p *Pool[T]) At(ref Ref) *T {
	return &p.chunks[int32(ref)>>p.shift][int32(ref)&p.mask]
}

// Live reports whether ref is currently allocated.
func (p *Pool[T]) Live(ref Ref) bool {
	return ref >= 0 && int(ref) < len(p.links) && p.links[ref] == inUse
}

// Len is the number of allocated objects.
func (p *Pool[T]) Len() int { return p.live }

// Cap is the number of objects the pool can hold without growing.
func (p *Pool[T]) Cap() int { return len(p.links) }

// HighWater is the largest Len observed.
func (p *Pool[T]) HighWater() int { return p.high }
