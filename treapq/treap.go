// ════════════════════════════════════════════════════════════════════════════════════════════════
// Treap Priority Queue
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Time-Ordered Event Scheduling
//
// Description:
//   Min-key priority queue built as a treap over pooled entries. Entries are linked by int32
//   pool references instead of pointers, and the queue keeps fingers on its minimum and maximum
//   entries so Front is O(1) and both ends accept inserts without a root-to-leaf descent.
//
// Ordering:
//   - In-order traversal yields non-decreasing keys; equal keys are placed to the right
//   - Priorities form a min-heap; they come from a per-queue xorshift32 stream
//   - Entries with equal keys leave in priority order, not insertion order
//
// Costs (expected):
//   - Front: O(1)
//   - Dequeue: O(1), the minimum has no left child and is spliced out directly
//   - Enqueue: O(log n), O(1) when the key is beyond either end
//   - Requeue: O(log n)
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package treapq

import (
	"cmp"
	"hash/crc32"
	"unsafe"

	"tradecore/pool"
	"tradecore/utils"
)

// Entry is one queued element. Key must only be changed through the queue's
// Requeue methods. Value is free for the caller to modify.
type Entry[K cmp.Ordered, V any] struct {
	Key   K
	Value V

	ref    pool.Ref
	left   pool.Ref
	right  pool.Ref
	parent pool.Ref
	prio   uint32
}

// Queue is a single-goroutine treap keyed by K.
type Queue[K cmp.Ordered, V any] struct {
	entries *pool.Pool[Entry[K, V]]
	root    pool.Ref
	min     pool.Ref
	max     pool.Ref
	n       int
	seed    uint32
}

// New creates a queue whose entry pool starts with room for capacity entries
// and grows in chunks of that size. A zero seed is replaced by a value
// derived from the queue's address, so default-seeded queues differ.
func New[K cmp.Ordered, V any](capacity int, seed uint32) *Queue[K, V] {
	q := &Queue[K, V]{
		entries: pool.New[Entry[K, V]](capacity, true),
		root:    pool.Nil,
		min:     pool.Nil,
		max:     pool.Nil,
	}
	if seed == 0 {
		addr := uintptr(unsafe.Pointer(q))
		seed = crc32.ChecksumIEEE(unsafe.Slice((*byte)(unsafe.Pointer(&addr)), unsafe.Sizeof(addr)))
		if seed == 0 {
			seed = 1
		}
	}
	q.seed = seed
	return q
}

//go:nosplit
//go:inline
func (q *Queue[K, V]) at(ref pool.Ref) *Entry[K, V] {
	return q.entries.At(ref)
}

// ─────────────────────────────── Queries ───────────────────────────────────

// Front returns the entry with the smallest key, or nil when empty.
//
//go:nosplit
func (q *Queue[K, V]) Front() *Entry[K, V] {
	if q.min == pool.Nil {
		return nil
	}
	return q.at(q.min)
}

// Back returns the entry with the largest key, or nil when empty.
func (q *Queue[K, V]) Back() *Entry[K, V] {
	if q.max == pool.Nil {
		return nil
	}
	return q.at(q.max)
}

func (q *Queue[K, V]) Empty() bool { return q.n == 0 }

func (q *Queue[K, V]) Len() int { return q.n }

// ─────────────────────────────── Mutation ──────────────────────────────────

// Enqueue inserts key with a payload and returns its entry.
func (q *Queue[K, V]) Enqueue(key K, value V) *Entry[K, V] {
	ref, e := q.entries.Allocate()
	e.ref = ref
	e.Key = key
	e.Value = value
	q.insert(ref)
	return e
}

// EnqueueKey inserts key with a zero payload.
func (q *Queue[K, V]) EnqueueKey(key K) *Entry[K, V] {
	var zero V
	return q.Enqueue(key, zero)
}

// Dequeue removes the front entry and recycles it. The queue must not be
// empty.
func (q *Queue[K, V]) Dequeue() {
	if q.min == pool.Nil {
		panic("treapq: dequeue on empty queue")
	}
	ref := q.min
	q.unlink(ref)
	q.entries.Release(ref)
}

// Remove takes e out of the queue and recycles it.
func (q *Queue[K, V]) Remove(e *Entry[K, V]) {
	ref := q.owned(e)
	q.unlink(ref)
	q.entries.Release(ref)
}

// Requeue moves e to key. The entry keeps its storage, so e stays valid.
func (q *Queue[K, V]) Requeue(e *Entry[K, V], key K) {
	ref := q.owned(e)
	q.unlink(ref)
	e.Key = key
	q.insert(ref)
}

// RequeueFront moves the front entry forward to key and returns it. key must
// not be smaller than the current front key.
func (q *Queue[K, V]) RequeueFront(key K) *Entry[K, V] {
	if q.min == pool.Nil {
		panic("treapq: requeue on empty queue")
	}
	e := q.at(q.min)
	if key < e.Key {
		panic("treapq: requeue_front to an earlier key")
	}
	q.unlink(q.min)
	e.Key = key
	q.insert(e.ref)
	return e
}

func (q *Queue[K, V]) owned(e *Entry[K, V]) pool.Ref {
	if e == nil || !q.entries.Live(e.ref) || q.at(e.ref) != e {
		panic("treapq: entry does not belong to this queue")
	}
	return e.ref
}

// ─────────────────────────────── Internals ─────────────────────────────────

// insert links a detached entry and restores heap order.
func (q *Queue[K, V]) insert(ref pool.Ref) {
	e := q.at(ref)
	e.left, e.right = pool.Nil, pool.Nil
	e.prio = utils.Xorshift32(&q.seed)
	q.n++

	if q.root == pool.Nil {
		e.parent = pool.Nil
		q.root, q.min, q.max = ref, ref, ref
		return
	}

	switch {
	case e.Key >= q.at(q.max).Key:
		// The max has no right child.
		q.at(q.max).right = ref
		e.parent = q.max
		q.max = ref
	case e.Key < q.at(q.min).Key:
		// The min has no left child.
		q.at(q.min).left = ref
		e.parent = q.min
		q.min = ref
	default:
		cur := q.root
		for {
			c := q.at(cur)
			if e.Key < c.Key {
				if c.left == pool.Nil {
					c.left = ref
					break
				}
				cur = c.left
			} else {
				if c.right == pool.Nil {
					c.right = ref
					break
				}
				cur = c.right
			}
		}
		e.parent = cur
	}

	for e.parent != pool.Nil && e.prio < q.at(e.parent).prio {
		q.rotateUp(ref)
	}
}

// rotateUp lifts x above its parent. In-order sequence is unchanged, so the
// min and max fingers stay put.
func (q *Queue[K, V]) rotateUp(x pool.Ref) {
	xe := q.at(x)
	p := xe.parent
	pe := q.at(p)
	g := pe.parent

	if pe.left == x {
		pe.left = xe.right
		if xe.right != pool.Nil {
			q.at(xe.right).parent = p
		}
		xe.right = p
	} else {
		pe.right = xe.left
		if xe.left != pool.Nil {
			q.at(xe.left).parent = p
		}
		xe.left = p
	}
	pe.parent = x
	xe.parent = g
	q.replaceChild(g, p, x)
}

// replaceChild points g's link to old at repl (or the root when g is Nil).
//
//go:nosplit
func (q *Queue[K, V]) replaceChild(g, old, repl pool.Ref) {
	if g == pool.Nil {
		q.root = repl
		return
	}
	ge := q.at(g)
	if ge.left == old {
		ge.left = repl
	} else {
		ge.right = repl
	}
}

// unlink detaches ref from the tree without releasing it.
func (q *Queue[K, V]) unlink(ref pool.Ref) {
	e := q.at(ref)

	// Rotate down until at most one child remains. The min never has a left
	// child and the max never has a right one, so neither loops here.
	for e.left != pool.Nil && e.right != pool.Nil {
		if q.at(e.left).prio < q.at(e.right).prio {
			q.rotateUp(e.left)
		} else {
			q.rotateUp(e.right)
		}
	}

	child := e.left
	if child == pool.Nil {
		child = e.right
	}
	parent := e.parent
	q.replaceChild(parent, ref, child)
	if child != pool.Nil {
		q.at(child).parent = parent
	}

	if ref == q.min {
		if child != pool.Nil {
			q.min = q.leftmost(child)
		} else {
			q.min = parent
		}
	}
	if ref == q.max {
		if child != pool.Nil {
			q.max = q.rightmost(child)
		} else {
			q.max = parent
		}
	}
	e.left, e.right, e.parent = pool.Nil, pool.Nil, pool.Nil
	q.n--
}

func (q *Queue[K, V]) leftmost(ref pool.Ref) pool.Ref {
	for l := q.at(ref).left; l != pool.Nil; l = q.at(ref).left {
		ref = l
	}
	return ref
}

func (q *Queue[K, V]) rightmost(ref pool.Ref) pool.Ref {
	for r := q.at(ref).right; r != pool.Nil; r = q.at(ref).right {
		ref = r
	}
	return ref
}
