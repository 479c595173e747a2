package treapq

// TimerQueue orders events by nanosecond timestamp. Events may only move
// forward in time.
type TimerQueue[V any] struct {
	q *Queue[int64, V]
}

// NewTimerQueue creates a timer queue. See New for capacity and seed.
func NewTimerQueue[V any](capacity int, seed uint32) *TimerQueue[V] {
	return &TimerQueue[V]{q: New[int64, V](capacity, seed)}
}

// Schedule adds an event at ts.
func (t *TimerQueue[V]) Schedule(ts int64, v V) *Entry[int64, V] {
	return t.q.Enqueue(ts, v)
}

// Reschedule moves e to ts, which must not precede its current time.
func (t *TimerQueue[V]) Reschedule(e *Entry[int64, V], ts int64) {
	if ts < e.Key {
		panic("treapq: reschedule into the past")
	}
	t.q.Requeue(e, ts)
}

// RescheduleFront moves the earliest event to ts and returns it.
func (t *TimerQueue[V]) RescheduleFront(ts int64) *Entry[int64, V] {
	return t.q.RequeueFront(ts)
}

// Cancel drops e.
func (t *TimerQueue[V]) Cancel(e *Entry[int64, V]) { t.q.Remove(e) }

// Front is the earliest event or nil.
func (t *TimerQueue[V]) Front() *Entry[int64, V] { return t.q.Front() }

// Due reports whether the earliest event is at or before now.
func (t *TimerQueue[V]) Due(now int64) bool {
	f := t.q.Front()
	return f != nil && f.Key <= now
}

// Pop removes the earliest event and returns its time and payload.
func (t *TimerQueue[V]) Pop() (int64, V, bool) {
	f := t.q.Front()
	if f == nil {
		var zero V
		return 0, zero, false
	}
	ts, v := f.Key, f.Value
	t.q.Dequeue()
	return ts, v, true
}

func (t *TimerQueue[V]) Empty() bool { return t.q.Empty() }

func (t *TimerQueue[V]) Len() int { return t.q.Len() }
