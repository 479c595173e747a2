package spsc

import (
	"hash/crc32"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type message struct {
	Seq     uint64
	Payload [5]uint64
	Sum     uint32
	_       uint32
}

func (m *message) checksum() uint32 {
	b := unsafe.Slice((*byte)(unsafe.Pointer(&m.Payload)), unsafe.Sizeof(m.Payload))
	return crc32.Update(crc32.ChecksumIEEE(b), crc32.IEEETable, unsafe.Slice((*byte)(unsafe.Pointer(&m.Seq)), 8))
}

// ============================================================================
// CONSTRUCTION
// ============================================================================

func TestNewPanicsOnBadCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, 3, 1000} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("New(%d) should panic", capacity)
				}
			}()
			_ = New[uint64](capacity)
		}()
	}
}

func TestNewPanicsOnUnsupportedType(t *testing.T) {
	require.Panics(t, func() { New[*int](8) })
	require.Panics(t, func() { New[[16]uint64](8) })
	require.Panics(t, func() { New[struct{ S string }](8) })
	require.NotPanics(t, func() { New[message](8) })
}

// ============================================================================
// SNIFF: EMPTY / COMMIT / ABORT / FULL
// ============================================================================

func TestSniff(t *testing.T) {
	r := New[uint64](4)

	require.False(t, r.TryDequeue().Ok(), "dequeue on empty ring")
	require.Equal(t, 0, r.Size())

	e := r.TryEnqueue()
	require.True(t, e.Ok())
	*e.Value() = 1
	e.Commit()
	require.Equal(t, 1, r.Size())

	// Abort: reserve, scribble, drop.
	e = r.TryEnqueue()
	require.True(t, e.Ok())
	aborted := e.Value()
	*aborted = 0xdead
	require.Equal(t, 1, r.Size())

	// The next reservation reuses the aborted slot.
	e = r.TryEnqueue()
	require.True(t, e.Ok())
	require.Same(t, aborted, e.Value())
	*e.Value() = 2
	e.Commit()
	e.Commit()
	require.Equal(t, 2, r.Size())

	for v := uint64(3); v <= 4; v++ {
		require.True(t, r.Produce(func(p *uint64) bool { *p = v; return true }))
	}
	require.Equal(t, 4, r.Size())

	full := r.TryEnqueue()
	require.False(t, full.Ok(), "enqueue on full ring")
	require.Equal(t, 4, r.Size())

	for want := uint64(1); want <= 4; want++ {
		d := r.TryDequeue()
		require.True(t, d.Ok())
		require.Equal(t, want, *d.Value())
		d.Release()
	}
	require.False(t, r.TryDequeue().Ok())
	require.Equal(t, 0, r.Size())
}

func TestStaleHandlesDoNotRewind(t *testing.T) {
	r := New[uint64](4)
	e1 := r.TryEnqueue()
	require.True(t, e1.Ok())
	e1.Commit()
	e2 := r.TryEnqueue()
	require.True(t, e2.Ok())
	e2.Commit()
	require.Equal(t, 2, r.Size())

	e1.Commit()
	require.Equal(t, 2, r.Size(), "stale commit must not move the producer back")

	d1 := r.TryDequeue()
	require.True(t, d1.Ok())
	d1.Release()
	d2 := r.TryDequeue()
	require.True(t, d2.Ok())
	d2.Release()
	require.Equal(t, 0, r.Size())

	d1.Release()
	require.Equal(t, 0, r.Size(), "stale release must not move the consumer back")
	require.False(t, r.TryDequeue().Ok())

	require.True(t, r.Produce(func(p *uint64) bool { *p = 9; return true }))
	require.Equal(t, 1, r.Size())
}

func TestProduceAbortLeavesRingUntouched(t *testing.T) {
	r := New[uint32](2)
	require.False(t, r.Produce(func(p *uint32) bool { *p = 99; return false }))
	require.Equal(t, 0, r.Size())
	require.False(t, r.Consume(func(*uint32) { t.Fatal("nothing to consume") }))

	require.True(t, r.Produce(func(p *uint32) bool { *p = 7; return true }))
	var got uint32
	require.True(t, r.Consume(func(p *uint32) { got = *p }))
	require.Equal(t, uint32(7), got)
}

// ============================================================================
// FIFO
// ============================================================================

func TestFIFO(t *testing.T) {
	for _, capacity := range []int{1, 2, 8, 64} {
		r := New[uint64](capacity)
		// Several laps so positions wrap the slot index.
		for lap := 0; lap < 5; lap++ {
			base := uint64(lap * capacity)
			for i := 0; i < capacity; i++ {
				e := r.TryEnqueue()
				require.True(t, e.Ok())
				*e.Value() = base + uint64(i)
				e.Commit()
			}
			require.False(t, r.TryEnqueue().Ok())
			for i := 0; i < capacity; i++ {
				d := r.TryDequeue()
				require.True(t, d.Ok())
				require.Equal(t, base+uint64(i), *d.Value())
				d.Release()
			}
			require.False(t, r.TryDequeue().Ok())
		}
	}
}

// ============================================================================
// CONCURRENT STRESS
// ============================================================================

var spinSink atomic.Uint64

// pause busy-spins for up to limit iterations.
func pause(rng *rand.Rand, limit int) {
	if limit == 0 {
		return
	}
	var x uint64
	for n := rng.Intn(limit); n > 0; n-- {
		x += uint64(n)
	}
	spinSink.Add(x)
}

func TestConcurrentProducerConsumer(t *testing.T) {
	repeats := 1 << 16
	if testing.Short() {
		repeats = 1 << 12
	}
	for _, capacity := range []int{1, 8, 32, 128} {
		for _, p := range []int{0, 0x10, 0x100} {
			capacity, p := capacity, p
			t.Run("", func(t *testing.T) {
				stressRing(t, capacity, p, repeats)
			})
		}
	}
}

func stressRing(t *testing.T, capacity, maxPause, repeats int) {
	r := New[message](capacity)
	var (
		stop     atomic.Uint32
		produced atomic.Int64
		consumed atomic.Int64
		bad      atomic.Int64
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		rng := rand.New(rand.NewSource(int64(capacity)))
		for seq := uint64(0); seq < uint64(repeats); {
			e := r.TryEnqueue()
			if !e.Ok() {
				runtime.Gosched()
				continue
			}
			m := e.Value()
			m.Seq = seq
			for i := range m.Payload {
				m.Payload[i] = rng.Uint64()
			}
			if rng.Intn(8) == 0 {
				m.Sum = ^m.checksum()
				continue
			}
			m.Sum = m.checksum()
			e.Commit()
			produced.Add(1)
			seq++
			pause(rng, maxPause)
		}
	}()
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		rng := rand.New(rand.NewSource(int64(capacity) + 1))
		want := uint64(0)
		for stop.Load() == 0 {
			d := r.TryDequeue()
			if !d.Ok() {
				runtime.Gosched()
				continue
			}
			m := d.Value()
			if m.Seq != want || m.Sum != m.checksum() {
				bad.Add(1)
			}
			d.Release()
			want++
			if consumed.Add(1) == int64(repeats) {
				stop.Store(1)
			}
			pause(rng, maxPause)
		}
	}()
	wg.Wait()

	require.Zero(t, bad.Load())
	require.Equal(t, int64(repeats), produced.Load())
	require.Equal(t, int64(repeats), consumed.Load())
	require.Equal(t, 0, r.Size())
}
