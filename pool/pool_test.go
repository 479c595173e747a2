package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	key int64
	tag uint32
}

func TestNewRoundsToPowerOfTwo(t *testing.T) {
	cases := []struct{ capacity, want int }{
		{1, 1}, {2, 2}, {3, 4}, {100, 128}, {1024, 1024},
	}
	for _, c := range cases {
		require.Equal(t, c.want, New[item](c.capacity, false).Cap(), "capacity=%d", c.capacity)
	}
	require.Panics(t, func() { New[item](0, false) })
}

func TestFixedPoolExhaustion(t *testing.T) {
	p := New[item](4, false)
	refs := make([]Ref, 0, 4)
	for i := 0; i < 4; i++ {
		ref, v := p.Allocate()
		v.key = int64(i)
		refs = append(refs, ref)
	}
	require.Equal(t, 4, p.Len())

	_, _, err := p.TryAllocate()
	require.ErrorIs(t, err, ErrExhausted)
	require.PanicsWithValue(t, ErrExhausted, func() { p.Allocate() })

	p.Release(refs[2])
	ref, v := p.Allocate()
	require.Equal(t, refs[2], ref)
	require.Equal(t, int64(2), v.key, "released objects keep their contents")
	require.Equal(t, 4, p.HighWater())
}

func TestGrowableKeepsAddresses(t *testing.T) {
	p := New[item](2, true)
	first, v := p.Allocate()
	v.tag = 7
	addr := p.At(first)

	for i := 0; i < 100; i++ {
		p.Allocate()
	}
	require.GreaterOrEqual(t, p.Cap(), 101)
	require.Same(t, addr, p.At(first))
	require.Equal(t, uint32(7), p.At(first).tag)
}

func TestReleaseMisuse(t *testing.T) {
	p := New[item](2, false)
	ref, _ := p.Allocate()
	require.True(t, p.Live(ref))
	p.Release(ref)
	require.False(t, p.Live(ref))
	require.Panics(t, func() { p.Release(ref) })
	require.Panics(t, func() { p.Release(Nil) })
	require.Panics(t, func() { p.Release(99) })
}
