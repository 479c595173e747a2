package feed

import (
	"sync/atomic"

	"tradecore/cacheline"
	"tradecore/pool"
)

// RecvPosition is one partition's view at publication time.
type RecvPosition struct {
	// Pos counts bytes received on the partition since start.
	Pos int64
	// End is the receive window; its last byte is byte Pos-1.
	End []byte
	// TsLocal is the local receive time of the latest datagram.
	TsLocal int64
}

// Bytes returns the bytes from position from up to Pos and the number of
// requested bytes that are no longer inside the window.
func (p *RecvPosition) Bytes(from int64) (data []byte, lost int64) {
	want := p.Pos - from
	if have := int64(len(p.End)); want > have {
		lost, want = want-have, have
	}
	return p.End[int64(len(p.End))-want:], lost
}

// Descriptor is a published snapshot of every partition. Once published it
// is immutable until reclaimed.
type Descriptor struct {
	Positions []RecvPosition

	instance pool.Ref
	next     atomic.Int32
	stack    *ReclaimStack // where the reclaim callback returns it
}

// Width is the number of partitions.
func (d *Descriptor) Width() int { return len(d.Positions) }

func (d *Descriptor) clear() {
	for i := range d.Positions {
		d.Positions[i] = RecvPosition{}
	}
}

// ReclaimStack is a Treiber stack of descriptor references, threaded through
// Descriptor.next. Any goroutine may push; only the feed writer drains.
type ReclaimStack struct {
	head cacheline.Padded[atomic.Int32]
	pds  *pool.Pool[Descriptor]
}

func newReclaimStack(pds *pool.Pool[Descriptor]) *ReclaimStack {
	s := &ReclaimStack{pds: pds}
	s.head.Value().Store(int32(pool.Nil))
	return s
}

// Push links ref onto the stack.
func (s *ReclaimStack) Push(ref pool.Ref) {
	d := s.pds.At(ref)
	head := s.head.Value()
	for {
		old := head.Load()
		d.next.Store(old)
		if head.CompareAndSwap(old, int32(ref)) {
			return
		}
	}
}

// Drain detaches the whole chain and returns its first reference.
func (s *ReclaimStack) Drain() pool.Ref {
	return pool.Ref(s.head.Value().Swap(int32(pool.Nil)))
}

// Next follows the chain returned by Drain.
func (s *ReclaimStack) Next(ref pool.Ref) pool.Ref {
	return pool.Ref(s.pds.At(ref).next.Load())
}
