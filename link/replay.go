package link

import "time"

// Datagram is one received payload with its local receive time.
type Datagram struct {
	TsLocal int64
	Payload []byte
}

// Replay is an in-memory link that delivers a fixed list of datagrams, one
// per poll. A zero TsLocal is stamped with the wall clock at delivery.
type Replay struct {
	buf    *RecvBuffer
	queue  []Datagram
	ts     int64
	closed bool

	tap       Tap
	partition int
}

// NewReplay creates a replay link over dgs with a buffer of capacity bytes.
func NewReplay(capacity int, dgs []Datagram) *Replay {
	return &Replay{buf: NewRecvBuffer(capacity), queue: dgs}
}

// Push queues more datagrams behind the pending ones.
func (r *Replay) Push(dgs ...Datagram) {
	r.queue = append(r.queue, dgs...)
}

// Pending is the number of datagrams not yet delivered.
func (r *Replay) Pending() int { return len(r.queue) }

func (r *Replay) RecvPoll() ([]byte, int) {
	if !r.closed && len(r.queue) > 0 {
		dg := r.queue[0]
		// A datagram that does not fit waits for the next flush.
		if tail := r.buf.Tail(len(dg.Payload)); tail != nil {
			r.buf.Commit(copy(tail, dg.Payload))
			r.queue[0] = Datagram{}
			r.queue = r.queue[1:]
			r.ts = dg.TsLocal
			if r.ts == 0 {
				r.ts = time.Now().UnixNano()
			}
			if r.tap != nil {
				r.tap.Tap(r.partition, r.ts, dg.Payload)
			}
		}
	}
	return r.buf.Window(), r.buf.Size()
}

// SetTap hands every delivered datagram to t under the given partition.
func (r *Replay) SetTap(partition int, t Tap) {
	r.partition, r.tap = partition, t
}

func (r *Replay) RecvFlush(n int) { r.buf.Flush(n) }

func (r *Replay) TsLastRecv() int64 { return r.ts }

// Buffer exposes the receive buffer for statistics.
func (r *Replay) Buffer() *RecvBuffer { return r.buf }

func (r *Replay) Close() error {
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	return nil
}
