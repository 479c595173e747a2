package capture

import (
	"sync/atomic"

	"tradecore/debug"
	"tradecore/spsc"
	"tradecore/utils"
)

// tapeEntry describes the payload parked in the buffer matching its ring
// position.
type tapeEntry struct {
	Partition int32
	Len       int32
	TsLocal   int64
}

// Tape moves received datagrams from the feed writer to a store without
// putting the writer on the disk path. Tap is called by the link polling
// goroutine; Step and Stop run on the capture goroutine.
//
// Payload buffers are indexed by ring position: a slot the producer can
// reserve has been released by the consumer, so its buffer is free too.
type Tape struct {
	ring  *spsc.Ring[tapeEntry]
	bufs  [][]byte
	mask  uint64
	head  uint64 // producer side
	tail  uint64 // consumer side
	store *Store

	dropped  atomic.Uint64
	recorded atomic.Uint64
	failed   atomic.Uint64
}

// NewTape creates a tape of capacity datagrams (a power of two) of at most
// maxPayload bytes each, draining into store.
func NewTape(store *Store, capacity, maxPayload int) *Tape {
	t := &Tape{
		ring:  spsc.New[tapeEntry](capacity),
		bufs:  make([][]byte, capacity),
		mask:  uint64(capacity - 1),
		store: store,
	}
	for i := range t.bufs {
		t.bufs[i] = make([]byte, maxPayload)
	}
	return t
}

// Tap copies one datagram onto the tape. A full tape or an oversized
// payload drops the datagram and counts it.
func (t *Tape) Tap(partition int, tsLocal int64, payload []byte) {
	buf := t.bufs[t.head&t.mask]
	if len(payload) > len(buf) {
		t.dropped.Add(1)
		return
	}
	e := t.ring.TryEnqueue()
	if !e.Ok() {
		t.dropped.Add(1)
		return
	}
	copy(buf, payload)
	*e.Value() = tapeEntry{Partition: int32(partition), Len: int32(len(payload)), TsLocal: tsLocal}
	e.Commit()
	t.head++
}

// Step records every datagram on the tape and returns how many it took.
func (t *Tape) Step() int {
	n := 0
	for {
		d := t.ring.TryDequeue()
		if !d.Ok() {
			return n
		}
		e := *d.Value()
		payload := t.bufs[t.tail&t.mask][:e.Len]
		if _, err := t.store.Record(int(e.Partition), e.TsLocal, payload); err != nil {
			t.failed.Add(1)
			debug.DropError("tape record", err)
		} else {
			t.recorded.Add(1)
		}
		d.Release()
		t.tail++
		n++
	}
}

// Dropped is the number of datagrams that did not fit on the tape.
func (t *Tape) Dropped() uint64 { return t.dropped.Load() }

// Recorded is the number of datagrams written to the store.
func (t *Tape) Recorded() uint64 { return t.recorded.Load() }

func (t *Tape) Start() error { return nil }

// Stop records what is left. The producer must already be stopped.
func (t *Tape) Stop() error {
	t.Step()
	debug.DropMessage("tape", "recorded "+utils.Utoa(t.recorded.Load())+
		", dropped "+utils.Utoa(t.dropped.Load())+", failed "+utils.Utoa(t.failed.Load()))
	return nil
}
