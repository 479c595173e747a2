// ════════════════════════════════════════════════════════════════════════════════════════════════
// Receive Links
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Non-Blocking Network Receive Abstraction
//
// Description:
//   A link exposes everything received and not yet flushed as one contiguous window. Polling
//   never blocks. Flushing releases bytes from the front of the window once no reader can still
//   need them.
//
// Window stability:
//   Bytes inside a returned window are never overwritten. When the tail runs out of room the
//   unflushed bytes move to a fresh backing array; windows handed out earlier keep the old array
//   alive until their holders drop them.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package link

import (
	"errors"
	"sync/atomic"
)

// Link is a non-blocking receive endpoint. Methods are for the polling
// goroutine only.
type Link interface {
	// RecvPoll reads whatever is pending and returns the unflushed window
	// and its size.
	RecvPoll() (window []byte, size int)
	// RecvFlush drops n bytes from the front of the window.
	RecvFlush(n int)
	// TsLastRecv is the local nanosecond timestamp of the latest receive.
	TsLastRecv() int64
	Close() error
}

// Tap observes every datagram a link accepts. It runs on the polling
// goroutine and must not block; payload is only valid during the call.
type Tap interface {
	Tap(partition int, tsLocal int64, payload []byte)
}

var (
	// ErrClosed is returned by operations on a closed link.
	ErrClosed = errors.New("link: closed")
	// ErrUnsupported is returned where a link type has no implementation.
	ErrUnsupported = errors.New("link: unsupported on this platform")
)

// RecvBuffer is the linear byte store behind a link.
type RecvBuffer struct {
	buf     []byte
	begin   int
	end     int
	shared  atomic.Int64 // end - begin, for other goroutines
	dropped atomic.Uint64
	moves   atomic.Uint64
}

// NewRecvBuffer allocates a buffer of capacity bytes.
func NewRecvBuffer(capacity int) *RecvBuffer {
	if capacity <= 0 {
		panic("link: recv buffer capacity must be > 0")
	}
	return &RecvBuffer{buf: make([]byte, capacity)}
}

// Window returns the unflushed bytes. The slice is capped so appends cannot
// reach the writable tail.
//
//go:nosplit
//go:inline
func (b *RecvBuffer) Window() []byte {
	return b.buf[b.begin:b.end:b.end]
}

// Size is the number of unflushed bytes.
func (b *RecvBuffer) Size() int { return b.end - b.begin }

// Cap is the buffer capacity.
func (b *RecvBuffer) Cap() int { return len(b.buf) }

// Tail returns writable space of at least need bytes, or nil when the
// unflushed bytes leave no room.
func (b *RecvBuffer) Tail(need int) []byte {
	if len(b.buf)-b.end >= need {
		return b.buf[b.end:]
	}
	size := b.end - b.begin
	if len(b.buf)-size < need {
		return nil
	}
	fresh := make([]byte, len(b.buf))
	copy(fresh, b.buf[b.begin:b.end])
	b.buf, b.begin, b.end = fresh, 0, size
	b.moves.Add(1)
	return b.buf[b.end:]
}

// Commit appends n bytes written into the last Tail.
func (b *RecvBuffer) Commit(n int) {
	if n < 0 || b.end+n > len(b.buf) {
		panic("link: commit beyond tail")
	}
	b.end += n
	b.shared.Store(int64(b.end - b.begin))
}

// Append copies p into the tail. It reports false, counting a drop, when p
// does not fit.
func (b *RecvBuffer) Append(p []byte) bool {
	tail := b.Tail(len(p))
	if tail == nil {
		b.Drop()
		return false
	}
	b.Commit(copy(tail, p))
	return true
}

// Flush releases n bytes from the front.
func (b *RecvBuffer) Flush(n int) {
	if n < 0 || n > b.end-b.begin {
		panic("link: flush beyond window")
	}
	b.begin += n
	b.shared.Store(int64(b.end - b.begin))
}

// Unflushed is Size for goroutines other than the polling one.
func (b *RecvBuffer) Unflushed() int64 { return b.shared.Load() }

// Drop counts one datagram discarded for lack of room.
func (b *RecvBuffer) Drop() { b.dropped.Add(1) }

// Dropped is the number of discarded datagrams.
func (b *RecvBuffer) Dropped() uint64 { return b.dropped.Load() }

// Moves is the number of times unflushed bytes were moved to a new array.
func (b *RecvBuffer) Moves() uint64 { return b.moves.Load() }
