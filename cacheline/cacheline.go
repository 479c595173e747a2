// ════════════════════════════════════════════════════════════════════════════════════════════════
// Cache-Line Layout Helpers
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: False-Sharing Isolation
//
// Description:
//   Wrappers that keep hot fields on their own cache lines and raw line-sized storage for
//   fixed-size slots. Go has no alignment attribute for heap objects, so aligned storage is
//   carved out of an over-allocated block (the collector never moves heap objects).
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package cacheline

import (
	"reflect"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// LineSize is the assumed hardware cache line size in bytes.
const LineSize = 64

// Pad occupies (at least) one full cache line.
type Pad = cpu.CacheLinePad

// Line is one cache line worth of raw storage.
type Line struct {
	_ [LineSize / 8]uint64
}

// Padded isolates a value of type T from its neighbours on both sides. The
// wrapped value never shares a line with anything declared before or after
// the Padded field.
type Padded[T any] struct {
	_ Pad
	v T
	_ Pad
}

// Value returns a pointer to the wrapped value.
//
//go:nosplit
//go:inline
func (p *Padded[T]) Value() *T {
	return &p.v
}

// LinesFor returns the number of cache lines needed to hold size bytes.
//
//go:nosplit
//go:inline
func LinesFor(size uintptr) uintptr {
	return (size + LineSize - 1) / LineSize
}

// AlignedLines returns n lines whose first element starts on a LineSize
// boundary.
func AlignedLines(n int) []Line {
	if n <= 0 {
		panic("cacheline: line count must be > 0")
	}
	raw := make([]Line, n+1)
	off := uintptr(unsafe.Pointer(&raw[0])) & (LineSize - 1)
	if off == 0 {
		return raw[:n:n]
	}
	// Line is 8-byte aligned, so the gap to the next boundary is whole words
	// but not whole lines; re-slice through a byte view.
	skip := LineSize - off
	base := unsafe.Add(unsafe.Pointer(&raw[0]), skip)
	return unsafe.Slice((*Line)(base), n)
}

// Aligned reports whether p sits on a cache line boundary.
func Aligned(p unsafe.Pointer) bool {
	return uintptr(p)&(LineSize-1) == 0
}

// CheckPlain panics unless t can live inside raw Line storage: fixed size, no
// pointers, at most one line. Called once at construction time.
func CheckPlain(t reflect.Type) {
	if t.Size() > LineSize {
		panic("cacheline: " + t.String() + " is larger than one cache line")
	}
	if hasPointers(t) {
		panic("cacheline: " + t.String() + " contains pointers")
	}
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
