// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: utils.go - Cold-path formatting, stderr output and cheap PRNG helpers
//
// Purpose:
//   - Integer formatting and stderr writes without fmt on the diagnostic path.
//   - xorshift / avalanche helpers shared by queues, tests and reader jitter.
//
// Notes:
//   - Nothing here allocates except the string returned by Itoa/Utoa.
//   - Writes go straight to fd 2; there is no buffering layer to flush.
// ─────────────────────────────────────────────────────────────────────────────

package utils

import (
	"os"
	"unsafe"
)

///////////////////////////////////////////////////////////////////////////////
// Conversion Utilities
///////////////////////////////////////////////////////////////////////////////

// B2s converts a []byte to a string **without** allocation.
// ⚠️ Caller must ensure the input slice remains valid and unchanged.
//
//go:nosplit
//go:inline
func B2s(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// Itoa formats a signed integer in base 10.
func Itoa(n int) string {
	return I64toa(int64(n))
}

// I64toa formats an int64 in base 10.
func I64toa(n int64) string {
	if n >= 0 {
		return Utoa(uint64(n))
	}
	return "-" + Utoa(uint64(-n))
}

// Utoa formats an unsigned integer in base 10 using a stack buffer.
func Utoa(n uint64) string {
	var buf [20]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return string(buf[i:])
}

///////////////////////////////////////////////////////////////////////////////
// Output
///////////////////////////////////////////////////////////////////////////////

// PrintWarning writes msg to stderr as-is. Errors are ignored: there is
// nowhere left to report them.
func PrintWarning(msg string) {
	_, _ = os.Stderr.Write(unsafe.Slice(unsafe.StringData(msg), len(msg)))
}

///////////////////////////////////////////////////////////////////////////////
// Pseudo-random helpers
///////////////////////////////////////////////////////////////////////////////

// Mix64 applies a Murmur3-style avalanche to a 64-bit value.
//
//go:nosplit
//go:inline
func Mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// Xorshift32 advances a 32-bit xorshift state and returns the new value.
// The state must be non-zero, otherwise the sequence is stuck at zero.
//
//go:nosplit
//go:inline
func Xorshift32(state *uint32) uint32 {
	y := *state
	y ^= y << 13
	y ^= y >> 17
	y ^= y << 5
	*state = y
	return y
}

// Xorshift64 advances a 64-bit xorshift state and returns the new value.
//
//go:nosplit
//go:inline
func Xorshift64(state *uint64) uint64 {
	y := *state
	y ^= y << 13
	y ^= y >> 7
	y ^= y << 17
	*state = y
	return y
}
