package utils

import (
	"math"
	"strconv"
	"testing"
)

// TestItoaMatchesStrconv checks the hand formatter against strconv across edges.
func TestItoaMatchesStrconv(t *testing.T) {
	cases := []int64{0, 1, -1, 9, 10, -10, 123456789, math.MaxInt64, math.MinInt64 + 1}
	for _, n := range cases {
		if got, want := I64toa(n), strconv.FormatInt(n, 10); got != want {
			t.Errorf("I64toa(%d) = %q, want %q", n, got, want)
		}
	}
	if got := Utoa(math.MaxUint64); got != strconv.FormatUint(math.MaxUint64, 10) {
		t.Errorf("Utoa(max) = %q", got)
	}
}

// TestXorshiftNeverZero verifies that a non-zero state never collapses to zero.
func TestXorshiftNeverZero(t *testing.T) {
	s32 := uint32(1)
	s64 := uint64(1)
	for i := 0; i < 100000; i++ {
		if Xorshift32(&s32) == 0 {
			t.Fatalf("xorshift32 reached zero at step %d", i)
		}
		if Xorshift64(&s64) == 0 {
			t.Fatalf("xorshift64 reached zero at step %d", i)
		}
	}
}

func TestB2s(t *testing.T) {
	if B2s(nil) != "" {
		t.Fatal("B2s(nil) should be empty")
	}
	if B2s([]byte("feed")) != "feed" {
		t.Fatal("B2s mismatch")
	}
}
