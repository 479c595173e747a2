// control.go - Stop flags and activity tracking for pinned step loops
// ============================================================================
// STEP LOOP COORDINATION
// ============================================================================
//
// Step loops never block. They observe a cache-line isolated stop flag once
// per iteration and an activity flag that decides between hot spinning and
// relaxed spinning.
//
// Threading model:
//   • Any goroutine may Raise a Flag; loops only read it
//   • Writers Signal activity when they publish; loops Poll for cooldown
//   • Flags are padded so polling cores do not share lines with writers

package control

import (
	"sync/atomic"
	"time"

	"tradecore/cacheline"
)

// ============================================================================
// STOP FLAG
// ============================================================================

// Flag is a one-way cache-line isolated signal.
type Flag struct {
	v cacheline.Padded[atomic.Uint32]
}

// Raise sets the flag. Further calls have no effect.
//
//go:nosplit
//go:inline
func (f *Flag) Raise() {
	f.v.Value().Store(1)
}

// Raised reports whether Raise has been called.
//
//go:nosplit
//go:inline
func (f *Flag) Raised() bool {
	return f.v.Value().Load() != 0
}

// ============================================================================
// ACTIVITY
// ============================================================================

// Activity marks a data path hot while publications keep arriving and lets
// it cool down after a quiet period.
type Activity struct {
	hot      cacheline.Padded[atomic.Uint32]
	last     atomic.Int64
	cooldown int64
}

// NewActivity creates an idle tracker that cools down after cooldown.
func NewActivity(cooldown time.Duration) *Activity {
	return &Activity{cooldown: int64(cooldown)}
}

// Signal marks the path hot as of now.
//
//go:nosplit
func (a *Activity) Signal() {
	a.last.Store(time.Now().UnixNano())
	a.hot.Value().Store(1)
}

// Poll clears the hot flag once the cooldown has elapsed since the last
// Signal and reports whether the path is still hot.
func (a *Activity) Poll() bool {
	if a.hot.Value().Load() == 0 {
		return false
	}
	if time.Now().UnixNano()-a.last.Load() > a.cooldown {
		a.hot.Value().Store(0)
		return false
	}
	return true
}

// Hot reports the flag without cooldown processing.
//
//go:nosplit
//go:inline
func (a *Activity) Hot() bool {
	return a.hot.Value().Load() != 0
}
