//go:build !linux

package pinned

// setAffinity is a no-op where thread pinning is unavailable.
func setAffinity(int) error { return nil }
