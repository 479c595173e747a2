//go:build linux

// setaffinity_linux.go
//
// Linux binding for sched_setaffinity(2) that pins the calling OS thread to
// one logical CPU. The caller must hold runtime.LockOSThread.

package pinned

import "golang.org/x/sys/unix"

func setAffinity(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
