package pinned

// cpuRelax marks one cold-spin iteration. Go exposes no PAUSE/YIELD hint, so
// it is empty on every target.
func cpuRelax() {}
