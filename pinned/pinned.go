// pinned.go
//
// Pinned step loop driver.
//
//   • Dedicated OS thread pinned to `core` (a negative core skips pinning).
//   • Calls step.Step() in a tight loop and checks the stop flag once per
//     iteration.
//   • Stays in hot-spin while the activity tracker is hot; otherwise drops to
//     cold-spin with cpuRelax every iteration and a scheduler yield after
//     SpinBudget idle iterations.
//   • Exits once stop is raised and closes `done` exactly once.
//
// The driver creates exactly one goroutine and never blocks inside the loop.

package pinned

import (
	"runtime"

	"tradecore/constants"
	"tradecore/control"
	"tradecore/debug"
	"tradecore/utils"
)

// Run drives step on its own OS thread until stop is raised. activity may be
// nil, in which case the loop always hot-spins.
func Run(
	core int,
	step control.Steppable,
	stop *control.Flag,
	activity *control.Activity,
	done chan<- struct{},
) {
	go func() {
		// ── thread & affinity ─────────────────────────────
		runtime.LockOSThread()
		if core >= 0 {
			if err := setAffinity(core); err != nil {
				debug.DropError("pin core "+utils.Itoa(core), err)
			}
		}
		defer func() {
			runtime.UnlockOSThread()
			close(done)
		}()

		miss := 0

		// ── main loop ─────────────────────────────────────
		for !stop.Raised() {
			step.Step()

			if activity == nil || activity.Poll() {
				miss = 0
				continue
			}

			// cold-spin path: power-friendlier
			if miss++; miss >= constants.SpinBudget {
				miss = 0
				runtime.Gosched()
			}
			cpuRelax()
		}
	}()
}

// Group runs several loops and stops them together.
type Group struct {
	stop control.Flag
	done []chan struct{}
}

// Go starts step on core under the group's stop flag.
func (g *Group) Go(core int, step control.Steppable, activity *control.Activity) {
	done := make(chan struct{})
	g.done = append(g.done, done)
	Run(core, step, &g.stop, activity, done)
}

// Stop raises the stop flag and waits for every loop to exit.
func (g *Group) Stop() {
	g.stop.Raise()
	for _, d := range g.done {
		<-d
	}
}
