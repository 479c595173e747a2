package control

import (
	"errors"
	"fmt"
	"sync"

	"tradecore/debug"
)

// Startable is a component with a cold-path start/stop contract.
type Startable interface {
	Start() error
	Stop() error
}

// Steppable is a component driven by a step loop.
type Steppable interface {
	Step()
}

// StepFunc adapts a function to Steppable.
type StepFunc func()

func (f StepFunc) Step() { f() }

// Lifecycle starts components in registration order and stops them in
// reverse. Both transitions run at most once.
type Lifecycle struct {
	mu         sync.Mutex
	names      []string
	components []Startable
	started    int
	starting   bool
	stopped    bool
}

// Add registers c under name. Components cannot be added after Start.
func (l *Lifecycle) Add(name string, c Startable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.starting {
		panic("control: component " + name + " added after start")
	}
	l.names = append(l.names, name)
	l.components = append(l.components, c)
}

// Start starts every component in order. If one fails, the ones already
// started are stopped in reverse and the error is returned.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.starting {
		return nil
	}
	l.starting = true
	for i, c := range l.components {
		if err := c.Start(); err != nil {
			err = fmt.Errorf("control: start %s: %w", l.names[i], err)
			l.stopLocked()
			return err
		}
		l.started = i + 1
	}
	return nil
}

// Stop stops started components in reverse order and joins their errors.
func (l *Lifecycle) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopLocked()
}

func (l *Lifecycle) stopLocked() error {
	if l.stopped {
		return nil
	}
	l.stopped = true
	var errs []error
	for i := l.started - 1; i >= 0; i-- {
		if err := l.components[i].Stop(); err != nil {
			debug.DropError("stop "+l.names[i], err)
			errs = append(errs, fmt.Errorf("control: stop %s: %w", l.names[i], err))
		}
	}
	l.started = 0
	return errors.Join(errs...)
}

// Latch is a cold-path count-down barrier.
type Latch struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewLatch creates a latch released after count CountDown calls.
func NewLatch(count int) *Latch {
	l := &Latch{count: count}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// CountDown decrements the count and wakes waiters when it reaches zero.
func (l *Latch) CountDown() {
	l.mu.Lock()
	if l.count > 0 {
		l.count--
		if l.count == 0 {
			l.cond.Broadcast()
		}
	}
	l.mu.Unlock()
}

// Wait blocks until the count reaches zero.
func (l *Latch) Wait() {
	l.mu.Lock()
	for l.count > 0 {
		l.cond.Wait()
	}
	l.mu.Unlock()
}

// ArriveAndWait counts down and waits for the rest.
func (l *Latch) ArriveAndWait() {
	l.CountDown()
	l.Wait()
}
