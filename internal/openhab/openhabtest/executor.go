package openhabtest

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// Executor is an openhab.Executor driven by the test. Posted tasks run
// on Drain; timers fire on Advance.
type Executor struct {
	mu     sync.Mutex
	now    time.Time
	queue  []func()
	timers []*timer
	seq    int
	notify chan struct{}
}

// NewExecutor returns an executor whose clock starts at the Unix epoch.
func NewExecutor() *Executor {
	return &Executor{now: time.Unix(0, 0), notify: make(chan struct{}, 1)}
}

type timer struct {
	exec      *Executor
	at        time.Time
	seq       int
	fn        func()
	cancelled bool
}

func (t *timer) Stop() bool {
	t.exec.mu.Lock()
	defer t.exec.mu.Unlock()

	for i, p := range t.exec.timers {
		if p == t {
			t.exec.timers = append(t.exec.timers[:i], t.exec.timers[i+1:]...)
			t.cancelled = true
			return true
		}
	}
	return false
}

// Post implements openhab.Executor.
func (e *Executor) Post(fn func()) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// AfterFunc implements openhab.Executor on the manual clock.
func (e *Executor) AfterFunc(d time.Duration, fn func()) openhab.Timer {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	t := &timer{exec: e, at: e.now.Add(d), seq: e.seq, fn: fn}
	e.timers = append(e.timers, t)
	return t
}

// Drain runs queued tasks, including those they post, until none remain.
// It returns the number of tasks run.
func (e *Executor) Drain() int {
	n := 0
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return n
		}
		fn := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		fn()
		n++
	}
}

// Await waits up to timeout for a task posted from another goroutine,
// then drains. It reports whether any task ran.
func (e *Executor) Await(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if e.Drain() > 0 {
			return true
		}
		select {
		case <-e.notify:
		case <-deadline.C:
			return e.Drain() > 0
		}
	}
}

// Advance moves the clock forward by d, firing due timers in deadline
// order and draining after each.
func (e *Executor) Advance(d time.Duration) {
	e.mu.Lock()
	target := e.now.Add(d)
	e.mu.Unlock()

	e.Drain()
	for {
		e.mu.Lock()
		sort.Slice(e.timers, func(i, j int) bool {
			if e.timers[i].at.Equal(e.timers[j].at) {
				return e.timers[i].seq < e.timers[j].seq
			}
			return e.timers[i].at.Before(e.timers[j].at)
		})
		if len(e.timers) == 0 || e.timers[0].at.After(target) {
			e.now = target
			e.mu.Unlock()
			break
		}
		t := e.timers[0]
		e.timers = e.timers[1:]
		e.now = t.at
		e.mu.Unlock()

		t.fn()
		e.Drain()
	}
	e.Drain()
}

// Now returns the manual clock.
func (e *Executor) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// PendingTimers returns the number of armed timers.
func (e *Executor) PendingTimers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}
