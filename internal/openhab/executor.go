package openhab

import (
	"sync"
	"sync/atomic"
	"time"
)

// Executor runs tasks one at a time in submission order. Every callback
// of a controller and of the nodes attached to it runs on its Executor.
type Executor interface {
	// Post queues fn. It never blocks and may be called from any goroutine,
	// including from a running task.
	Post(fn func())

	// AfterFunc queues fn once d has elapsed. Stopping the returned timer
	// guarantees fn does not run, even if it was already due.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending AfterFunc task.
type Timer interface {
	// Stop cancels the task and reports whether it was still pending.
	Stop() bool
}

// Loop is the goroutine-backed Executor.
//
// The queue is unbounded so posting from a task never deadlocks. Panics
// in tasks are recovered and logged.
//
// Thread Safety:
//   - Post and AfterFunc may be called from any goroutine.
//   - Tasks run one at a time, in post order, on the loop goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()      // pending tasks, FIFO
	wake    chan struct{} // buffered 1; signals a non-empty queue
	stopped bool          // Post drops tasks once set
	started atomic.Bool

	// done closes when the loop goroutine has exited.
	done     chan struct{}
	stopOnce sync.Once

	logger Logger
}

// NewLoop creates a stopped loop; call Start to run it.
func NewLoop(logger Logger) *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: orNoop(logger),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	if l.started.CompareAndSwap(false, true) {
		go l.run()
	}
}

// Stop runs the tasks already queued, then ends the loop and waits for
// it. Tasks posted after Stop are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
		if !l.started.Load() {
			return
		}
		l.signal()
		<-l.done
	})
}

// Post implements Executor.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// AfterFunc implements Executor.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		stopped := l.stopped
		l.mu.Unlock()

		for _, fn := range batch {
			l.runTask(fn)
		}

		if len(batch) == 0 {
			if stopped {
				return
			}
			<-l.wake
		}
	}
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("executor task panic recovered", "panic", r)
		}
	}()
	fn()
}

// loopTimer marks itself cancelled either when it fires or when stopped,
// whichever comes first.
type loopTimer struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return t.cancelled.CompareAndSwap(false, true)
}
