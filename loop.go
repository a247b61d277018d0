package mediastream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrLoopStopped is returned by Call when the loop exits before running
// the task.
var ErrLoopStopped = errors.New("mediastream: loop stopped")

// TaskQueue is the cooperative task queue a Stream is bound to. Post must
// not run task synchronously; tasks run one at a time in FIFO order.
type TaskQueue interface {
	Post(task func())
}

// Loop is a TaskQueue drained by a single goroutine inside Run.
type Loop struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewLoop creates a loop. Call Run to start draining it.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post appends task to the queue. It never blocks.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is done. Tasks posted while a batch runs
// are picked up by the next iteration.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	for {
		l.runPending()

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

func (l *Loop) runPending() {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	for _, task := range tasks {
		task()
	}
}

// Call runs fn on the loop and waits for it to return. It must not be
// called from the loop goroutine. If Call returns an error, fn has not run
// and never will; once fn has started, Call waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	var claimed atomic.Bool
	done := make(chan struct{})
	l.Post(func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if claimed.CompareAndSwap(false, true) {
			return ctx.Err()
		}
	case <-l.done:
		if claimed.CompareAndSwap(false, true) {
			return ErrLoopStopped
		}
	}
	<-done
	return nil
}
