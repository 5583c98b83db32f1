// Package loop provides a single-threaded execution context.
//
// Any goroutine may Post tasks; they run one at a time, in posting order, on
// the goroutine that called Run. Consumer callbacks of the signaling bridge are
// always invoked from a Loop so that they never race with each other.
package loop

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrStopped is returned by Do when the loop has been stopped.
var ErrStopped = errors.New("loop stopped")

// Loop is a FIFO task queue drained by a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}

	logger *logrus.Entry
}

// New creates a loop. A nil logger falls back to the logrus standard logger.
func New(logger *logrus.Entry) *Loop {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.WithField("component", "loop"),
	}
}

// Post queues fn. It never blocks and returns false if the loop was stopped,
// in which case fn is discarded.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run drains the queue until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.wake:
			l.RunPending()
		}
	}
}

// RunPending runs every task queued so far on the calling goroutine and
// returns how many ran. Tasks posted while draining are left for the next
// call. Hosts that own their own event loop call this from their turn instead
// of Run.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	tasks := l.queue
	l.queue = nil
	stopped := l.stopped
	l.mu.Unlock()

	if stopped {
		return 0
	}
	for _, fn := range tasks {
		l.safeRun(fn)
	}
	return len(tasks)
}

// Do runs fn on the loop and waits for it to finish. Because tasks run in
// order, Do also acts as a barrier for everything posted before it.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop discards pending tasks and makes Run return. Safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.queue = nil
	close(l.done)
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// safeRun keeps a panicking consumer callback from taking the loop down.
func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Error("panic recovered in loop task")
		}
	}()
	fn()
}
