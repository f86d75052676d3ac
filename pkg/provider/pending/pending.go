// Package pending turns callback- or channel-driven discovery libraries
// into pollable operations.
//
// A backend goroutine posts results into a Queue as they arrive. The
// bonjour runner waits on the queue and then drains it with Process, which
// invokes every queued reply on the runner's goroutine. Replies drained in
// one batch learn whether more replies follow through their more argument.
package pending

import (
	"context"
	"errors"
	"sync"
)

// ErrReleased is returned by Wait once the operation has been released.
var ErrReleased = errors.New("operation released")

// Queue holds replies that have been produced but not yet delivered.
type Queue struct {
	mu     sync.Mutex
	items  []func(more bool)
	err    error
	closed bool
	ready  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Post queues a reply. Posts after Close are dropped.
func (q *Queue) Post(reply func(more bool)) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, reply)
	q.mu.Unlock()
	q.signal()
}

// Fail records a fatal error. Replies queued before it are still delivered
// and the first error wins.
func (q *Queue) Fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Wait blocks until replies are queued, a failure is recorded or ctx ends.
func (q *Queue) Wait(ctx context.Context) (bool, error) {
	for {
		q.mu.Lock()
		n, err, closed := len(q.items), q.err, q.closed
		q.mu.Unlock()

		switch {
		case closed:
			return false, ErrReleased
		case n > 0:
			return true, nil
		case err != nil:
			return false, err
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-q.ready:
		}
	}
}

// Process delivers every queued reply in order.
func (q *Queue) Process() error {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for i, reply := range items {
		reply(i < len(items)-1)
	}
	return nil
}

// Len reports the number of queued replies.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close drops queued replies and refuses new ones.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.signal()
}

// Op is a Queue bound to the lifetime of background work. It implements
// bonjour.Operation.
type Op struct {
	*Queue

	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	mu      sync.Mutex
	cleanup []func()
}

func NewOp() *Op {
	ctx, cancel := context.WithCancel(context.Background())
	return &Op{Queue: NewQueue(), ctx: ctx, cancel: cancel}
}

// Context is cancelled when the operation is released.
func (o *Op) Context() context.Context {
	return o.ctx
}

// Go runs work in the background. A non-nil error other than a
// cancellation after release fails the operation.
func (o *Op) Go(work func(ctx context.Context) error) {
	go func() {
		err := work(o.ctx)
		if err == nil || o.ctx.Err() != nil {
			return
		}
		o.Fail(err)
	}()
}

// OnRelease registers fn to run during Release, after the context has
// been cancelled. Functions run in reverse registration order.
func (o *Op) OnRelease(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleanup = append(o.cleanup, fn)
}

// Release cancels background work and runs cleanup. Only the first call has an effect.
func (o *Op) Release() {
	o.once.Do(func() {
		o.cancel()
		o.Close()

		o.mu.Lock()
		cleanup := o.cleanup
		o.cleanup = nil
		o.mu.Unlock()

		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	})
}
