package bonjour

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// lifecycle is the operation plumbing shared by Browser, Registration and
// Resolver.
//
// The runner handle lives in an atomic pointer. stop swaps it out before
// signalling the runner and takes no lock, so it may be called from reply
// handlers, hooks or any other goroutine without ordering concerns. A
// runner that dies on a provider error clears its own handle with a
// compare-and-swap, which can only succeed while it is still current.
type lifecycle struct {
	kind     Kind
	provider Provider
	opts     options
	log      *slog.Logger

	// mu guards the embedding entity's state and serializes reply handling.
	mu sync.Mutex
	id Identity

	startMu sync.Mutex
	run     atomic.Pointer[runner]

	// stopped reports a failure to the embedding entity's hooks.
	stopped func(err error)
}

func (l *lifecycle) init(kind Kind, p Provider, id Identity, opts options) {
	l.kind = kind
	l.provider = p
	l.opts = opts
	l.id = id
	l.log = opts.logger.With("kind", kind.String())
}

// start begins an operation unless one is already running. begin receives
// the runner that will drive the operation so reply callbacks can tell
// whether they still belong to the current run.
func (l *lifecycle) start(begin func(r *runner) (Operation, error)) bool {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	if l.run.Load() != nil {
		return true
	}

	r := newRunner(l)
	op, err := begin(r)
	if err != nil {
		r.log.Warn("Failed to start operation", "error", err)
		l.opts.tracer.OperationFailed(l.kind, err)
		return false
	}

	r.op = op
	l.run.Store(r)
	l.opts.tracer.OperationStarted(l.kind)
	r.log.Debug("Operation started")

	go r.loop()
	return true
}

// stop signals the active runner, if any. Teardown finishes asynchronously
// on the runner's goroutine.
func (l *lifecycle) stop() {
	if r := l.run.Swap(nil); r != nil {
		r.stop()
		r.log.Debug("Operation stopped")
	}
}

func (l *lifecycle) active() bool {
	return l.run.Load() != nil
}

// fail stops the entity and reports err through its stop hook.
func (l *lifecycle) fail(err error) {
	l.stop()
	l.log.Warn("Provider reported an error", "instance", l.identity().String(), "error", err)
	l.opts.tracer.ReplyFailed(l.kind, err)
	if l.stopped != nil {
		l.stopped(err)
	}
}

// dispatch is the reply path every kind-specific adapter funnels into.
// Replies from a runner that is no longer current are dropped. A failed
// reply stops the entity. Otherwise handle runs under the entity lock and
// the notification it returns runs after the lock is released, so hooks
// are free to call back into the entity.
func (l *lifecycle) dispatch(r *runner, err error, handle func() (notify func())) {
	if !r.current() {
		return
	}
	if err != nil {
		l.fail(err)
		return
	}

	l.mu.Lock()
	notify := handle()
	l.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (l *lifecycle) identity() Identity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id
}

// runner drives one provider operation on its own goroutine. It owns the
// operation exclusively: once stopped nobody else touches it, and the loop
// releases it exactly once on the way out.
type runner struct {
	owner  *lifecycle
	log    *slog.Logger
	op     Operation
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newRunner(owner *lifecycle) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{
		owner:  owner,
		log:    owner.log.With("instance", owner.identity().String()),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (r *runner) stop() {
	r.cancel()
}

func (r *runner) current() bool {
	return r.owner.run.Load() == r
}

func (r *runner) loop() {
	defer close(r.done)
	defer r.cancel()

	err := r.poll()
	r.op.Release()

	errored := err != nil
	if errored && r.owner.run.CompareAndSwap(r, nil) {
		r.log.Warn("Operation terminated by provider failure", "error", err)
		if r.owner.stopped != nil {
			r.owner.stopped(err)
		}
	}
	r.owner.opts.tracer.RunnerExited(r.owner.kind, errored)
}

func (r *runner) poll() error {
	for {
		if r.ctx.Err() != nil {
			return nil
		}

		waitCtx, cancel := context.WithTimeout(r.ctx, r.owner.opts.pollInterval)
		ready, err := r.op.Wait(waitCtx)
		cancel()

		if r.ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if !ready {
			continue
		}
		if err := r.op.Process(); err != nil {
			return err
		}
	}
}
