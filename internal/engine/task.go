package engine

import "context"

// task is the engine's reinterpretation of the specification's stackful
// coroutine. Go already gives every goroutine its own growable stack, so a
// task is simply a goroutine plus a rendezvous baton: the Worker only ever
// allows one task's baton to be held at a time, which reproduces the
// specification's single-thread-per-worker, non-preemptive, run-to-yield
// semantics on top of a runtime that otherwise schedules goroutines freely.
type task struct {
	id int64

	w *Worker

	// resumeCh is handed the baton by the Worker when this task becomes
	// runnable. Exactly one value is ever sent per resume.
	resumeCh chan struct{}

	// doneCh is closed by the goroutine start launches when the task
	// function returns, letting
	// the Worker reclaim its slot without a separate wait mechanism.
	doneCh chan struct{}

	// parked, fd and waitKind describe what the task is blocked on while
	// it does not hold the baton; the Worker consults these to know which
	// readiness event should make the task runnable again.
	parked   bool
	fd       int
	waitKind WaitKind

	fn func(ctx context.Context, t *task)
}

// parkEvent is posted back to the Worker's loop when a task wants to
// suspend itself pending fd readiness. Sending it is the only thing a
// task does before giving the baton back.
type parkEvent struct {
	t   *task
	fd  int
	dir WaitKind
}

func newTask(id int64, w *Worker, fn func(ctx context.Context, t *task)) *task {
	return &task{
		id:       id,
		w:        w,
		resumeCh: make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		fn:       fn,
	}
}

// start launches the task's goroutine. It blocks immediately on resumeCh:
// the goroutine exists but does not run the task body until the Worker
// hands it the baton for the first time.
func (t *task) start(ctx context.Context) {
	go func() {
		<-t.resumeCh
		t.fn(ctx, t)
		close(t.doneCh)
		t.w.taskFinished(t)
	}()
}

// resume hands the baton to the task and blocks until the task either
// parks (yields, posting a parkEvent on w.parkedCh) or finishes (closing
// doneCh). The Worker's event loop is the only caller, and it is only ever
// waiting on one task's resume() at a time, so a shared parkedCh on the
// Worker is unambiguous: whatever arrives on it belongs to this resume.
func (t *task) resume() {
	t.resumeCh <- struct{}{}
	select {
	case pe := <-t.w.parkedCh:
		t.w.onTaskParked(pe)
	case <-t.doneCh:
	}
}

// yieldOn suspends the calling task until fd becomes ready for dir, then
// returns control to the caller. It must only be called from inside the
// task's own goroutine (i.e. from fn, or from something fn calls
// synchronously). Returns ctx.Err() if ctx is cancelled first.
func (t *task) yieldOn(ctx context.Context, fd int, dir WaitKind) error {
	t.parked = true
	t.fd = fd
	t.waitKind = dir

	done := ctx.Done()
	if done == nil {
		t.w.parkedCh <- parkEvent{t: t, fd: fd, dir: dir}
		<-t.resumeCh
		t.parked = false
		return nil
	}

	select {
	case t.w.parkedCh <- parkEvent{t: t, fd: fd, dir: dir}:
	case <-done:
		t.parked = false
		return ctx.Err()
	}

	select {
	case <-t.resumeCh:
		t.parked = false
		return nil
	case <-done:
		t.parked = false
		t.w.cancelWaiter(fd, dir)
		return ctx.Err()
	}
}
