package engine

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/groove-net/ignis/internal/logging"
)

// waiterKey identifies a single parked task slot. The specification's
// WaitSlot invariant — at most one task parked per (fd, direction) — is
// enforced by waiters never holding more than one *task per key.
type waiterKey struct {
	fd  int
	dir WaitKind
}

// Worker owns one poller, one ready queue and one task table. It is the
// engine's shared-nothing execution unit: a connection assigned to a
// Worker never migrates to another, and exactly one task's code runs at
// any instant inside it, satisfying the specification's cooperative,
// non-preemptive scheduling model even though the runtime beneath it is
// Go's own preemptible goroutine scheduler.
type Worker struct {
	id  int
	cfg Config
	log *logging.Logger

	rq *readyQueue
	p  *poller

	wake *wakeSource
	mb   *mailbox

	waiters map[waiterKey]*task
	conns   map[int]*Conn

	parkedCh chan parkEvent

	nextTaskID int64
	taskCount  atomic.Int64

	closing atomic.Bool
	closed  chan struct{}

	ownerGoroutineID int64
}

// NewWorker constructs a Worker. Call Run to start its event loop.
func NewWorker(id int, cfg Config, log *logging.Logger) (*Worker, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	ws, err := newWakeSource()
	if err != nil {
		_ = p.close()
		return nil, err
	}
	w := &Worker{
		id:       id,
		cfg:      cfg,
		log:      log,
		rq:       newReadyQueue(cfg.ReadyPolicy),
		p:        p,
		wake:     ws,
		mb:       &mailbox{},
		waiters:  make(map[waiterKey]*task),
		conns:    make(map[int]*Conn),
		parkedCh: make(chan parkEvent),
		closed:   make(chan struct{}),
	}
	return w, nil
}

// Submit posts job to the worker's mailbox and wakes its loop. It is safe
// to call from any goroutine, including other Workers' loops.
func (w *Worker) Submit(job func()) error {
	if w.closing.Load() {
		return ErrWorkerClosed
	}
	w.mb.post(job)
	w.wake.signal()
	return nil
}

// AcceptConn hands an already-accepted net.Conn to this worker, which will
// register it with the poller and run handle as a new task.
func (w *Worker) AcceptConn(nc net.Conn, handle func(ctx context.Context, c *Conn)) error {
	return w.Submit(func() {
		w.spawnConn(nc, handle)
	})
}

func (w *Worker) spawnConn(nc net.Conn, handle func(ctx context.Context, c *Conn)) {
	if int(w.taskCount.Load()) >= w.cfg.MaxTasksPerWorker {
		w.log.Warning().Log("worker: connection rejected, task table full")
		_ = nc.Close()
		return
	}

	rawConn, fd, err := dupConnFD(nc)
	if err != nil {
		w.log.Err().Err(err).Log("worker: failed to duplicate connection fd")
		_ = nc.Close()
		return
	}
	if err := setNonblock(fd); err != nil {
		w.log.Err().Err(err).Log("worker: failed to set fd nonblocking")
		closeFD(fd)
		return
	}
	if err := w.p.add(fd); err != nil {
		w.log.Err().Err(err).Log("worker: failed to register fd with poller")
		closeFD(fd)
		return
	}

	c := &Conn{
		fd:     fd,
		worker: w,
		orig:   nc,
		raw:    rawConn,
	}
	w.conns[fd] = c

	w.nextTaskID++
	id := w.nextTaskID
	w.taskCount.Add(1)

	t := newTask(id, w, func(ctx context.Context, t *task) {
		c.task = t
		handle(ctx, c)
	})
	c.task = t
	t.start(context.Background())
	w.rq.push(t)
}

func (w *Worker) taskFinished(t *task) {
	w.taskCount.Add(-1)
}

// onTaskParked records a newly parked waiter. It runs on the Worker's own
// goroutine, invoked synchronously from task.resume while the Worker is
// the one blocked waiting for that task to yield or finish.
func (w *Worker) onTaskParked(pe parkEvent) {
	w.assertOwnerGoroutine()
	key := waiterKey{fd: pe.fd, dir: pe.dir}
	w.waiters[key] = pe.t
}

// cancelWaiter removes a waiter entry a task abandoned after a context
// cancellation raced with the worker observing readiness. Best-effort: if
// the worker already popped the waiter to resume the task, this is a
// harmless no-op.
func (w *Worker) cancelWaiter(fd int, dir WaitKind) {
	_ = w.Submit(func() {
		delete(w.waiters, waiterKey{fd: fd, dir: dir})
	})
}

// Run drives the Worker's event loop until ctx is cancelled. It must be
// called from the goroutine that owns this Worker; everything else
// (Submit, AcceptConn) is safe to call from elsewhere.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.closed)
	defer w.p.close()
	defer w.wake.close()

	w.ownerGoroutineID = currentGoroutineID()

	if err := w.p.add(w.wake.fd); err != nil {
		return err
	}

	for {
		if w.closing.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			w.closing.Store(true)
			return nil
		default:
		}

		// Run every task currently eligible, one at a time, before
		// polling again: this is the cooperative scheduler's "drain
		// the ready queue" phase.
		for {
			t := w.rq.pop()
			if t == nil {
				break
			}
			t.resume()
		}

		timeout := -1
		if w.cfg.RecvTimeout > 0 {
			timeout = int(w.cfg.RecvTimeout / time.Millisecond)
		}

		err := w.p.wait(timeout, func(fd int, ev epollEvents) {
			if fd == w.wake.fd {
				w.wake.drain()
				for _, job := range w.mb.drainJobs() {
					job()
				}
				return
			}
			w.handleReadiness(fd, ev)
		})
		if err != nil {
			return err
		}
	}
}

// handleReadiness resolves a poller event to a parked task (if any) and
// either wakes it or, for the no-task-parked peer-closed case, closes the
// connection directly. This is the specification's close-sequence
// ownership rule: a worker only closes a connection from its own loop when
// no task is currently parked on it; otherwise the parked task's own exit
// path (observing ErrPeerClosed from RecvAsync) drives the close.
func (w *Worker) handleReadiness(fd int, ev epollEvents) {
	hangup := ev&(evHangup|evError) != 0

	woke := false
	if ev&evRead != 0 || hangup {
		if t, ok := w.waiters[waiterKey{fd: fd, dir: WaitRead}]; ok {
			delete(w.waiters, waiterKey{fd: fd, dir: WaitRead})
			w.wakeTask(t)
			woke = true
		}
	}
	if ev&evWrite != 0 || hangup {
		if t, ok := w.waiters[waiterKey{fd: fd, dir: WaitWrite}]; ok {
			delete(w.waiters, waiterKey{fd: fd, dir: WaitWrite})
			w.wakeTask(t)
			woke = true
		}
	}

	if hangup && !woke {
		w.closeConnection(fd)
	}
}

// wakeTask resumes a task that was parked waiting on fd readiness. It
// resumes directly rather than going through the ready queue: readiness
// events already arrive one at a time from the poller, so there is no
// batch of runnable tasks to order here the way there is for freshly
// spawned connections.
func (w *Worker) wakeTask(t *task) {
	t.resume()
}

// closeConnection tears down a connection the worker owns directly,
// because no task was parked on it when the terminal event arrived.
func (w *Worker) closeConnection(fd int) {
	c, ok := w.conns[fd]
	if !ok {
		return
	}
	delete(w.conns, fd)
	_ = w.p.remove(fd)
	// close socket file descriptor duplicated from net.Conn
	closeFD(fd)
	_ = c.orig.Close()
}

var _ io.Closer = (*Worker)(nil)

// Close signals the worker's loop to stop after the current iteration.
func (w *Worker) Close() error {
	w.closing.Store(true)
	w.wake.signal()
	return nil
}
