// Package engine implements the connection engine: a fixed pool of
// shared-nothing Workers, each running a single-threaded, cooperative
// scheduler over goroutine-backed tasks, fed by a Dispatcher that accepts
// connections and distributes them round-robin.
package engine

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/groove-net/ignis/internal/logging"
)

// Engine is the top-level handle: construct with NewEngine, then Run it
// against a listener and a Handler.
type Engine struct {
	cfg     Config
	log     *logging.Logger
	workers []*Worker
}

// NewEngine builds cfg.WorkerCount Workers, each with its own poller,
// ready queue and task table.
func NewEngine(cfg Config, log *logging.Logger) (*Engine, error) {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	workers := make([]*Worker, cfg.WorkerCount)
	for i := range workers {
		w, err := NewWorker(i, cfg, log)
		if err != nil {
			for _, built := range workers[:i] {
				if built != nil {
					_ = built.Close()
				}
			}
			return nil, err
		}
		workers[i] = w
	}
	return &Engine{cfg: cfg, log: log, workers: workers}, nil
}

// Run starts every Worker's event loop and the Dispatcher's accept loop,
// blocking until ctx is cancelled or a fatal error occurs in any of them.
func (e *Engine) Run(ctx context.Context, ln net.Listener, handler Handler, opts ...DispatcherOption) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, w := range e.workers {
		w := w
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	dispatcher := NewDispatcher(ln, e.workers, handler, e.log, opts...)
	g.Go(func() error {
		<-gctx.Done()
		// w.Run's own ctx.Done() check only runs between epoll_wait
		// calls, which can block for up to RecvTimeout; Close signals
		// each worker's wake fd so a cancelled run stops promptly
		// instead of waiting out whatever poll timeout is in flight.
		for _, w := range e.workers {
			_ = w.Close()
		}
		return dispatcher.Close()
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	return g.Wait()
}

// Shutdown stops every Worker's loop. It does not wait for in-flight
// connections to drain; the specification lists graceful shutdown as a
// non-goal.
func (e *Engine) Shutdown() {
	for _, w := range e.workers {
		_ = w.Close()
	}
}

// WorkerCount reports how many Workers this Engine owns.
func (e *Engine) WorkerCount() int { return len(e.workers) }
