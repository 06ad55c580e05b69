package engine

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-microbatch"

	"github.com/groove-net/ignis/internal/logging"
)

// acceptJob is the unit of work batched between accept() returning a raw
// connection and that connection being handed off to a Worker. Batching
// accepts lets a burst of near-simultaneous connections get their
// round-robin worker assignment computed together; the rate-limit check
// runs per connection in Run before a job is submitted, and each
// connection in a batch is still posted to its worker individually.
type acceptJob struct {
	conn net.Conn
}

// Handler processes one accepted connection to completion (including, for
// a keep-alive aware protocol, multiple requests) before returning.
type Handler func(ctx context.Context, c *Conn)

// Dispatcher owns the listening socket and distributes accepted
// connections across a fixed pool of Workers in round-robin order, the
// same shared-nothing fan-out the specification's connection engine
// describes. An optional per-remote-address accept-rate limiter protects
// the worker pool from a single abusive peer.
type Dispatcher struct {
	ln      net.Listener
	workers []*Worker
	handler Handler
	log     *logging.Logger

	limiter *catrate.Limiter
	batcher *microbatch.Batcher[acceptJob]

	next atomic.Uint64
}

// DispatcherOption configures optional Dispatcher behaviour.
type DispatcherOption func(*Dispatcher)

// WithAcceptRateLimit installs a per-remote-IP accept limiter. rates maps
// a window to the maximum number of accepted connections from one
// category (here, remote IP) within that window; a nil or empty map
// disables limiting entirely.
func WithAcceptRateLimit(rates map[time.Duration]int) DispatcherOption {
	return func(d *Dispatcher) {
		if len(rates) == 0 {
			return
		}
		d.limiter = catrate.NewLimiter(rates)
	}
}

// NewDispatcher builds a Dispatcher over ln, fanning accepted connections
// out to workers and running each to completion with handler.
func NewDispatcher(ln net.Listener, workers []*Worker, handler Handler, log *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ln:      ln,
		workers: workers,
		handler: handler,
		log:     log,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:       32,
		FlushInterval: 5 * time.Millisecond,
	}, d.processBatch)
	return d
}

// Run accepts connections until ctx is cancelled or the listener errors.
func (d *Dispatcher) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = d.ln.Close()
	}()

	for {
		nc, err := d.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			d.log.Err().Err(err).Log("dispatcher: accept failed")
			return err
		}

		if d.limiter != nil {
			host := remoteHost(nc.RemoteAddr())
			if _, ok := d.limiter.Allow(host); !ok {
				d.log.Warning().Str("remote", host).Log("dispatcher: accept rate exceeded, dropping connection")
				_ = nc.Close()
				continue
			}
		}

		if _, err := d.batcher.Submit(ctx, acceptJob{conn: nc}); err != nil {
			_ = nc.Close()
		}
	}
}

// processBatch is the microbatch.BatchProcessor: it assigns every accepted
// connection in the batch to a worker via round-robin and hands it off.
func (d *Dispatcher) processBatch(ctx context.Context, jobs []acceptJob) error {
	for _, job := range jobs {
		w := d.pickWorker()
		if err := w.AcceptConn(job.conn, d.handler); err != nil {
			d.log.Err().Err(err).Log("dispatcher: worker rejected connection")
			_ = job.conn.Close()
		}
	}
	return nil
}

func (d *Dispatcher) pickWorker() *Worker {
	n := d.next.Add(1) - 1
	return d.workers[int(n%uint64(len(d.workers)))]
}

// Close stops accepting and releases the listener and batcher.
func (d *Dispatcher) Close() error {
	_ = d.batcher.Close()
	return d.ln.Close()
}

func remoteHost(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
