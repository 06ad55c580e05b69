package engine

import (
	"context"
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// applyRecvTimeout layers cfg.RecvTimeout onto ctx when the caller hasn't
// already set a tighter deadline, so a stalled peer can't park a task (and
// its worker slot) forever.
func applyRecvTimeout(ctx context.Context, cfg Config) (context.Context, context.CancelFunc) {
	if cfg.RecvTimeout <= 0 {
		return ctx, func() {}
	}
	// WithTimeout keeps the parent's deadline when it is the earlier one.
	return context.WithTimeout(ctx, cfg.RecvTimeout)
}

// Conn is a single accepted connection's async-I/O handle, the engine's
// counterpart to gaio's aiocb-driven operations: every call below either
// completes immediately against the raw fd or parks the calling task on
// the poller and resumes it once the kernel reports readiness.
type Conn struct {
	fd     int
	worker *Worker
	orig   net.Conn
	raw    syscall.RawConn
	task   *task
	closed bool
	// released is set once Close has queued the fd teardown; closed alone
	// only stops further I/O after a peer close or a failed write.
	released bool
}

// RemoteAddr exposes the underlying net.Conn's address, cheaper than
// round-tripping through the fd for logging and rate limiting.
func (c *Conn) RemoteAddr() net.Addr { return c.orig.RemoteAddr() }

// FD exposes the raw socket descriptor for callers that need to toggle
// socket options (e.g. TCP_CORK) the engine itself has no opinion on.
func (c *Conn) FD() int { return c.fd }

// RecvAsync reads into buf, parking the calling task on the poller between
// EAGAIN retries. It returns as soon as one read delivers bytes; the caller
// honours the edge-triggered drain obligation by calling it again, and the
// next call parks only once the kernel reports EAGAIN.
func (c *Conn) RecvAsync(ctx context.Context, buf []byte) (int, error) {
	if c.closed {
		return 0, ErrPeerClosed
	}
	ctx, cancel := applyRecvTimeout(ctx, c.worker.cfg)
	defer cancel()

	for {
		n, err := unix.Read(c.fd, buf)
		switch {
		case n == 0 && err == nil:
			c.closed = true
			return 0, ErrPeerClosed
		case err == nil:
			return n, nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if werr := c.task.yieldOn(ctx, c.fd, WaitRead); werr != nil {
				return 0, translateWaitErr(werr)
			}
			continue
		default:
			return 0, &IOError{Op: "read", Err: err}
		}
	}
}

// SendAsync writes all of buf, parking on the poller across EAGAIN exactly
// like RecvAsync. Partial kernel writes are looped over internally so
// callers always see either a full write or an error.
func (c *Conn) SendAsync(ctx context.Context, buf []byte) (int, error) {
	if c.closed {
		return 0, ErrSendAborted
	}
	written := 0
	for written < len(buf) {
		n, err := unix.Write(c.fd, buf[written:])
		switch {
		case err == nil:
			written += n
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if werr := c.task.yieldOn(ctx, c.fd, WaitWrite); werr != nil {
				return written, translateWaitErr(werr)
			}
		default:
			c.closed = true
			return written, &IOError{Op: "write", Err: err}
		}
	}
	return written, nil
}

// SendfileAsync streams count bytes starting at offset from the regular
// file srcFD to the connection using sendfile(2), falling back to the
// same park/retry loop as SendAsync when the socket buffer is full. Used
// by the static file middleware to avoid copying file contents through
// userspace.
func (c *Conn) SendfileAsync(ctx context.Context, srcFD int, offset, count int64) (int64, error) {
	var sent int64
	off := offset
	for sent < count {
		n, err := unix.Sendfile(c.fd, srcFD, &off, int(count-sent))
		switch {
		case err == nil:
			if n == 0 {
				return sent, &IOError{Op: "sendfile", Err: errors.New("short sendfile with no progress")}
			}
			sent += int64(n)
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if werr := c.task.yieldOn(ctx, c.fd, WaitWrite); werr != nil {
				return sent, translateWaitErr(werr)
			}
		default:
			return sent, &IOError{Op: "sendfile", Err: err}
		}
	}
	return sent, nil
}

// Close releases the connection's fd and deregisters it from the poller.
// Safe to call from the owning task's goroutine only.
func (c *Conn) Close() error {
	if c.released {
		return nil
	}
	c.released = true
	c.closed = true
	return c.worker.Submit(func() {
		delete(c.worker.conns, c.fd)
		_ = c.worker.p.remove(c.fd)
		closeFD(c.fd)
		_ = c.orig.Close()
	})
}

func translateWaitErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
