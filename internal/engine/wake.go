//go:build linux

package engine

import (
	"sync"

	"golang.org/x/sys/unix"
)

// wakeSource lets any goroutine interrupt a Worker's blocked epoll_wait,
// the self-pipe trick implemented with a Linux eventfd rather than a pair
// of pipe fds. A single eventfd counter coalesces any number of wakes that
// arrive between two drains into one readiness event, so the mailbox below
// carries the actual payload (accepted connections, submitted closures)
// the worker should process once woken.
type wakeSource struct {
	fd int
}

func newWakeSource() (*wakeSource, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &wakeSource{fd: fd}, nil
}

func (w *wakeSource) signal() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(w.fd, buf[:])
}

// drain clears the eventfd counter. Must be called after EPOLLIN fires on
// w.fd, and before re-reading the mailbox, to avoid missing a wake that
// arrives in between.
func (w *wakeSource) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *wakeSource) close() error {
	return unix.Close(w.fd)
}

// mailbox is the payload side of the wake-up: a plain mutex-protected
// slice of pending jobs, drained and batch-processed by the owning
// Worker's loop iteration after a wake. Kept deliberately simple; the
// eventfd above is what makes posting to it cheap from any goroutine.
type mailbox struct {
	mu      sync.Mutex
	pending []func()
}

func (m *mailbox) post(job func()) {
	m.mu.Lock()
	m.pending = append(m.pending, job)
	m.mu.Unlock()
}

// drainJobs returns and clears all pending jobs in submission order.
func (m *mailbox) drainJobs() []func() {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return nil
	}
	jobs := m.pending
	m.pending = nil
	m.mu.Unlock()
	return jobs
}
