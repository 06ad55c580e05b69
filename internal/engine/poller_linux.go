//go:build linux

package engine

import (
	"errors"

	"golang.org/x/sys/unix"
)

// epollEvents is the connection engine's readiness bitmask, translated to
// and from raw epoll flags at the syscall boundary.
type epollEvents uint32

const (
	evRead epollEvents = 1 << iota
	evWrite
	evError
	evHangup
)

var errPollerClosed = errors.New("engine: poller closed")

// poller wraps a single epoll instance in level-independent, edge-triggered
// mode. Every registration asks for EPOLLIN|EPOLLOUT|EPOLLRDHUP|EPOLLET, so
// a Worker must drain a ready fd until EAGAIN before it can yield again —
// the "drain obligation" the specification requires of the async I/O
// primitives.
type poller struct {
	epfd   int
	events []unix.EpollEvent
	closed bool
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 256),
	}, nil
}

func (p *poller) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

const edgeTriggeredMask = unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET

func (p *poller) add(fd int) error {
	if p.closed {
		return errPollerClosed
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: edgeTriggeredMask,
		Fd:     int32(fd),
	})
}

func (p *poller) remove(fd int) error {
	if p.closed {
		return errPollerClosed
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks up to timeoutMs (negative means forever) and invokes cb once
// per ready fd with the translated event mask. EINTR is swallowed and
// reported as a zero-event wake so the caller's loop just spins again.
func (p *poller) wait(timeoutMs int, cb func(fd int, ev epollEvents)) error {
	if p.closed {
		return errPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		raw := p.events[i]
		cb(int(raw.Fd), rawToEvents(raw.Events))
	}
	return nil
}

func rawToEvents(raw uint32) epollEvents {
	var e epollEvents
	if raw&unix.EPOLLIN != 0 {
		e |= evRead
	}
	if raw&unix.EPOLLOUT != 0 {
		e |= evWrite
	}
	if raw&unix.EPOLLERR != 0 {
		e |= evError
	}
	if raw&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		e |= evHangup
	}
	return e
}
