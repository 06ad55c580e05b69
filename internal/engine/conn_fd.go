package engine

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrNoRawConn mirrors the failure mode gaio guards against: the supplied
// net.Conn doesn't implement syscall.Conn, so its file descriptor cannot be
// extracted for direct epoll registration.
var ErrNoRawConn = errors.New("engine: net.Conn does not implement syscall.Conn")

// dupConnFD extracts a duplicated, independently-lifetimed file descriptor
// from nc. Duplicating (rather than borrowing nc.File()'s fd) lets the
// worker close its own fd on its own schedule without fighting the
// original *net.TCPConn's finalizer, the same technique gaio's watcher
// uses to take ownership of connections handed to it.
func dupConnFD(nc net.Conn) (syscall.RawConn, int, error) {
	sc, ok := nc.(syscall.Conn)
	if !ok {
		return nil, -1, ErrNoRawConn
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, -1, err
	}

	var dupFD int
	var dupErr error
	err = raw.Control(func(fd uintptr) {
		dupFD, dupErr = unix.Dup(int(fd))
	})
	if err != nil {
		return nil, -1, err
	}
	if dupErr != nil {
		return nil, -1, dupErr
	}
	return raw, dupFD, nil
}

func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

func closeFD(fd int) {
	_ = unix.Close(fd)
}
