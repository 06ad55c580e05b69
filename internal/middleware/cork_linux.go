//go:build linux

package middleware

import "golang.org/x/sys/unix"

// corkOn sets TCP_CORK so the kernel buffers the response headers and the
// sendfile'd body into as few packets as possible, trading a few
// microseconds of latency for fewer, fuller TCP segments.
func corkOn(fd int) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_CORK, 1)
}

// corkOff clears TCP_CORK, flushing whatever the kernel had been holding
// back once a full response has been written.
func corkOff(fd int) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_CORK, 0)
}
