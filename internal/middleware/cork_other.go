//go:build !linux

package middleware

// corkOn is a documented no-op off Linux: TCP_CORK has no portable
// equivalent, and the engine itself only ever runs its poller on Linux.
func corkOn(fd int) {}

// corkOff mirrors corkOn.
func corkOff(fd int) {}
