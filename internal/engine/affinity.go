package engine

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentGoroutineID parses the calling goroutine's numeric ID out of a
// runtime.Stack trace. It exists only for the debug affinity check below;
// production code paths never need a goroutine's identity since Go
// schedules work for us. Grounded on the same technique the teacher's
// event loop package uses for its single-owner-thread assertions.
func currentGoroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	// Output starts with "goroutine 123 [running]:".
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return -1
	}
	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return -1
	}
	id, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// assertOwnerGoroutine is a debug-only tripwire: it panics if called from
// any goroutine other than the one running this Worker's event loop,
// catching accidental direct mutation of Worker state (ready queue,
// waiters table) from a Task's goroutine instead of going through Submit.
func (w *Worker) assertOwnerGoroutine() {
	if !debugAffinityChecks {
		return
	}
	if got := currentGoroutineID(); got != w.ownerGoroutineID {
		panic("engine: worker state touched from non-owning goroutine")
	}
}

// debugAffinityChecks gates assertOwnerGoroutine's cost; left off by
// default since the runtime.Stack parse is not free on a hot path.
var debugAffinityChecks = false
