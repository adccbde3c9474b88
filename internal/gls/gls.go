// Package gls implements goroutine-local storage.
//
// The scheduler needs a way for a coroutine body (which the user spawns with
// no arguments and no explicit handle) to find "the coroutine currently
// running on this goroutine" from an arbitrary call depth, with a zero-arg
// API — the same requirement the original Rust implementation solved with a
// thread-local. Go has no public thread-local or goroutine-local API, so
// this keys a map off the numeric goroutine ID parsed out of
// runtime.Stack, a well-known (if inelegant) substitute used by several
// goroutine-local-storage shims in the ecosystem.
//
// It is only ever consulted at explicit suspension points (spawn, sched,
// block, ready), never on every function call, so the cost of parsing the
// stack trace on each lookup is not on a hot path.
package gls

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var (
	mu    sync.RWMutex
	store = make(map[uint64]any)
)

// id returns the numeric ID of the calling goroutine.
func id() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	n64, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return n64
}

// Set associates v with the calling goroutine.
func Set(v any) {
	gid := id()
	mu.Lock()
	store[gid] = v
	mu.Unlock()
}

// Clear removes any value associated with the calling goroutine.
func Clear() {
	gid := id()
	mu.Lock()
	delete(store, gid)
	mu.Unlock()
}

// Get returns the value associated with the calling goroutine, if any.
func Get() (any, bool) {
	gid := id()
	mu.RLock()
	v, ok := store[gid]
	mu.RUnlock()
	return v, ok
}
