package coro

import "sync"

// outcome is what a spawned coroutine's trampoline delivers exactly once:
// either a value, a captured panic, or (via deliverClosed) nothing at all
// if the coroutine was dropped at shutdown before it ever ran.
type outcome[T any] struct {
	value T
	panic *PanicPayload
}

// JoinHandle is a single-use conduit for a spawned coroutine's result or
// panic payload (spec.md §3, §4.5).
//
// original_source/src/scheduler.rs's JoinHandle wraps coio's own
// coroutine-aware mpsc channel (the crate-relative `::sync::mpsc`, not
// `std::sync::mpsc`): its Receiver::recv suspends the *calling coroutine*
// and frees its processor to run other work while waiting — which is
// exactly why test_join_basic (scheduler.rs:234: one worker, spawn then
// join) doesn't deadlock upstream. A plain Go channel receive has no such
// coroutine-awareness: it blocks the calling goroutine only, while the
// processor driving that goroutine stays parked inside Coroutine.resume
// the entire time, unable to pop anything else from its own queue. With
// one worker that queue holds the very child being joined, so nothing is
// ever left to run it and Join never returns.
//
// JoinHandle instead suspends cooperatively when Join is called from
// inside a coroutine: it registers the caller as a waiter and calls
// Block(), and is woken by Ready() from the trampoline that delivers the
// outcome — the same Block/Ready rendezvous every other blocking
// primitive in this package is built on. Join called from an ordinary
// goroutine that is not driving any coroutine — as Run does for the main
// coroutine (scheduler.go) — falls back to a plain blocking receive,
// which is correct there: no processor is parked behind that call.
type JoinHandle[T any] struct {
	mu      sync.Mutex
	done    bool
	closed  bool
	result  outcome[T]
	waiters []*Coroutine
	awake   chan struct{} // closed exactly once, on delivery; wakes non-coroutine joiners
}

func newJoinHandle[T any]() *JoinHandle[T] {
	return &JoinHandle[T]{awake: make(chan struct{})}
}

// deliver records the coroutine's outcome and wakes every waiter: any
// coroutine parked in Join via Block, and any plain goroutine blocked on
// awake. Called by the spawn trampoline exactly once (scheduler.go).
func (h *JoinHandle[T]) deliver(o outcome[T]) {
	h.mu.Lock()
	h.result = o
	h.done = true
	waiters := h.waiters
	h.waiters = nil
	h.mu.Unlock()

	close(h.awake)
	for _, w := range waiters {
		Ready(w)
	}
}

// deliverClosed marks the handle closed without a result: the coroutine
// was dropped by scheduler shutdown before it ever ran (spec.md §9).
func (h *JoinHandle[T]) deliverClosed() {
	h.mu.Lock()
	h.closed = true
	h.done = true
	waiters := h.waiters
	h.waiters = nil
	h.mu.Unlock()

	close(h.awake)
	for _, w := range waiters {
		Ready(w)
	}
}

// await suspends the caller until deliver or deliverClosed runs. From
// inside a coroutine it parks cooperatively (registers as a waiter, then
// Block()); a concurrent deliver landing between those two steps is
// resolved the same way any Ready-vs-park race is (see coroutine.go's
// readyTransition), so no wakeup is lost. Outside a coroutine it does a
// plain blocking receive.
func (h *JoinHandle[T]) await() {
	if c := current(); c != nil {
		h.mu.Lock()
		if h.done {
			h.mu.Unlock()
			return
		}
		h.waiters = append(h.waiters, c)
		h.mu.Unlock()
		Block()
		return
	}
	<-h.awake
}

// Join blocks until the coroutine finishes (returning its value), panics
// (returning its PanicPayload as the error), or is dropped by scheduler
// shutdown (returning ErrSchedulerShutdown). Safe to call more than once
// or from more than one caller; everyone after the first delivery observes
// the same cached outcome.
func (h *JoinHandle[T]) Join() (T, error) {
	h.await()

	h.mu.Lock()
	defer h.mu.Unlock()
	var zero T
	if h.closed {
		return zero, ErrSchedulerShutdown
	}
	if h.result.panic != nil {
		return zero, h.result.panic
	}
	return h.result.value, nil
}
