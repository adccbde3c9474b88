// Package reactor implements the I/O readiness notifier spec.md §6
// describes as a dependency of socket types, not of the scheduler core:
// file descriptors are registered with an interest set and a callback,
// and Poll delivers readiness by invoking those callbacks.
//
// The package deliberately knows nothing about coroutines or the
// scheduler — callbacks are plain func(Events) closures — so that
// package coro can hold a *Reactor without an import cycle, and the
// coroutine-aware glue (parking on a registration, readying on a
// callback) lives downstream in package netio, which is the actual
// user of both coro and reactor per spec.md §6's layering.
//
// Platform backends are grounded on the teacher pack's
// eventloop.FastPoller (poller_linux.go et al.): epoll with a
// direct-indexed per-fd callback table on Linux, poll(2) with a
// map-keyed callback table elsewhere on Unix.
package reactor

import "errors"

// Events is a readiness bitmask.
type Events uint32

const (
	Read Events = 1 << iota
	Write
	Err
	Hangup
)

// Callback receives the readiness events observed for the fd it was
// registered against.
type Callback func(Events)

// ErrUnsupportedPlatform is returned by New on platforms with no poller
// backend (spec.md §9 notes the reactor is Unix-only; Windows is an
// explicit non-goal of this port, not an oversight).
var ErrUnsupportedPlatform = errors.New("reactor: no poller backend for this platform")

// ErrClosed is returned by operations on a Reactor after Close.
var ErrClosed = errors.New("reactor: closed")

// poller is the platform backend interface; poller_linux.go and
// poller_poll.go each provide one implementation, selected by build tag.
type poller interface {
	register(fd int, ev Events, cb Callback) error
	modify(fd int, ev Events) error
	unregister(fd int) error
	poll(timeoutMs int) (int, error)
	close() error
}

// Reactor multiplexes readiness notification for an arbitrary number of
// file descriptors behind a single platform poller.
type Reactor struct {
	p poller
}

// New constructs a Reactor using the best available backend for the
// running platform, or ErrUnsupportedPlatform if none exists.
func New() (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{p: p}, nil
}

// Register arranges for cb to be invoked whenever fd becomes ready for
// any event in ev.
func (r *Reactor) Register(fd int, ev Events, cb Callback) error {
	return r.p.register(fd, ev, cb)
}

// Modify changes the interest set for an already-registered fd.
func (r *Reactor) Modify(fd int, ev Events) error {
	return r.p.modify(fd, ev)
}

// Unregister removes fd from the reactor. Callers must do this before
// closing fd, to avoid stale callbacks firing against a recycled
// descriptor.
func (r *Reactor) Unregister(fd int) error {
	return r.p.unregister(fd)
}

// Poll blocks for up to timeoutMs milliseconds (0 meaning return
// immediately), dispatching any ready fd's callback inline, and returns
// the number of fds it dispatched.
func (r *Reactor) Poll(timeoutMs int) (int, error) {
	return r.p.poll(timeoutMs)
}

// Run repeatedly polls with a real (non-zero) timeout until stop is
// closed.
//
// Processor.loop (package coro) also opportunistically polls with a
// zero timeout between steal attempts, so this dedicated goroutine is
// not load-bearing for latency in the common case — but it is required
// for correctness: spec.md §6 allows either "a dedicated thread or
// folded into an idle processor's poll step", and folding alone can
// deadlock every processor eventually parks on the starving condvar
// while I/O is still outstanding, at which point nothing is left to
// ever call Poll again. Run is that dedicated thread.
func (r *Reactor) Run(stop <-chan struct{}) {
	const pollTimeoutMs = 100
	for {
		select {
		case <-stop:
			return
		default:
		}
		_, _ = r.Poll(pollTimeoutMs)
	}
}

// Close releases the underlying platform resources.
func (r *Reactor) Close() error {
	return r.p.close()
}
