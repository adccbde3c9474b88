package coro

import (
	"fmt"
	"sync/atomic"

	"github.com/pssalmeida/coio/internal/gls"
)

// State is a coroutine's lifecycle state (spec.md §3).
type State int32

const (
	// StateRunnable means the coroutine is ready to run and sitting in
	// some run queue.
	StateRunnable State = iota
	// StateRunning means exactly one processor currently holds and is
	// executing this coroutine.
	StateRunning
	// StateParked means the coroutine suspended via Block and is owned by
	// whatever external party will eventually call Ready on it.
	StateParked
	// StateFinished means the coroutine's body returned or panicked; it is
	// about to be destroyed.
	StateFinished

	// stateReadyPending is internal: Ready raced ahead of the coroutine's
	// own call to park() and won, so park must not actually block (see
	// park's CompareAndSwap). Never intentionally observed through
	// State(); it exists for, at most, the handful of instructions
	// between Ready's CAS and park's CAS.
	stateReadyPending
)

func (s State) String() string {
	switch s {
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateParked:
		return "parked"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Coroutine is a suspendable unit of work with its own (goroutine-backed)
// stack and a saved point of execution (spec.md §3, §4.1).
//
// The context-switch primitive spec.md §6 requires (make_context /
// swap_context) has no portable public equivalent in Go: there is no way to
// save a stack pointer and instruction pointer for one goroutine and later
// resume it on a different OS thread using only the language. This
// implementation instead gives every Coroutine its own dedicated goroutine,
// and models "swap_context" as a synchronous, unbuffered-channel handshake
// between that goroutine and whichever Processor goroutine is driving it.
// A goroutine already *is* a stackful, suspendable execution context
// multiplexed by the Go runtime onto OS threads; this type builds a second,
// user-level M:N scheduler on top of that primitive, the same way the
// teacher (toysched) represents both its M (OS thread) and G (goroutine)
// as ordinary goroutines for pedagogical clarity.
type Coroutine struct {
	id        uint64
	name      string
	stackSize int
	scheduler *Scheduler

	state atomic.Int32
	home  atomic.Pointer[Processor]

	// proc is the processor currently resuming this coroutine. It is
	// written by the resuming processor immediately before handing off on
	// resumeCh, and is only ever read from this coroutine's own goroutine
	// while it is Running — so it needs no synchronization of its own
	// beyond the happens-before edge the channel send/receive already
	// provides.
	proc *Processor

	// closure is the (already panic-guarded, result-sending) coroutine
	// body, installed by spawn.
	closure func()

	// resumeCh hands control to the coroutine's goroutine; doneCh hands it
	// back. Both are unbuffered: each send is a synchronous rendezvous,
	// the Go analogue of swap_context, and guarantees at most one of
	// {processor, coroutine} runs at any instant for this pair.
	resumeCh chan *Processor
	doneCh   chan State

	// onDrop is invoked (by Processor shutdown handling) when this
	// coroutine is discarded from a run queue without ever having
	// executed, closing its JoinHandle's channel.
	onDrop func()
}

// ID returns the coroutine's unique identity.
func (c *Coroutine) ID() uint64 { return c.id }

// Name returns the coroutine's diagnostic name, if any.
func (c *Coroutine) Name() string { return c.name }

// StackSize returns the coroutine's configured stack size.
func (c *Coroutine) StackSize() int { return c.stackSize }

// State returns the coroutine's current lifecycle state.
func (c *Coroutine) State() State { return State(c.state.Load()) }

// Home returns the processor that first resumed this coroutine, used only
// as a locality hint for Ready (spec.md §3).
func (c *Coroutine) Home() *Processor { return c.home.Load() }

func (c *Coroutine) String() string {
	if c.name != "" {
		return fmt.Sprintf("coroutine#%d(%s)", c.id, c.name)
	}
	return fmt.Sprintf("coroutine#%d", c.id)
}

// bootstrap allocates a Coroutine and installs its trampoline (spec.md
// §4.1): the dedicated goroutine that, on its first resumption, will run
// closure under a panic boundary (closure is expected to already be wrapped
// with one by the typed spawn helper) and then mark itself Finished.
func bootstrap(sched *Scheduler, id uint64, opts Options, closure func()) *Coroutine {
	opts = opts.normalize()
	c := &Coroutine{
		id:        id,
		name:      opts.Name,
		stackSize: opts.StackSize,
		scheduler: sched,
		closure:   closure,
		resumeCh:  make(chan *Processor),
		doneCh:    make(chan State),
	}
	c.state.Store(int32(StateRunnable))
	go c.trampoline()
	return c
}

// trampoline is the coroutine's dedicated goroutine. It blocks immediately
// on the first resume, runs the user closure exactly once, and then signals
// Finished to whichever processor is resuming it at the time.
func (c *Coroutine) trampoline() {
	gls.Set(c)
	defer gls.Clear()

	p, ok := <-c.resumeCh
	if !ok {
		// Dropped before ever being resumed (shutdown while still
		// queued): the closure never runs.
		return
	}
	c.proc = p

	c.closure()

	c.state.Store(int32(StateFinished))
	c.doneCh <- StateFinished
}

// resume hands control to the coroutine (spec.md §4.1 resume): it sets the
// resuming processor, unblocks the coroutine's goroutine, and waits for it
// to suspend or finish. Only ever called by a Processor from its own
// scheduling loop.
func (c *Coroutine) resume(p *Processor) State {
	c.home.CompareAndSwap(nil, p)
	c.proc = p
	c.state.Store(int32(StateRunning))
	c.resumeCh <- p
	st := <-c.doneCh
	return st
}

// yield is suspend_yield (spec.md §4.1): coroutine-side, called from
// Sched(). Marks Runnable and swaps back to the scheduler context; the
// processor is responsible for re-enqueuing it (it is not done here,
// because the processor must push to its *own* local queue, which this
// coroutine's goroutine has no business touching directly).
func (c *Coroutine) yield() {
	c.state.Store(int32(StateRunnable))
	c.doneCh <- StateRunnable
	p := <-c.resumeCh
	c.proc = p
	c.state.Store(int32(StateRunning))
}

// park is suspend_block (spec.md §4.1): coroutine-side, called from
// Block(). Marks Parked and swaps back; the coroutine is not re-enqueued —
// some external party must call Ready on it exactly once.
//
// Racing against this is the one place a wakeup could otherwise be lost:
// Ready may run concurrently on a foreign thread (the reactor) between
// the moment the coroutine decides to block and the moment this method
// actually marks it Parked. The CompareAndSwap here and the matching one
// in readyTransition make the two sides of that race mutually exclusive:
// whichever of {this park call, a concurrent Ready} flips the state away
// from Running first determines the outcome, and the loser adapts —
// park treats a lost race as an immediate self-wakeup (as if it had
// yielded, not parked) rather than blocking and waiting for a Ready that
// already happened.
func (c *Coroutine) park() {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateParked)) {
		c.state.Store(int32(StateRunnable))
		c.doneCh <- StateRunnable
		p := <-c.resumeCh
		c.proc = p
		c.state.Store(int32(StateRunning))
		return
	}
	c.doneCh <- StateParked
	p := <-c.resumeCh
	c.proc = p
	c.state.Store(int32(StateRunning))
}

// readyTransition resolves the Ready-vs-park race described on park: it
// returns true if it is safe for the caller to push co onto a run queue
// (it observed co already fully Parked), or false if co was still
// Running and the race was instead resolved by nudging it directly to
// stateReadyPending, which park will notice on its own.
func readyTransition(co *Coroutine) bool {
	for {
		switch State(co.state.Load()) {
		case StateParked:
			return true
		case StateRunning:
			if co.state.CompareAndSwap(int32(StateRunning), int32(stateReadyPending)) {
				return false
			}
		default:
			// Runnable, Finished, or already stateReadyPending: either
			// already queued, already done, or already being woken by a
			// concurrent Ready. A second Ready on the same coroutine
			// would violate spec.md's "ready exactly once" contract, so
			// there is nothing further to do here.
			return false
		}
	}
}

// drop discards a coroutine that is still Runnable and sitting in a run
// queue at shutdown (spec.md §4.3, §9): its trampoline goroutine is released
// by closing resumeCh (the `ok` check in trampoline makes this a no-op
// exit), and its JoinHandle's channel is closed.
func (c *Coroutine) drop() {
	close(c.resumeCh)
	if c.onDrop != nil {
		c.onDrop()
	}
}

// current returns the Coroutine driving the calling goroutine, or nil if
// the caller is not inside a coroutine body.
func current() *Coroutine {
	v, ok := gls.Get()
	if !ok {
		return nil
	}
	c, _ := v.(*Coroutine)
	return c
}

// Current returns the coroutine currently executing on the calling
// goroutine, or nil outside of any coroutine body. Exposed so collaborators
// like package netio can park/ready the right coroutine without reaching
// into scheduler internals.
func Current() *Coroutine { return current() }
