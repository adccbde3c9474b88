package coro

import (
	"errors"
	"fmt"
)

// ErrSchedulerShutdown is returned by JoinHandle.Join when the coroutine was
// still sitting in a run queue, never having executed, at the moment the
// scheduler shut down (spec.md §9: "this spec prescribes drop and close join
// channels").
var ErrSchedulerShutdown = errors.New("coro: scheduler shut down before coroutine ran")

// ErrNotOnProcessor reports a call made from a goroutine that is not
// currently driving a coroutine for some Scheduler. Spawn, SpawnOpts, Sched
// and Block panic in that case with a string carrying this error's message;
// package netio returns it wrapped. Per spec.md §9 ("Global
// state"): calls from outside a scheduler thread must fail loudly rather
// than silently doing nothing.
var ErrNotOnProcessor = errors.New("coro: called from outside a scheduler-managed coroutine")

// PanicPayload carries a captured coroutine panic through its JoinHandle.
// It implements error so it can be returned directly from Join and from
// Run.
type PanicPayload struct {
	// Value is whatever was passed to panic() inside the coroutine body.
	Value any
	// Stack is the stack trace captured at the point of the panic.
	Stack []byte
}

func (p *PanicPayload) Error() string {
	return fmt.Sprintf("coro: coroutine panicked: %v", p.Value)
}

// fatal reports an internal invariant violation: per spec.md §7 these are
// "unreachable in a correct implementation", so the policy is to log and
// then abort the offending goroutine via panic rather than attempt to
// degrade gracefully.
func fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log().Emerg().Str("component", "coro").Log(msg)
	panic("coro: internal invariant violation: " + msg)
}
