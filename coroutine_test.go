package coro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoroutine_StateString(t *testing.T) {
	assert.Equal(t, "runnable", StateRunnable.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "parked", StateParked.String())
	assert.Equal(t, "finished", StateFinished.String())
}

// TestCoroutine_ResumeYieldResume exercises the raw resume/yield
// handshake directly, without a Processor or Scheduler in the loop, to
// pin down the context-switch contract spec.md §4.1 describes.
func TestCoroutine_ResumeYieldResume(t *testing.T) {
	ran := 0
	c := bootstrap(nil, 0, DefaultOptions(), func() {
		ran++
		Sched() // yields once
		ran++
	})

	var fakeProc Processor
	st := c.resume(&fakeProc)
	assert.Equal(t, StateRunnable, st)
	assert.Equal(t, 1, ran)

	st = c.resume(&fakeProc)
	assert.Equal(t, StateFinished, st)
	assert.Equal(t, 2, ran)
}

func TestCoroutine_ParkRequiresExternalReady(t *testing.T) {
	var fakeProc Processor
	c := bootstrap(nil, 0, DefaultOptions(), func() {
		Block()
	})

	st := c.resume(&fakeProc)
	assert.Equal(t, StateParked, st)

	// Nothing re-enqueued it; only an explicit second resume (standing in
	// for an external Ready) moves it forward again.
	st = c.resume(&fakeProc)
	assert.Equal(t, StateFinished, st)
}

func TestCoroutine_DropBeforeFirstResumeClosesJoinChannel(t *testing.T) {
	dropped := make(chan struct{})
	c := bootstrap(nil, 0, DefaultOptions(), func() {
		t.Fatal("closure must never run on a dropped, never-resumed coroutine")
	})
	c.onDrop = func() { close(dropped) }

	c.drop()

	select {
	case <-dropped:
	default:
		t.Fatal("onDrop was not invoked")
	}
}

func TestCurrent_OutsideCoroutineIsNil(t *testing.T) {
	require.Nil(t, current())
	assert.Nil(t, Current())
}
