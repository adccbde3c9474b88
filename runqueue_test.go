package coro

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoroutine(id uint64) *Coroutine {
	return &Coroutine{id: id}
}

func TestRunQueue_PushPopLIFO(t *testing.T) {
	q := NewRunQueue()
	a, b, c := newTestCoroutine(1), newTestCoroutine(2), newTestCoroutine(3)

	q.Push(a)
	q.Push(b)
	q.Push(c)

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, c, got)

	got, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, b, got)

	got, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestRunQueue_StealFIFO(t *testing.T) {
	q := NewRunQueue()
	a, b, c := newTestCoroutine(1), newTestCoroutine(2), newTestCoroutine(3)
	q.Push(a)
	q.Push(b)
	q.Push(c)

	st := q.Stealer()

	got, ok := st.Steal()
	require.True(t, ok)
	assert.Equal(t, a, got)

	got, ok = st.Steal()
	require.True(t, ok)
	assert.Equal(t, b, got)
}

func TestRunQueue_PopDoesNotDoubleDeliver(t *testing.T) {
	q := NewRunQueue()
	const n = 2000
	for i := uint64(0); i < n; i++ {
		q.Push(newTestCoroutine(i))
	}

	seen := make(map[uint64]bool, n)
	for {
		c, ok := q.Pop()
		if !ok {
			break
		}
		require.False(t, seen[c.id], "coroutine %d delivered twice", c.id)
		seen[c.id] = true
	}
	assert.Len(t, seen, n)
}

func TestRunQueue_GrowsBeyondInitialCapacity(t *testing.T) {
	q := NewRunQueue()
	const n = minDequeCap * 4
	for i := uint64(0); i < n; i++ {
		q.Push(newTestCoroutine(i))
	}

	count := 0
	for {
		_, ok := q.Pop()
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, n, count)
}

func TestRunQueue_DrainAll(t *testing.T) {
	q := NewRunQueue()
	for i := uint64(0); i < 10; i++ {
		q.Push(newTestCoroutine(i))
	}
	all := q.DrainAll()
	assert.Len(t, all, 10)

	_, ok := q.Pop()
	assert.False(t, ok)
	_, ok = q.Steal()
	assert.False(t, ok)
}

func TestRunQueue_StealConcurrentWithOwnerPop(t *testing.T) {
	q := NewRunQueue()
	const n = 5000
	for i := uint64(0); i < n; i++ {
		q.Push(newTestCoroutine(i))
	}

	var mu chanCollector

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, ok := q.Steal()
			if !ok {
				return
			}
			mu.add(c.id)
		}
	}()

	for {
		c, ok := q.Pop()
		if !ok {
			break
		}
		mu.add(c.id)
	}
	<-done

	assert.Len(t, mu.ids, n)
	assert.Equal(t, n, mu.unique())
}

// chanCollector accumulates coroutine IDs delivered from concurrent
// Pop/Steal calls under a mutex, to check exactly-once delivery.
type chanCollector struct {
	mu  sync.Mutex
	ids []uint64
}

func (c *chanCollector) add(id uint64) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
}

func (c *chanCollector) unique() int {
	seen := make(map[uint64]bool, len(c.ids))
	for _, id := range c.ids {
		seen[id] = true
	}
	return len(seen)
}
