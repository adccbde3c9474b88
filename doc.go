// Package coro implements an M:N coroutine scheduler: an arbitrary number of
// lightweight, stackful coroutines multiplexed onto a fixed pool of OS
// threads ("processors") via work stealing.
//
// Coroutines are spawned with Spawn/SpawnOpts, may suspend cooperatively
// with Sched, block on an external event with Block, and are revived with
// Ready. A *JoinHandle recovers a spawned coroutine's result, or its panic
// payload, for the spawner. Nothing here preempts a running coroutine:
// scheduling is strictly cooperative, and a coroutine only yields control at
// Sched, Block, or an I/O call that internally uses them (see package
// netio).
//
//	sched := coro.New().WithWorkers(4)
//	result, err := coro.Run(sched, func() int {
//		h := coro.Spawn(func() int { return 1 })
//		v, _ := h.Join()
//		return v
//	})
package coro
