// Command coiodemo is a small, runnable walkthrough of package coro: a
// few coroutines doing staggered work across two processors, one of
// which blocks partway through and is resumed by an explicit external
// Ready call — the same scenario the project's early toy schedulers
// used to demonstrate park/resume by hand, now exercising the real
// work-stealing scheduler instead of a single-file stand-in for one.
package main

import (
	"fmt"
	"time"

	"github.com/pssalmeida/coio"
)

func work(name string, steps int) {
	fmt.Printf("  %s doing some work...\n", name)
	for i := 0; i < steps; i++ {
		time.Sleep(50 * time.Millisecond)
		fmt.Printf("    %s: step %d\n", name, i+1)
		coro.Sched()
	}
}

func main() {
	fmt.Println("=== coiodemo: scheduler walkthrough ===")

	s := coro.New().WithWorkers(2)

	_, err := coro.Run(s, func() int {
		g0 := coro.Spawn(func() string {
			work("G0", 3)
			return "G0 done"
		})
		g1 := coro.Spawn(func() string {
			work("G1", 3)
			return "G1 done"
		})

		var blocked *coro.Coroutine
		ready := make(chan struct{})
		g2 := coro.Spawn(func() string {
			work("G2", 3)
			fmt.Println("  G2: entering block (syscall sim)...")
			blocked = coro.Current()
			close(ready)
			coro.Block()
			fmt.Println("  G2: resumed after unblock")
			return "G2 done"
		})

		go func() {
			<-ready
			time.Sleep(150 * time.Millisecond)
			fmt.Println("main: signaling unblock for G2")
			coro.Ready(blocked)
		}()

		for _, h := range []*coro.JoinHandle[string]{g0, g1, g2} {
			v, joinErr := h.Join()
			if joinErr != nil {
				fmt.Println("coroutine error:", joinErr)
				continue
			}
			fmt.Println(v)
		}

		return 0
	})
	if err != nil {
		fmt.Println("scheduler error:", err)
	}

	fmt.Println("=== Schedule Complete ===")
}
