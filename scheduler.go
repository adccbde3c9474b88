package coro

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/pssalmeida/coio/internal/reactor"
)

// Scheduler is the process-wide coordinator (spec.md §2, §4.4): it holds
// the processor table, the global work counter, and the starvation
// condition variable, and exposes Spawn/Run/Sched/Block through the
// package-level functions that operate on "the current" scheduler/
// processor/coroutine.
type Scheduler struct {
	workerCount int

	tableMu    sync.Mutex // processor table: leaf lock, append-only during Run
	processors []*Processor

	awakeMu   sync.Mutex // starving lock: leaf lock, never held across a resume
	awakeCond *sync.Cond
	awake     int

	workCount atomic.Int64
	nextCoro  atomic.Uint64

	reactor      *reactor.Reactor
	reactorStop  chan struct{}
	reactorGroup sync.WaitGroup

	wg      sync.WaitGroup
	started atomic.Bool
}

// New creates a Scheduler configured for a single worker, matching spec.md
// §4.4 (Scheduler::new() -> Scheduler with worker count 1).
func New() *Scheduler {
	// Respect container CPU quotas before any GOMAXPROCS-derived default is
	// read, the same way go.uber.org/automaxprocs is meant to be invoked
	// once near process start.
	if _, err := maxprocs.Set(); err != nil {
		log().Warning().Err(err).Log("automaxprocs: failed to adjust GOMAXPROCS")
	}
	return &Scheduler{workerCount: 1}
}

// WithWorkers sets the number of worker processors. n must be >= 1; a
// violation is a configuration error, reported synchronously by panicking
// at the call site (spec.md §7: "Configuration error ... fatal at
// configuration, reported synchronously to the caller").
func (s *Scheduler) WithWorkers(n int) *Scheduler {
	if n < 1 {
		panic("coro: WithWorkers: n must be >= 1")
	}
	s.workerCount = n
	return s
}

// DefaultWorkers returns runtime.GOMAXPROCS(0), a CPU-aware default worker
// count for callers that want WithWorkers(coro.DefaultWorkers()).
func DefaultWorkers() int { return runtime.GOMAXPROCS(0) }

// WorkCount returns the number of live (spawned - finished) coroutines.
// Observability only; never used for shutdown (spec.md §3, §9).
func (s *Scheduler) WorkCount() int64 { return s.workCount.Load() }

// Workers returns the configured worker count.
func (s *Scheduler) Workers() int { return s.workerCount }

func (s *Scheduler) nextCoroutineID() uint64 { return s.nextCoro.Add(1) - 1 }

// notifyOnPush wakes one parked processor. Called after a spawn, after a
// yield re-enqueues a coroutine, and after Ready pushes onto the caller's
// local queue (Ready's foreign-thread branch uses notifyAll instead) — spec.md
// §9's open question recommends notifying on every push that makes a
// previously-empty queue non-empty, not spawn alone; this implementation
// takes that recommendation rather than notifying on spawn only, since an
// unconditional notify_one on every push is simpler to get right than
// tracking each queue's empty/non-empty transition and costs only a
// redundant wakeup in the case a queue was already non-empty.
func (s *Scheduler) notifyOnPush() {
	s.awakeMu.Lock()
	s.awakeCond.Signal()
	s.awakeMu.Unlock()
}

func (s *Scheduler) notifyAll() {
	s.awakeMu.Lock()
	s.awakeCond.Broadcast()
	s.awakeMu.Unlock()
}

// procWait parks the calling processor until woken (spec.md §4.4): it
// decrements the awake counter, waits on the starving condvar (which
// atomically releases awakeMu for the duration), and increments the
// counter again on wake. Holds no other lock while waiting.
func (s *Scheduler) procWait() {
	s.awakeMu.Lock()
	s.awake--
	s.awakeCond.Wait()
	s.awake++
	s.awakeMu.Unlock()
}

// Run starts the scheduler (spec.md §4.4): it spawns mainFn as the first
// ("main") coroutine on worker 0, starts the remaining workers (each
// learning about every earlier worker as a neighbor before it begins its
// own loop), blocks until the main coroutine finishes, then shuts every
// worker down and returns the main coroutine's result.
//
// Run is a package-level generic function, not a method, because Go methods
// cannot carry their own type parameters; spec.md's
// Scheduler::run(main_fn) -> Result<R, PanicPayload> is expressed this way
// throughout this package (see also Spawn, SpawnOpts).
func Run[T any](s *Scheduler, mainFn func() T) (T, error) {
	if !s.started.CompareAndSwap(false, true) {
		panic("coro: Run: scheduler already run")
	}

	s.awakeCond = sync.NewCond(&s.awakeMu)

	r, err := reactor.New()
	if err != nil {
		log().Err().Err(err).Log("reactor: failed to initialize, I/O waits will not complete")
	}
	s.reactor = r
	s.reactorStop = make(chan struct{})
	if s.reactor != nil {
		s.reactorGroup.Add(1)
		go func() {
			defer s.reactorGroup.Done()
			s.reactor.Run(s.reactorStop)
		}()
	}

	log().Notice().Int("workers", s.workerCount).Log("scheduler starting")

	p0 := newProcessor(s, 0)
	handle := spawnOn(p0, mainFn, DefaultOptions())
	s.tableMu.Lock()
	s.processors = append(s.processors, p0)
	s.tableMu.Unlock()

	s.awakeMu.Lock()
	s.awake = 1
	s.awakeMu.Unlock()
	s.wg.Add(1)
	go p0.loop()

	for i := 1; i < s.workerCount; i++ {
		pi := newProcessor(s, i)

		s.tableMu.Lock()
		for _, existing := range s.processors {
			pi.addNeighbor(existing.Stealer())
			existing.sendMessage(msgNewNeighbor{stealer: pi.Stealer()})
		}
		s.processors = append(s.processors, pi)
		s.tableMu.Unlock()

		s.awakeMu.Lock()
		s.awake++
		s.awakeMu.Unlock()
		s.wg.Add(1)
		go pi.loop()
	}

	val, joinErr := handle.Join()

	s.tableMu.Lock()
	snapshot := append([]*Processor(nil), s.processors...)
	s.tableMu.Unlock()
	for _, p := range snapshot {
		p.sendMessage(msgShutdown{})
	}
	s.notifyAll()
	s.wg.Wait()

	if s.reactor != nil {
		close(s.reactorStop)
		s.reactorGroup.Wait()
		_ = s.reactor.Close()
	}

	return val, joinErr
}

// Spawn creates a new coroutine running f on the current processor (spec.md
// §4.4), returning a JoinHandle that will carry its result or panic
// payload. Must be called from inside a coroutine body; see SpawnOpts.
func Spawn[T any](f func() T) *JoinHandle[T] {
	return SpawnOpts(f, DefaultOptions())
}

// SpawnOpts is Spawn with explicit Options (spec.md §4.4: spawn_opts).
func SpawnOpts[T any](f func() T, opts Options) *JoinHandle[T] {
	c := current()
	if c == nil || c.proc == nil {
		panic("coro: SpawnOpts: " + ErrNotOnProcessor.Error())
	}
	return spawnOn(c.proc, f, opts)
}

// spawnOn is the shared implementation behind SpawnOpts and Run's main
// coroutine: it increments the work counter, installs the panic-catching,
// result-sending trampoline body, pushes the new coroutine onto p's queue,
// and notifies one parked processor — after the push, never before
// (spec.md §4.4 invariant 1: "push precedes notify").
func spawnOn[T any](p *Processor, f func() T, opts Options) *JoinHandle[T] {
	s := p.sched
	s.workCount.Add(1)

	handle := newJoinHandle[T]()

	id := s.nextCoroutineID()
	var co *Coroutine
	co = bootstrap(s, id, opts, func() {
		defer func() {
			if r := recover(); r != nil {
				log().Err().Uint64("coroutine", id).Str("name", opts.Name).Any("panic", r).
					Log("coroutine panicked, captured for its join handle")
				handle.deliver(outcome[T]{panic: &PanicPayload{Value: r, Stack: debug.Stack()}})
				return
			}
		}()
		v := f()
		handle.deliver(outcome[T]{value: v})
	})
	co.onDrop = func() { handle.deliverClosed() }

	p.queue.Push(co)
	s.notifyOnPush()
	return handle
}

// Sched is the coroutine-side cooperative yield (spec.md §4.4): it
// suspends the calling coroutine, pushing it back onto its processor's
// local queue, and returns once some processor resumes it again.
func Sched() {
	c := current()
	if c == nil {
		panic("coro: Sched: " + ErrNotOnProcessor.Error())
	}
	c.yield()
}

// Block is the coroutine-side blocking suspension (spec.md §4.4): it
// suspends the calling coroutine without re-enqueuing it, and returns only
// after some external actor calls Ready on it exactly once.
func Block() {
	c := current()
	if c == nil {
		panic("coro: Block: " + ErrNotOnProcessor.Error())
	}
	c.park()
}

// CurrentReactor returns the reactor belonging to the calling coroutine's
// scheduler, for use by I/O packages (package netio) that need to
// register a file descriptor from inside a coroutine body. Returns nil
// if the platform has no reactor backend (spec.md §9: Windows is
// unsupported) or if called outside a coroutine.
func CurrentReactor() *reactor.Reactor {
	c := current()
	if c == nil || c.scheduler == nil {
		return nil
	}
	return c.scheduler.reactor
}

// Ready re-readies a parked coroutine (spec.md §4.4). Called from a
// processor thread (i.e. from inside another coroutine's body), it pushes
// locally; called from a foreign thread (e.g. the reactor), it routes the
// coroutine to its home processor via ExternalReady, or round-robins if it
// has none yet.
func Ready(co *Coroutine) {
	if co == nil {
		return
	}
	if !readyTransition(co) {
		// Raced ahead of co's own call to park(); co will notice on its
		// own and come straight back as Runnable, no push needed here.
		return
	}
	if caller := current(); caller != nil && caller.proc != nil {
		caller.proc.queue.Push(co)
		caller.proc.sched.notifyOnPush()
		return
	}

	s := co.scheduler
	if s == nil {
		fatal("Ready: coroutine %s has no scheduler", co)
	}
	home := co.Home()
	s.tableMu.Lock()
	target := home
	if target == nil && len(s.processors) > 0 {
		target = s.processors[int(co.id)%len(s.processors)]
	}
	s.tableMu.Unlock()
	if target == nil {
		fatal("Ready: coroutine %s has no processor to route to", co)
	}
	target.sendMessage(msgExternalReady{co: co})
	// The push happens only when target drains its inbox, so target itself
	// must wake; a single Signal could wake a different parked processor,
	// which would find nothing to run.
	s.notifyAll()
}
