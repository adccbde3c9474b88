package coro

import "sync"

// message is a control message delivered through a Processor's inbox
// (spec.md §4.3).
type message interface{ isMessage() }

type msgNewNeighbor struct{ stealer Stealer }
type msgShutdown struct{}
type msgExternalReady struct{ co *Coroutine }

func (msgNewNeighbor) isMessage()   {}
func (msgShutdown) isMessage()      {}
func (msgExternalReady) isMessage() {}

// inboxCapacity sizes the per-processor message channel's fast path; a
// full channel falls back to the mutex-guarded overflow list below rather
// than dropping (spec.md §7's "logged at error level; not fatal" drop
// policy is reserved for messages that genuinely cannot be delivered —
// sent to a processor that has already exited its loop — not for
// ordinary backpressure, since a dropped msgExternalReady is a lost
// wakeup, spec.md §8 invariant 6).
const inboxCapacity = 64

// Processor owns one OS thread (realized here as one long-lived goroutine),
// one RunQueue, a list of neighbor Stealers, and a message inbox, and runs
// the scheduling loop (spec.md §2, §4.3).
type Processor struct {
	id    int
	sched *Scheduler
	queue *RunQueue
	inbox chan message

	// inboxOverflow holds messages that didn't fit in inbox's buffered
	// channel, the same overflow-list fallback spec.md §4.2 sanctions for
	// a full RunQueue (runqueue.go's overflow). Like that list, it grows
	// rather than drops: a dropped control message can be the one
	// ExternalReady a parked coroutine's JoinHandle will ever see.
	inboxOverflowMu sync.Mutex
	inboxOverflow   []message

	// neighbors and cursor are touched only by this processor's own loop
	// goroutine (steals happen through a Stealer into *other* processors'
	// queues; NewNeighbor messages are drained on this same goroutine), so
	// neither needs a lock.
	neighbors []Stealer
	cursor    int

	shutdownFlag bool
	current      *Coroutine
}

func newProcessor(sched *Scheduler, id int) *Processor {
	return &Processor{
		id:    id,
		sched: sched,
		queue: NewRunQueue(),
		inbox: make(chan message, inboxCapacity),
	}
}

// ID returns the processor's index within its scheduler.
func (p *Processor) ID() int { return p.id }

// Stealer returns this processor's foreign-safe run-queue stealer.
func (p *Processor) Stealer() Stealer { return p.queue.Stealer() }

// addNeighbor appends a neighbor's stealer (spec.md §4.3, NewNeighbor).
func (p *Processor) addNeighbor(s Stealer) { p.neighbors = append(p.neighbors, s) }

// sendMessage delivers msg to this processor's inbox without blocking the
// sender. A full channel spills to inboxOverflow instead of dropping —
// backpressure, not loss; drainMessages empties both. Once a processor
// has actually exited loop, nothing drains its inbox or overflow again
// (they are simply never read), which is spec.md §7's "inbox send
// failure during shutdown" case in practice: the message is accepted but
// never acted on, which is indistinguishable in effect from a drop, and
// is harmless because the processor is already gone.
func (p *Processor) sendMessage(msg message) {
	select {
	case p.inbox <- msg:
		return
	default:
	}
	p.inboxOverflowMu.Lock()
	p.inboxOverflow = append(p.inboxOverflow, msg)
	p.inboxOverflowMu.Unlock()
	if logThrottled("inbox_overflow") {
		log().Warning().Str("component", "processor").Int("processor", p.id).
			Log("inbox full, spilling message to overflow list")
	}
}

// drainMessages processes every message currently queued, non-blocking
// (spec.md §4.3: "drain_messages() # non-blocking"). It drains the
// channel first, then the overflow list, so messages are handled in
// roughly FIFO order even when the channel briefly saturates.
func (p *Processor) drainMessages() {
	for {
		select {
		case msg := <-p.inbox:
			p.handleMessage(msg)
			continue
		default:
		}

		p.inboxOverflowMu.Lock()
		if len(p.inboxOverflow) == 0 {
			p.inboxOverflowMu.Unlock()
			return
		}
		msg := p.inboxOverflow[0]
		p.inboxOverflow[0] = nil
		p.inboxOverflow = p.inboxOverflow[1:]
		p.inboxOverflowMu.Unlock()

		p.handleMessage(msg)
	}
}

func (p *Processor) handleMessage(msg message) {
	switch m := msg.(type) {
	case msgNewNeighbor:
		p.addNeighbor(m.stealer)
	case msgShutdown:
		p.shutdownFlag = true
	case msgExternalReady:
		p.queue.Push(m.co)
	}
}

// loop is the processor's scheduling loop (spec.md §4.3):
//
//	loop:
//	  drain_messages()
//	  if shutdown_flag: break
//	  if c := local_queue.pop(): run(c); continue
//	  for v in rotate(neighbors): if c := v.steal(): run(c); continue
//	  if reactor.poll(timeout=0): continue
//	  scheduler.proc_wait()
func (p *Processor) loop() {
	defer p.sched.wg.Done()
	for {
		p.drainMessages()
		if p.shutdownFlag {
			p.shutdown()
			return
		}

		if c, ok := p.queue.Pop(); ok {
			p.run(c)
			continue
		}

		if c, ok := p.steal(); ok {
			p.run(c)
			continue
		}

		if p.sched.reactor != nil {
			if n, err := p.sched.reactor.Poll(0); err == nil && n > 0 {
				continue
			}
		}

		if logThrottled("processor_parked") {
			log().Debug().Int("processor", p.id).Log("no local or stealable work, parking")
		}
		p.sched.procWait()
	}
}

// steal tries each neighbor once, starting at the rotating cursor, and
// advances the cursor on a full miss (spec.md §4.3: "Neighbor rotation
// starts from a per-processor cursor advanced on each empty-steal to
// reduce hot spots").
func (p *Processor) steal() (*Coroutine, bool) {
	n := len(p.neighbors)
	if n == 0 {
		return nil, false
	}
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if c, ok := p.neighbors[idx].Steal(); ok {
			return c, true
		}
	}
	p.cursor = (p.cursor + 1) % n
	if logThrottled("steal_miss") {
		log().Debug().Int("processor", p.id).Int("neighbors", n).
			Log("steal miss against every neighbor")
	}
	return nil, false
}

// run resumes c, and on return routes it according to the state it left in
// (spec.md §4.3: run(c) ... reads c.state).
func (p *Processor) run(c *Coroutine) {
	p.current = c
	st := c.resume(p)
	p.current = nil

	switch st {
	case StateRunnable:
		// Yielded: push to the hot end of the local queue, preserving
		// cache locality and approximating cooperative FIFO for
		// I/O-bound workloads (spec.md §4.3).
		p.queue.Push(c)
		p.sched.notifyOnPush()
	case StateParked:
		// Owned elsewhere now (reactor, channel, mutex); nothing to do.
	case StateFinished:
		p.sched.workCount.Add(-1)
	default:
		fatal("processor %d: coroutine %s left run() in unexpected state %s", p.id, c, st)
	}
}

// shutdown drains the local queue, dropping every coroutine still sitting
// in it (spec.md §4.3: "coroutines remaining in the queue at shutdown are
// dropped; their join handles observe a closed channel").
func (p *Processor) shutdown() {
	dropped := p.queue.DrainAll()
	log().Notice().Int("processor", p.id).Int("dropped", len(dropped)).
		Log("processor shutting down")
	for _, c := range dropped {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log().Err().Str("component", "processor").Any("panic", r).
						Log("panic while dropping coroutine at shutdown")
				}
			}()
			c.drop()
		}()
	}
}
