//go:build linux

package reactor

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxFDs bounds direct-indexed fd lookup, grounded on the teacher pack's
// eventloop.FastPoller (poller_linux.go).
const maxFDs = 65536

var (
	errFDOutOfRange        = errors.New("reactor: fd out of range")
	errFDAlreadyRegistered = errors.New("reactor: fd already registered")
	errFDNotRegistered     = errors.New("reactor: fd not registered")
)

type fdSlot struct {
	cb     Callback
	events Events
	active bool
}

// epollEventBufSize bounds each poll() call's local event buffer.
const epollEventBufSize = 256

// epollPoller is an epoll(7)-backed poller, grounded on
// eventloop.FastPoller's Init/RegisterFD/PollIO shape: direct fd-indexed
// slot table guarded by an RWMutex, inline callback dispatch outside the
// lock, EINTR tolerated as a zero-event poll.
//
// Unlike eventloop.FastPoller, this poller is driven from two concurrent
// callers (scheduler.go's dedicated Reactor.Run goroutine and every idle
// Processor's opportunistic zero-timeout poll, see the Deviation note in
// DESIGN.md) — eventloop only ever has one. A struct-level event buffer
// shared across calls would hand the kernel two concurrent EpollWait
// writers into the same backing array; poll() therefore uses a fresh,
// call-local buffer each time, the same way poller_poll.go's fallback
// already builds its fds/order slices per call.
type epollPoller struct {
	epfd int

	mu     sync.RWMutex
	slots  [maxFDs]fdSlot
	closed atomic.Bool
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd}, nil
}

func eventsToEpoll(ev Events) uint32 {
	var e uint32
	if ev&Read != 0 {
		e |= unix.EPOLLIN
	}
	if ev&Write != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) Events {
	var ev Events
	if e&unix.EPOLLIN != 0 {
		ev |= Read
	}
	if e&unix.EPOLLOUT != 0 {
		ev |= Write
	}
	if e&unix.EPOLLERR != 0 {
		ev |= Err
	}
	if e&unix.EPOLLHUP != 0 {
		ev |= Hangup
	}
	return ev
}

func (p *epollPoller) register(fd int, ev Events, cb Callback) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}

	p.mu.Lock()
	if p.slots[fd].active {
		p.mu.Unlock()
		return errFDAlreadyRegistered
	}
	p.slots[fd] = fdSlot{cb: cb, events: ev, active: true}
	p.mu.Unlock()

	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(ev),
		Fd:     int32(fd),
	})
	if err != nil {
		p.mu.Lock()
		p.slots[fd] = fdSlot{}
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *epollPoller) modify(fd int, ev Events) error {
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}
	p.mu.Lock()
	if !p.slots[fd].active {
		p.mu.Unlock()
		return errFDNotRegistered
	}
	p.slots[fd].events = ev
	p.mu.Unlock()

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(ev),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) unregister(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}
	p.mu.Lock()
	if !p.slots[fd].active {
		p.mu.Unlock()
		return errFDNotRegistered
	}
	p.slots[fd] = fdSlot{}
	p.mu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) poll(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	var eventBuf [epollEventBufSize]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	dispatched := 0
	for i := 0; i < n; i++ {
		fd := int(eventBuf[i].Fd)
		if fd < 0 || fd >= maxFDs {
			continue
		}
		p.mu.RLock()
		slot := p.slots[fd]
		p.mu.RUnlock()
		if slot.active && slot.cb != nil {
			slot.cb(epollToEvents(eventBuf[i].Events))
			dispatched++
		}
	}
	return dispatched, nil
}

func (p *epollPoller) close() error {
	p.closed.Store(true)
	return unix.Close(p.epfd)
}
