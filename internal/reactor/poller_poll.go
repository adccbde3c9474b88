//go:build !linux && !windows

package reactor

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	errFDAlreadyRegistered = errors.New("reactor: fd already registered")
	errFDNotRegistered     = errors.New("reactor: fd not registered")
)

type fdEntry struct {
	fd     int
	events Events
	cb     Callback
}

// pollPoller is a poll(2)-backed fallback for Unix platforms without an
// epoll backend, grounded on the same teacher pack's poller layering
// (one backend per platform behind a shared interface) but built around
// unix.Poll instead of kqueue, since no kqueue reference source was
// retrieved into this pack.
type pollPoller struct {
	mu      sync.Mutex
	entries map[int]*fdEntry
	closed  bool
}

func newPoller() (poller, error) {
	return &pollPoller{entries: make(map[int]*fdEntry)}, nil
}

func eventsToPoll(ev Events) int16 {
	var e int16
	if ev&Read != 0 {
		e |= unix.POLLIN
	}
	if ev&Write != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func pollToEvents(e int16) Events {
	var ev Events
	if e&unix.POLLIN != 0 {
		ev |= Read
	}
	if e&unix.POLLOUT != 0 {
		ev |= Write
	}
	if e&unix.POLLERR != 0 {
		ev |= Err
	}
	if e&(unix.POLLHUP|unix.POLLNVAL) != 0 {
		ev |= Hangup
	}
	return ev
}

func (p *pollPoller) register(fd int, ev Events, cb Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.entries[fd]; ok {
		return errFDAlreadyRegistered
	}
	p.entries[fd] = &fdEntry{fd: fd, events: ev, cb: cb}
	return nil
}

func (p *pollPoller) modify(fd int, ev Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[fd]
	if !ok {
		return errFDNotRegistered
	}
	e.events = ev
	return nil
}

func (p *pollPoller) unregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[fd]; !ok {
		return errFDNotRegistered
	}
	delete(p.entries, fd)
	return nil
}

func (p *pollPoller) poll(timeoutMs int) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	fds := make([]unix.PollFd, 0, len(p.entries))
	order := make([]*fdEntry, 0, len(p.entries))
	for _, e := range p.entries {
		fds = append(fds, unix.PollFd{Fd: int32(e.fd), Events: eventsToPoll(e.events)})
		order = append(order, e)
	}
	p.mu.Unlock()

	if len(fds) == 0 {
		if timeoutMs > 0 {
			// Nothing registered: behave like a timed sleep rather than a
			// busy-spin, matching the semantics of a real poll(2) call
			// with no descriptors.
			_, _ = unix.Poll(nil, timeoutMs)
		}
		return 0, nil
	}

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	dispatched := 0
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		entry := order[i]
		if entry.cb != nil {
			entry.cb(pollToEvents(pfd.Revents))
		}
		dispatched++
	}
	return dispatched, nil
}

func (p *pollPoller) close() error {
	p.mu.Lock()
	p.closed = true
	p.entries = nil
	p.mu.Unlock()
	return nil
}
