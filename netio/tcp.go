package netio

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/pssalmeida/coio"
	"github.com/pssalmeida/coio/internal/reactor"
)

// waitFor registers fd for ev on the calling coroutine's reactor and
// blocks it until the reactor observes readiness, at which point it
// readies the parked coroutine from the reactor's own goroutine (a
// foreign thread relative to the scheduler, which is exactly what
// coro.Ready's routing-by-Home-processor path exists for).
//
// Returns an error only if called from outside a coroutine, on a
// platform with no reactor backend (spec.md §9: Windows), or if the
// reactor refuses to register fd.
func waitFor(fd int, ev reactor.Events) error {
	r := coro.CurrentReactor()
	if r == nil {
		return fmt.Errorf("netio: no reactor available (called outside a coroutine, or unsupported platform)")
	}
	co := coro.Current()
	if co == nil {
		return fmt.Errorf("netio: %w", coro.ErrNotOnProcessor)
	}

	var once sync.Once
	done := make(chan struct{})
	if err := r.Register(fd, ev, func(reactor.Events) {
		once.Do(func() {
			_ = r.Unregister(fd)
			close(done)
			coro.Ready(co)
		})
	}); err != nil {
		return err
	}

	coro.Block()
	<-done // already closed by the time Block returns; avoids a lost-callback race on spurious wakeups
	return nil
}

func setNonblockCloexec(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	unix.CloseOnExec(fd)
	return nil
}

func resolveSockaddr(address string) (unix.Sockaddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}
	ip4 := addr.IP.To4()
	if ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = addr.Port
		copy(sa.Addr[:], ip4)
		return &sa, nil
	}
	ip16 := addr.IP.To16()
	if ip16 == nil {
		return nil, fmt.Errorf("netio: unresolvable address %q", address)
	}
	var sa unix.SockaddrInet6
	sa.Port = addr.Port
	copy(sa.Addr[:], ip16)
	return &sa, nil
}

func sockaddrToString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("[%s]:%d", ip.String(), a.Port)
	default:
		return "?"
	}
}

// TCPListener is a non-blocking, reactor-backed TCP listening socket.
type TCPListener struct {
	fd int
}

// ListenTCP binds and listens on address (host:port), mirroring
// coio-rs's TcpListener::bind.
func ListenTCP(address string) (*TCPListener, error) {
	sa, err := resolveSockaddr(address)
	if err != nil {
		return nil, err
	}

	domain := unix.AF_INET
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := setNonblockCloexec(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &TCPListener{fd: fd}, nil
}

// Accept blocks the calling coroutine until a connection arrives, then
// returns it. Must be called from inside a coroutine running under a
// coro.Scheduler.
func (l *TCPListener) Accept() (*TCPConn, error) {
	for {
		nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == nil {
			return &TCPConn{fd: nfd}, nil
		}
		switch err {
		case unix.EAGAIN:
			if err := waitFor(l.fd, reactor.Read); err != nil {
				return nil, err
			}
		case unix.ECONNABORTED, unix.EINTR, unix.EMFILE, unix.ENFILE:
			// Transient: the connecting peer reset before we accepted it,
			// or we're briefly out of descriptors. Retry rather than fail
			// the whole listener over one bad connection attempt.
			if logThrottled("accept_retry") {
				log().Warning().Str("component", "netio").Err(err).
					Log("accept loop retrying after transient error")
			}
		default:
			return nil, err
		}
	}
}

// Close stops accepting and releases the listening socket.
func (l *TCPListener) Close() error {
	return unix.Close(l.fd)
}

// TCPConn is a non-blocking, reactor-backed TCP connection.
type TCPConn struct {
	fd int
}

// DialTCP connects to address, blocking the calling coroutine until the
// connection completes, mirroring coio-rs's TcpStream::connect.
func DialTCP(address string) (*TCPConn, error) {
	sa, err := resolveSockaddr(address)
	if err != nil {
		return nil, err
	}
	domain := unix.AF_INET
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := setNonblockCloexec(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	err = unix.Connect(fd, sa)
	if err == nil {
		return &TCPConn{fd: fd}, nil
	}
	if err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, err
	}

	if err := waitFor(fd, reactor.Write); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if errno, serr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); serr == nil && errno != 0 {
		_ = unix.Close(fd)
		return nil, unix.Errno(uintptr(errno))
	}
	return &TCPConn{fd: fd}, nil
}

// Read blocks the calling coroutine until at least one byte is
// available (or EOF, or an error). Like read(2), it reports EOF as
// (0, nil), not as io.EOF.
func (c *TCPConn) Read(buf []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, buf)
		if err == nil {
			return n, nil
		}
		if err != unix.EAGAIN {
			return 0, err
		}
		if err := waitFor(c.fd, reactor.Read); err != nil {
			return 0, err
		}
	}
}

// Write blocks the calling coroutine until all of buf has been written,
// matching io.Writer's all-or-error contract.
func (c *TCPConn) Write(buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := unix.Write(c.fd, buf[written:])
		if err != nil {
			if err == unix.EAGAIN {
				if werr := waitFor(c.fd, reactor.Write); werr != nil {
					return written, werr
				}
				continue
			}
			return written, err
		}
		written += n
	}
	return written, nil
}

// Close releases the connection's underlying socket.
func (c *TCPConn) Close() error {
	return unix.Close(c.fd)
}
