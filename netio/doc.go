// Package netio implements non-blocking TCP sockets on top of package
// coro and its reactor, the kind of concrete socket type spec.md §6
// scopes as a *user* of the scheduler and reactor rather than part of
// their core: every blocking call here is really
//
//	attempt the syscall
//	on EAGAIN, register interest with the reactor and coro.Block()
//	the reactor callback calls coro.Ready() on the parked coroutine
//	retry the syscall
//
// which is the same non-blocking-plus-reactor pattern the original
// coio-rs net module layers over its scheduler (see
// tests/echo.rs in the pre-port sources for the TcpListener/TcpStream
// API this package's TCPListener/TCPConn mirror).
package netio
