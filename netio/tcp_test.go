package netio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pssalmeida/coio"
)

// TestTCPEcho mirrors the original coio-rs test_tcp_echo scenario
// (tests/echo.rs in the pre-port sources): one coroutine accepts and
// echoes a single connection, another dials in, writes a payload, and
// checks it gets the same bytes back.
func TestTCPEcho(t *testing.T) {
	const addr = "127.0.0.1:18765"
	const payload = "abcdefg"

	s := coro.New().WithWorkers(2)
	v, err := coro.Run(s, func() int {
		// Bind before spawning either side: the spawning processor pops
		// its newest coroutine (the sender) first, and a dial to a port
		// that is not yet listening is refused.
		ln, lnErr := ListenTCP(addr)
		if lnErr != nil {
			return 0
		}
		defer ln.Close()

		listenHandle := coro.Spawn(func() error {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			defer conn.Close()

			buf := make([]byte, 1024)
			for {
				n, err := conn.Read(buf)
				if err != nil {
					return err
				}
				if n == 0 {
					return nil
				}
				if _, err := conn.Write(buf[:n]); err != nil {
					return err
				}
			}
		})

		senderHandle := coro.Spawn(func() []byte {
			conn, err := DialTCP(addr)
			if err != nil {
				return nil
			}
			defer conn.Close()

			if _, err := conn.Write([]byte(payload)); err != nil {
				return nil
			}

			buf := make([]byte, len(payload))
			total := 0
			for total < len(buf) {
				n, err := conn.Read(buf[total:])
				if err != nil || n == 0 {
					break
				}
				total += n
			}
			return buf[:total]
		})

		got, senderErr := senderHandle.Join()
		require.NoError(t, senderErr)
		require.Equal(t, payload, string(got))

		_, _ = listenHandle.Join()
		return 1
	})

	require.NoError(t, err)
	require.Equal(t, 1, v)
}
