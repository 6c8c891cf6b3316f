//go:build linux

package reactorcore_test

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nullbyteio/reactorcore"
	"github.com/nullbyteio/reactorcore/echo"
)

func startEchoReactor(t *testing.T) (addr string, stop func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	r, err := reactorcore.NewReactor(
		reactorcore.WithPollTimeout(20*time.Millisecond),
		reactorcore.WithIdleSleep(5*time.Millisecond),
	)
	require.NoError(t, err)

	factory := echo.NewFactory(echo.Options{
		FIFOCapacity: echo.DefaultFIFOCapacity,
		Logger:       zerolog.Nop(),
	})

	acc, err := reactorcore.NewAcceptor(r, ln, factory, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = r.Run()
		close(done)
	}()

	return ln.Addr().String(), func() {
		r.Stop()
		<-done
		_ = acc.Close()
		_ = r.Close()
	}
}

func TestEchoEchoesSingleWrite(t *testing.T) {
	addr, stop := startEchoReactor(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("PING"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "PING", string(buf))
}

// A peer that never reads must not prevent the server from eventually
// making progress once the peer starts consuming (bounded by the FIFO
// capacity).
func TestEchoBackpressureDoesNotDropBytes(t *testing.T) {
	addr, stop := startEchoReactor(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	payload := make([]byte, echo.DefaultFIFOCapacity)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	// Send a full FIFO's worth of bytes without reading the echo back; the
	// handler must not spin the CPU, and must not lose bytes once we do
	// start draining.
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	written := 0
	for written < len(payload) {
		n, werr := conn.Write(payload[written:])
		if werr != nil {
			break
		}
		written += n
	}

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	got := make([]byte, written)
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.Equal(t, payload[:written], got)
}

func TestEchoServesTwoConnectionsIndependently(t *testing.T) {
	addr, stop := startEchoReactor(t)
	defer stop()

	connA, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer connA.Close()
	connB, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer connB.Close()

	_, err = connA.Write([]byte("A"))
	require.NoError(t, err)
	_, err = connB.Write([]byte("B"))
	require.NoError(t, err)

	require.NoError(t, connA.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, connB.SetReadDeadline(time.Now().Add(2*time.Second)))

	bufA := make([]byte, 1)
	bufB := make([]byte, 1)
	_, err = io.ReadFull(connA, bufA)
	require.NoError(t, err)
	_, err = io.ReadFull(connB, bufB)
	require.NoError(t, err)

	require.Equal(t, "A", string(bufA))
	require.Equal(t, "B", string(bufB))
}

func TestEchoClosesConnectionOnReactorShutdown(t *testing.T) {
	addr, stop := startEchoReactor(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)
	buf := make([]byte, 1)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)

	stop() // reactor.Stop(); waits for Run() to return

	// After shutdown the handler destroyed itself and closed the socket;
	// the peer should observe EOF (or a reset) rather than the connection
	// hanging open.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(buf)
	require.Error(t, err)
}
