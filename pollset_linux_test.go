//go:build linux

package reactorcore

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func loopbackPair(t *testing.T) (serverSide Socket, clientConn net.Conn, cleanup func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	accepted := make(chan net.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	clientConn, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	var serverConn net.Conn
	select {
	case serverConn = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("accept failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}

	s, err := DupConn(serverConn)
	require.NoError(t, err)
	require.NoError(t, s.SetNonblock(true))
	require.NoError(t, serverConn.Close())

	return s, clientConn, func() {
		_ = s.Close()
		_ = clientConn.Close()
		_ = ln.Close()
	}
}

func TestPollSetAddHasRemove(t *testing.T) {
	ps, err := NewPollSet()
	require.NoError(t, err)
	defer ps.Close()

	s, _, cleanup := loopbackPair(t)
	defer cleanup()

	require.False(t, ps.Has(s))
	require.NoError(t, ps.Add(s, ModeRead))
	require.True(t, ps.Has(s))

	require.NoError(t, ps.Remove(s))
	require.False(t, ps.Has(s))
}

func TestPollSetAddTwiceDegradesToUpdate(t *testing.T) {
	ps, err := NewPollSet()
	require.NoError(t, err)
	defer ps.Close()

	s, _, cleanup := loopbackPair(t)
	defer cleanup()

	require.NoError(t, ps.Add(s, ModeRead))
	require.NoError(t, ps.Add(s, ModeRead|ModeWrite))
	require.True(t, ps.Has(s))
}

func TestPollSetPollReportsWritableImmediately(t *testing.T) {
	ps, err := NewPollSet()
	require.NoError(t, err)
	defer ps.Close()

	s, _, cleanup := loopbackPair(t)
	defer cleanup()

	require.NoError(t, ps.Add(s, ModeWrite))
	result, err := ps.Poll(1000)
	require.NoError(t, err)
	require.Contains(t, result, s)
	require.True(t, result[s].has(ModeWrite))
}

func TestPollSetPollReportsReadableAfterPeerWrite(t *testing.T) {
	ps, err := NewPollSet()
	require.NoError(t, err)
	defer ps.Close()

	s, client, cleanup := loopbackPair(t)
	defer cleanup()

	require.NoError(t, ps.Add(s, ModeRead))

	_, err = client.Write([]byte("hi"))
	require.NoError(t, err)

	result, err := ps.Poll(1000)
	require.NoError(t, err)
	require.Contains(t, result, s)
	require.True(t, result[s].has(ModeRead))
}

func TestPollSetRemoveAbsentSocketIsNoop(t *testing.T) {
	ps, err := NewPollSet()
	require.NoError(t, err)
	defer ps.Close()

	require.NoError(t, ps.Remove(Socket{fd: 99999}))
}

func TestPollSetClearEmptiesRegistry(t *testing.T) {
	ps, err := NewPollSet()
	require.NoError(t, err)
	defer ps.Close()

	s, _, cleanup := loopbackPair(t)
	defer cleanup()

	require.NoError(t, ps.Add(s, ModeRead))
	require.False(t, ps.Empty())

	require.NoError(t, ps.Clear())
	require.True(t, ps.Empty())
}
