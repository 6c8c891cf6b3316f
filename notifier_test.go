package reactorcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	n int
}

func (h *countingHandler) onReadable(nf *Notification) { h.n++ }

type panickyHandler struct{}

func (h *panickyHandler) onReadable(nf *Notification) { panic("boom") }

func TestNotifierDispatchStampsAndClearsSocket(t *testing.T) {
	n := newNotifier(Socket{fd: 7})
	var seen Socket
	h := &countingHandler{}
	obs := NewObserver(Readable, h, "onReadable", func(hh *countingHandler, nf *Notification) {
		seen = nf.Socket
		hh.n++
	})
	n.addObserver(obs)

	nf := &Notification{Kind: Readable}
	n.dispatch(nf, nil)

	require.Equal(t, Socket{fd: 7}, seen)
	require.Equal(t, InvalidSocket, nf.Socket, "dispatch must clear the socket reference afterward")
	require.Equal(t, 1, h.n)
}

func TestNotifierDispatchOnlyMatchingKind(t *testing.T) {
	n := newNotifier(Socket{fd: 1})
	h := &countingHandler{}
	readObs := NewObserver(Readable, h, "onReadable", (*countingHandler).onReadable)
	n.addObserver(readObs)

	n.dispatch(&Notification{Kind: Writable}, nil)
	require.Equal(t, 0, h.n, "a Readable-only observer must never fire for Writable")

	n.dispatch(&Notification{Kind: Readable}, nil)
	require.Equal(t, 1, h.n)
}

func TestNotifierDispatchSwallowsObserverPanic(t *testing.T) {
	n := newNotifier(Socket{fd: 2})
	obs := NewObserver(Readable, &panickyHandler{}, "onReadable", (*panickyHandler).onReadable)
	n.addObserver(obs)

	var recovered any
	require.NotPanics(t, func() {
		n.dispatch(&Notification{Kind: Readable}, func(r any) { recovered = r })
	})
	require.Equal(t, "boom", recovered)
}

func TestNotifierRemoveObserverRecomputesAccepted(t *testing.T) {
	n := newNotifier(Socket{fd: 3})
	h := &countingHandler{}
	readObs := NewObserver(Readable, h, "onReadable", (*countingHandler).onReadable)
	writeObs := NewObserver(Writable, h, "onReadable", (*countingHandler).onReadable)
	n.addObserver(readObs)
	n.addObserver(writeObs)

	require.True(t, n.accepts(Readable))
	require.True(t, n.accepts(Writable))

	removed, empty := n.removeObserver(readObs)
	require.True(t, removed)
	require.False(t, empty)
	require.False(t, n.accepts(Readable))
	require.True(t, n.accepts(Writable))

	removed, empty = n.removeObserver(writeObs)
	require.True(t, removed)
	require.True(t, empty)
}

func TestNotifierAcceptedMode(t *testing.T) {
	n := newNotifier(Socket{fd: 4})
	h := &countingHandler{}
	n.addObserver(NewObserver(Readable, h, "a", (*countingHandler).onReadable))
	require.Equal(t, ModeRead, n.acceptedMode())

	n.addObserver(NewObserver(Writable, h, "b", (*countingHandler).onReadable))
	require.Equal(t, ModeRead|ModeWrite, n.acceptedMode())
}
