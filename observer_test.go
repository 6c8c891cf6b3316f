package reactorcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	calls int
}

func (h *fakeHandler) onReadable(nf *Notification) { h.calls++ }

func TestObserverNotifyNoopAfterDisable(t *testing.T) {
	h := &fakeHandler{}
	obs := NewObserver(Readable, h, "onReadable", (*fakeHandler).onReadable)

	obs.Notify(&Notification{Kind: Readable})
	require.Equal(t, 1, h.calls)

	obs.Disable()
	obs.Notify(&Notification{Kind: Readable})
	require.Equal(t, 1, h.calls, "notify after disable must be a no-op")
}

func TestObserverEqualsSameHandlerAndMethod(t *testing.T) {
	h := &fakeHandler{}
	a := NewObserver(Readable, h, "onReadable", (*fakeHandler).onReadable)
	b := NewObserver(Readable, h, "onReadable", (*fakeHandler).onReadable)

	require.True(t, a.Equals(b))
	require.True(t, b.Equals(a))
}

func TestObserverNotEqualsDifferentHandler(t *testing.T) {
	a := NewObserver(Readable, &fakeHandler{}, "onReadable", (*fakeHandler).onReadable)
	b := NewObserver(Readable, &fakeHandler{}, "onReadable", (*fakeHandler).onReadable)

	require.False(t, a.Equals(b))
}

func TestObserverNotEqualsDifferentMethod(t *testing.T) {
	h := &fakeHandler{}
	a := NewObserver(Readable, h, "onReadable", (*fakeHandler).onReadable)
	b := NewObserver(Readable, h, "onOther", (*fakeHandler).onReadable)

	require.False(t, a.Equals(b))
}

func TestObserverCloneEqualsOriginal(t *testing.T) {
	h := &fakeHandler{}
	a := NewObserver(Readable, h, "onReadable", (*fakeHandler).onReadable)
	clone := a.Clone()

	require.True(t, a.Equals(clone))
	require.True(t, clone.Equals(a))
}

func TestObserverKindAccepts(t *testing.T) {
	h := &fakeHandler{}
	obs := NewObserver(Writable, h, "onReadable", (*fakeHandler).onReadable)
	require.Equal(t, Writable, obs.Kind())
}
