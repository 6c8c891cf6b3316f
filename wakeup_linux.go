//go:build linux

package reactorcore

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// wakeSocket is an always-registered-Readable eventfd used to pull the
// reactor thread out of epoll_wait early when a handler is added from
// another goroutine. Draining it is the entire handler: the reactor does
// not act on its readiness beyond that.
type wakeSocket struct {
	fd  int
	buf [8]byte
}

func newWakeSocket() (*wakeSocket, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(os.NewSyscallError("eventfd", err), "reactorcore: newWakeSocket")
	}
	return &wakeSocket{fd: fd}, nil
}

func (w *wakeSocket) socket() Socket { return Socket{fd: w.fd} }

// trigger wakes a blocked epoll_wait. Safe to call concurrently and
// repeatedly; EAGAIN (counter already saturated enough to be noticed) is
// not an error.
func (w *wakeSocket) trigger() error {
	b := make([]byte, 8)
	b[0] = 1
	_, err := unix.Write(w.fd, b)
	if err != nil && err != unix.EAGAIN {
		return errors.Wrap(os.NewSyscallError("write(eventfd)", err), "reactorcore: wakeSocket.trigger")
	}
	return nil
}

// drain clears the eventfd counter after a wake so it does not keep
// epoll reporting it ready.
func (w *wakeSocket) drain() {
	_, _ = unix.Read(w.fd, w.buf[:])
}

func (w *wakeSocket) close() error {
	return unix.Close(w.fd)
}
