//go:build linux

package reactorcore

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// maxEvents bounds the kernel event buffer handed to epoll_wait per call.
const maxEvents = 1024

func translateMode(m Mode) uint32 {
	var e uint32
	if m.has(ModeRead) {
		e |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if m.has(ModeWrite) {
		e |= unix.EPOLLOUT
	}
	if m.has(ModeError) {
		e |= unix.EPOLLERR
	}
	// EPOLLERR and EPOLLHUP are always implicitly reported by the kernel;
	// we fold them into the returned mode regardless of registration.
	return e
}

func translateEvents(e uint32) Mode {
	var m Mode
	if e&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		m |= ModeRead
	}
	if e&unix.EPOLLOUT != 0 {
		m |= ModeWrite
	}
	if e&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		m |= ModeError
	}
	return m
}

// PollSet mirrors a kernel epoll instance against an in-memory socket ->
// interest-mode registry. add/remove/update never let the two drift: add
// on an already-registered socket degrades to update; remove of an absent
// socket is a no-op.
type PollSet struct {
	mu       sync.Mutex
	epfd     int
	registry map[Socket]Mode
	events   []unix.EpollEvent
}

// NewPollSet creates a kernel epoll instance and its in-memory mirror.
func NewPollSet() (*PollSet, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(os.NewSyscallError("epoll_create1", err), "reactorcore: NewPollSet")
	}
	return &PollSet{
		epfd:     fd,
		registry: make(map[Socket]Mode),
		events:   make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Has reports whether s is currently registered.
func (p *PollSet) Has(s Socket) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.registry[s]
	return ok
}

// Empty reports whether the registry holds no sockets.
func (p *PollSet) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.registry) == 0
}

// Add registers s for mode. If s is already registered this transparently
// degrades to Update (both in the in-memory registry and against the
// kernel, which would otherwise report EEXIST for EPOLL_CTL_ADD).
func (p *PollSet) Add(s Socket, mode Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.registry[s]; ok {
		return p.updateLocked(s, mode)
	}

	ev := unix.EpollEvent{Events: translateMode(mode), Fd: int32(s.fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, s.fd, &ev); err != nil {
		if err == unix.EEXIST {
			return p.updateLocked(s, mode)
		}
		return errors.Wrapf(os.NewSyscallError("epoll_ctl(add)", err), "reactorcore: PollSet.Add(fd=%d)", s.fd)
	}
	p.registry[s] = mode
	return nil
}

// Update changes the interest mode for an already-registered socket.
func (p *PollSet) Update(s Socket, mode Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updateLocked(s, mode)
}

func (p *PollSet) updateLocked(s Socket, mode Mode) error {
	ev := unix.EpollEvent{Events: translateMode(mode), Fd: int32(s.fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, s.fd, &ev); err != nil {
		if err == unix.ENOENT {
			// lost the race with a concurrent remove; treat as add.
			if aerr := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, s.fd, &ev); aerr != nil {
				return errors.Wrapf(os.NewSyscallError("epoll_ctl(add-after-enoent)", aerr), "reactorcore: PollSet.Update(fd=%d)", s.fd)
			}
			p.registry[s] = mode
			return nil
		}
		return errors.Wrapf(os.NewSyscallError("epoll_ctl(mod)", err), "reactorcore: PollSet.Update(fd=%d)", s.fd)
	}
	p.registry[s] = mode
	return nil
}

// Remove deregisters s. A no-op if s is absent.
func (p *PollSet) Remove(s Socket) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.registry[s]; !ok {
		return nil
	}
	delete(p.registry, s)

	// EPOLL_CTL_DEL historically required a non-nil event pointer on
	// older kernels; supply one for portability.
	ev := unix.EpollEvent{Fd: int32(s.fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, s.fd, &ev); err != nil && err != unix.ENOENT && err != unix.EBADF {
		return errors.Wrapf(os.NewSyscallError("epoll_ctl(del)", err), "reactorcore: PollSet.Remove(fd=%d)", s.fd)
	}
	return nil
}

// Clear destroys the kernel epoll instance and creates a fresh one; the
// in-memory registry is emptied.
func (p *PollSet) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = unix.Close(p.epfd)
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return errors.Wrap(os.NewSyscallError("epoll_create1", err), "reactorcore: PollSet.Clear")
	}
	p.epfd = fd
	p.registry = make(map[Socket]Mode)
	return nil
}

// Close releases the kernel epoll instance. The PollSet must not be used
// afterward.
func (p *PollSet) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return unix.Close(p.epfd)
}

// Poll waits up to timeout for readiness, restarting transparently on
// EINTR (the restart does not decrement the caller's remaining timeout
// budget), and returns the observed modes keyed by socket. The internal
// mutex is held only while assembling the result map, not while the
// kernel wait itself is in progress.
func (p *PollSet) Poll(timeoutMsec int) (map[Socket]Mode, error) {
	var n int
	var err error
	for {
		n, err = unix.EpollWait(p.epfd, p.events, timeoutMsec)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(os.NewSyscallError("epoll_wait", err), "reactorcore: PollSet.Poll")
		}
		break
	}

	result := make(map[Socket]Mode, n)
	p.mu.Lock()
	for i := 0; i < n; i++ {
		s := Socket{fd: int(p.events[i].Fd)}
		result[s] |= translateEvents(p.events[i].Events)
	}
	p.mu.Unlock()
	return result, nil
}
