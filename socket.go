package reactorcore

import (
	"net"
	"reflect"
	"syscall"

	"github.com/pkg/errors"
)

// Socket identifies a single OS file descriptor. Equality, ordering, and
// hashing are on the descriptor value alone: Socket is comparable and may
// be used directly as a map key. Multiple Socket values may alias the same
// descriptor (copies are non-owning); exactly one logical owner is
// responsible for eventually closing it.
type Socket struct {
	fd int
}

// FD returns the underlying descriptor.
func (s Socket) FD() int { return s.fd }

// Valid reports whether the socket carries a descriptor at all.
func (s Socket) Valid() bool { return s.fd >= 0 }

// InvalidSocket is the placeholder for "no socket". It carries descriptor
// -1; the zero Socket value carries descriptor 0 and is not invalid.
var InvalidSocket = Socket{fd: -1}

// SocketFromFD wraps a raw descriptor obtained elsewhere (e.g. from
// accept(2)). The caller becomes the owner.
func SocketFromFD(fd int) Socket { return Socket{fd: fd} }

// syscallConnProvider is implemented by *net.TCPConn, *net.TCPListener,
// and friends.
type syscallConnProvider interface {
	SyscallConn() (syscall.RawConn, error)
}

// DupConn duplicates the file descriptor underlying a net.Conn and returns
// it as an owning Socket. The original net.Conn should be closed by the
// caller once the duplicate is confirmed good; duplicating lets the
// reactor manage the descriptor's lifetime independently of Go's net
// package (whose runtime poller would otherwise fight over the same fd).
func DupConn(conn net.Conn) (Socket, error) {
	sc, ok := conn.(syscallConnProvider)
	if !ok {
		return InvalidSocket, errors.New("reactorcore: connection does not implement SyscallConn")
	}
	return dupSyscallConn(sc)
}

// dupListener duplicates the descriptor behind a net.Listener.
func dupListener(ln syscallConnProvider) (Socket, error) {
	return dupSyscallConn(ln)
}

func dupSyscallConn(sc syscallConnProvider) (Socket, error) {
	rc, err := sc.SyscallConn()
	if err != nil {
		return InvalidSocket, errors.Wrap(err, "reactorcore: SyscallConn")
	}

	var newfd int
	var dupErr error
	ctrlErr := rc.Control(func(fd uintptr) {
		newfd, dupErr = syscall.Dup(int(fd))
	})
	if ctrlErr != nil {
		return InvalidSocket, errors.Wrap(ctrlErr, "reactorcore: rawConn.Control")
	}
	if dupErr != nil {
		return InvalidSocket, errors.Wrap(dupErr, "reactorcore: dup")
	}
	return Socket{fd: newfd}, nil
}

// connPtr extracts a stable identity for a net.Conn, used only for
// diagnostics (never as a map key: the reactor keys everything off Socket).
func connPtr(conn net.Conn) uintptr {
	v := reflect.ValueOf(conn)
	if v.Kind() == reflect.Ptr {
		return v.Pointer()
	}
	return 0
}

// Close closes the underlying descriptor. It is the owner's responsibility
// to call this exactly once.
func (s Socket) Close() error {
	if !s.Valid() {
		return nil
	}
	return syscall.Close(s.fd)
}

// SetNonblock toggles O_NONBLOCK on the descriptor.
func (s Socket) SetNonblock(nonblocking bool) error {
	return syscall.SetNonblock(s.fd, nonblocking)
}
