package reactorcore

import (
	"net"

	"github.com/pkg/errors"
)

// HandlerFactory creates and registers a new connection handler for an
// accepted socket. The factory is expected to register its own
// Readable/Writable/Shutdown observers on reactor before returning; the
// factory returns only an error, and the Acceptor keeps no reference to
// the handler (the handler owns its own lifecycle from here).
type HandlerFactory func(reactor *Reactor, conn net.Conn) error

// Acceptor is a Readable observer on a duplicate of a listening socket's
// descriptor: on readiness it accepts and hands the new net.Conn to an
// injected factory, which is responsible for taking over its descriptor.
type Acceptor struct {
	reactor  *Reactor
	listener net.Listener
	socket   Socket
	factory  HandlerFactory
	observer *TypedObserver[Acceptor]
	onError  func(error)
}

// NewAcceptor registers a Readable observer for ln's descriptor on
// reactor. factory is invoked once per accepted connection. onError (may
// be nil) receives Accept errors other than timeouts, and factory errors.
func NewAcceptor(reactor *Reactor, ln net.Listener, factory HandlerFactory, onError func(error)) (*Acceptor, error) {
	conn, ok := ln.(syscallConnProvider)
	if !ok {
		return nil, errors.New("reactorcore: listener does not support SyscallConn")
	}
	s, err := dupListener(conn)
	if err != nil {
		return nil, errors.Wrap(err, "reactorcore: NewAcceptor")
	}
	if err := s.SetNonblock(true); err != nil {
		return nil, errors.Wrap(err, "reactorcore: NewAcceptor SetNonblock")
	}

	a := &Acceptor{reactor: reactor, listener: ln, socket: s, factory: factory, onError: onError}
	a.observer = NewObserver(Readable, a, "onAccept", (*Acceptor).onAccept)
	if err := reactor.AddEventHandler(s, a.observer); err != nil {
		return nil, errors.Wrap(err, "reactorcore: NewAcceptor registering observer")
	}
	return a, nil
}

// Close stops accepting and releases the listening socket.
func (a *Acceptor) Close() error {
	_ = a.reactor.RemoveEventHandler(a.socket, a.observer)
	lerr := a.listener.Close()
	serr := a.socket.Close()
	if lerr != nil {
		return lerr
	}
	return serr
}

func (a *Acceptor) onAccept(nf *Notification) {
	conn, err := a.listener.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		if a.onError != nil {
			a.onError(err)
		}
		return
	}
	if a.factory != nil {
		if ferr := a.factory(a.reactor, conn); ferr != nil && a.onError != nil {
			a.onError(errors.Wrapf(ferr, "reactorcore: handler factory for conn %x", connPtr(conn)))
		}
	}
	// wake the reactor so the newly registered connection's interest is
	// considered on the very next poll cycle rather than waiting out a
	// full timeout quantum.
	_ = a.reactor.WakeUp()
}
