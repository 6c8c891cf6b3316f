package reactorcore

import "errors"

var (
	// ErrNotOwned means resize/set_capacity was called on a borrowed ByteBuffer.
	ErrNotOwned = errors.New("reactorcore: buffer is borrowed, cannot resize")
	// ErrOverflow means advance() was asked to commit more bytes than are available.
	ErrOverflow = errors.New("reactorcore: advance exceeds available capacity")
	// ErrClosed names the closed state of a PollSet or Reactor. No method in
	// this package returns it: calls after Close fail with the wrapped error
	// of the closed descriptor.
	ErrClosed = errors.New("reactorcore: closed")
	// ErrNotRegistered names a socket the PollSet does not hold. No method in
	// this package returns it: Remove of an absent socket is a no-op and
	// Update of an absent socket registers it.
	ErrNotRegistered = errors.New("reactorcore: socket not registered")
)
