// Package echo implements an opaque byte-for-byte echo of whatever a peer
// sends, bounded by the FIFO capacity of in-flight un-echoed data per
// direction. It is consumed by reactorcore.Acceptor as a
// reactorcore.HandlerFactory.
package echo

import (
	"net"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nullbyteio/reactorcore"
)

// DefaultFIFOCapacity is the default upper bound (in bytes) of in-flight,
// un-echoed data buffered per direction.
const DefaultFIFOCapacity = 1024

// defaultMaxIdleTimeouts is the default bound on how many consecutive
// reactor-wide Timeout notifications a Handler tolerates with no read or
// write activity before self-destructing. 0 disables the watchdog.
const defaultMaxIdleTimeouts = 0

// Handler implements the echo connection contract: it owns two FIFOBuffers
// (in, out) and a socket, and wires their fill-level transitions to the
// reactor's interest mask so the kernel is never asked to signal readiness
// the handler cannot service.
type Handler struct {
	reactor *reactorcore.Reactor
	socket  reactorcore.Socket

	in  *reactorcore.FIFOBuffer
	out *reactorcore.FIFOBuffer

	readObs     *reactorcore.TypedObserver[Handler]
	writeObs    *reactorcore.TypedObserver[Handler]
	shutdownObs *reactorcore.TypedObserver[Handler]
	timeoutObs  *reactorcore.TypedObserver[Handler]

	readArmed  bool
	writeArmed bool

	idleTimeouts    int
	maxIdleTimeouts int

	log     zerolog.Logger
	metrics BackpressureSink

	destroyed bool
}

// BackpressureSink receives FIFO fill-level transitions for metrics
// collection. rmetrics.Collector satisfies this interface; it is expressed
// here as a small interface rather than a concrete dependency so the echo
// package does not have to know about Prometheus to be useful on its own.
type BackpressureSink interface {
	ObserveBackpressure(direction, transition string)
}

// Options configures a Handler's FIFO capacity, idle watchdog, logger, and
// optional metrics sink.
type Options struct {
	FIFOCapacity    int
	MaxIdleTimeouts int
	Logger          zerolog.Logger
	Metrics         BackpressureSink
}

// NewFactory returns a reactorcore.HandlerFactory that constructs a
// Handler with the given Options for every accepted connection. It is the
// value typically passed to reactorcore.NewAcceptor.
func NewFactory(opts Options) reactorcore.HandlerFactory {
	if opts.FIFOCapacity <= 0 {
		opts.FIFOCapacity = DefaultFIFOCapacity
	}
	return func(reactor *reactorcore.Reactor, conn net.Conn) error {
		return newHandler(reactor, conn, opts)
	}
}

func newHandler(reactor *reactorcore.Reactor, conn net.Conn, opts Options) error {
	opts.Logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("echo: accepted")

	socket, err := reactorcore.DupConn(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	// The duplicate is independently owned; the original net.Conn's file
	// descriptor is no longer needed once the dup has succeeded.
	_ = conn.Close()

	if err := socket.SetNonblock(true); err != nil {
		_ = socket.Close()
		return err
	}

	h := &Handler{
		reactor:         reactor,
		socket:          socket,
		in:              reactorcore.NewFIFOBuffer(opts.FIFOCapacity),
		out:             reactorcore.NewFIFOBuffer(opts.FIFOCapacity),
		maxIdleTimeouts: opts.MaxIdleTimeouts,
		log:             opts.Logger,
		metrics:         opts.Metrics,
	}

	h.readObs = reactorcore.NewObserver(reactorcore.Readable, h, "onSocketReadable", (*Handler).onSocketReadable)
	h.writeObs = reactorcore.NewObserver(reactorcore.Writable, h, "onSocketWritable", (*Handler).onSocketWritable)
	h.shutdownObs = reactorcore.NewObserver(reactorcore.Shutdown, h, "onSocketShutdown", (*Handler).onSocketShutdown)

	// in.writable(true) -> add Readable observer; false -> remove.
	h.in.OnWritable = func(v bool) {
		h.setReadArmed(v)
		h.reportBackpressure("in", nonfullTransition(v))
	}
	// out.readable(true) -> add Writable observer; false -> remove.
	h.out.OnReadable = func(v bool) {
		h.setWriteArmed(v)
		h.reportBackpressure("out", nonemptyTransition(v))
	}

	if err := reactor.AddEventHandler(socket, h.shutdownObs); err != nil {
		_ = socket.Close()
		return err
	}

	if h.maxIdleTimeouts > 0 {
		h.timeoutObs = reactorcore.NewObserver(reactorcore.Timeout, h, "onIdleTimeout", (*Handler).onIdleTimeout)
		if err := reactor.AddEventHandler(socket, h.timeoutObs); err != nil {
			_ = reactor.RemoveEventHandler(socket, h.shutdownObs)
			_ = socket.Close()
			return err
		}
	}

	// in starts empty (writable), so Readable interest starts armed; out
	// starts empty (not readable), so Writable interest starts disarmed.
	h.setReadArmed(h.in.IsWritable())
	h.setWriteArmed(h.out.IsReadable())

	return nil
}

func nonfullTransition(becameWritable bool) string {
	if becameWritable {
		return "nonfull"
	}
	return "full"
}

func nonemptyTransition(becameReadable bool) string {
	if becameReadable {
		return "nonempty"
	}
	return "empty"
}

func (h *Handler) reportBackpressure(direction, transition string) {
	if h.metrics != nil {
		h.metrics.ObserveBackpressure(direction, transition)
	}
}

func (h *Handler) setReadArmed(want bool) {
	if want == h.readArmed {
		return
	}
	h.readArmed = want
	if want {
		_ = h.reactor.AddEventHandler(h.socket, h.readObs)
	} else {
		_ = h.reactor.RemoveEventHandler(h.socket, h.readObs)
	}
}

func (h *Handler) setWriteArmed(want bool) {
	if want == h.writeArmed {
		return
	}
	h.writeArmed = want
	if want {
		_ = h.reactor.AddEventHandler(h.socket, h.writeObs)
	} else {
		_ = h.reactor.RemoveEventHandler(h.socket, h.writeObs)
	}
}

// retryEINTR calls op once, looping as long as it reports EINTR (a signal
// interrupted the syscall before it could complete), and returns the first
// result that is not EINTR.
func retryEINTR(op func() (int, error)) (int, error) {
	for {
		n, err := op()
		if err == syscall.EINTR {
			continue
		}
		return n, err
	}
}

// onSocketReadable reads from the socket into in, transfers as much of in
// as fits into out, and drains the transferred prefix from in.
func (h *Handler) onSocketReadable(nf *reactorcore.Notification) {
	dst := h.in.Next()
	if len(dst) == 0 {
		// in is full; Readable interest should already be disarmed via
		// in.writable(false), but tolerate a stray delivery.
		return
	}

	n, err := retryEINTR(func() (int, error) { return syscall.Read(h.socket.FD(), dst) })
	switch {
	case err == syscall.EAGAIN:
		return
	case err != nil:
		h.log.Debug().Int("fd", h.socket.FD()).Err(err).Msg("echo: read error")
		h.destroy()
		return
	case n == 0:
		// peer sent FIN.
		h.log.Debug().Int("fd", h.socket.FD()).Msg("echo: peer closed")
		h.destroy()
		return
	}
	h.idleTimeouts = 0
	if aerr := h.in.Advance(n); aerr != nil {
		h.log.Debug().Int("fd", h.socket.FD()).Err(aerr).Msg("echo: advance overflow")
		h.destroy()
		return
	}

	h.pump()
}

// pump transfers as much of in as fits into out, draining the transferred
// prefix from in.
func (h *Handler) pump() {
	var tmp [4096]byte
	for h.in.IsReadable() && h.out.IsWritable() {
		n := h.in.Peek(tmp[:])
		if n == 0 {
			break
		}
		written := h.out.Write(tmp[:n])
		if written == 0 {
			break
		}
		h.in.Drain(written)
		if written < n {
			break
		}
	}
}

// onSocketWritable writes as many bytes of out as possible to the socket
// and drains by the returned count.
func (h *Handler) onSocketWritable(nf *reactorcore.Notification) {
	var tmp [4096]byte
	n := h.out.Peek(tmp[:])
	if n == 0 {
		return
	}

	written, err := retryEINTR(func() (int, error) { return syscall.Write(h.socket.FD(), tmp[:n]) })
	switch {
	case err == syscall.EAGAIN:
		return
	case err != nil:
		h.log.Debug().Int("fd", h.socket.FD()).Err(err).Msg("echo: write error")
		h.destroy()
		return
	}
	h.idleTimeouts = 0
	h.out.Drain(written)
}

// onSocketShutdown destroys the handler when the reactor shuts down.
func (h *Handler) onSocketShutdown(nf *reactorcore.Notification) {
	h.destroy()
}

// onIdleTimeout self-destructs the handler after maxIdleTimeouts
// consecutive reactor-wide Timeout notifications with no read/write
// activity.
func (h *Handler) onIdleTimeout(nf *reactorcore.Notification) {
	h.idleTimeouts++
	if h.idleTimeouts >= h.maxIdleTimeouts {
		h.log.Debug().Int("fd", h.socket.FD()).Msg("echo: idle timeout")
		h.destroy()
	}
}

// destroy tears the handler down: disarms and removes every observer,
// closes the socket. Safe to call more than once (idempotent) because the
// reactor tolerates disabled observers remaining in a dispatch snapshot.
func (h *Handler) destroy() {
	if h.destroyed {
		return
	}
	h.destroyed = true

	_ = h.reactor.RemoveEventHandler(h.socket, h.readObs)
	_ = h.reactor.RemoveEventHandler(h.socket, h.writeObs)
	_ = h.reactor.RemoveEventHandler(h.socket, h.shutdownObs)
	if h.timeoutObs != nil {
		_ = h.reactor.RemoveEventHandler(h.socket, h.timeoutObs)
	}
	_ = h.socket.Close()
}
