package reactorcore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Reactor is the single-threaded cooperative event loop: it polls a
// PollSet, classifies readiness per socket, looks up that socket's
// notifier, and dispatches typed Notifications to the notifier's
// observers. Exactly one goroutine may call Run at a time; adding and
// removing handlers from other goroutines is fine and is serialized by mu
// (never held across a user callback).
type Reactor struct {
	mu       sync.Mutex
	pollset  *PollSet
	handlers map[Socket]*notifier
	wake     *wakeSocket

	stopFlag int32 // atomic

	pollTimeout time.Duration
	idleSleep   time.Duration

	observer ReactorObserver

	notifications map[Kind]*Notification
}

// Option configures a Reactor at construction time.
type Option func(*Reactor)

// WithPollTimeout sets the duration Poll blocks waiting for readiness
// before the loop re-checks the stop flag and idle condition.
func WithPollTimeout(d time.Duration) Option {
	return func(r *Reactor) { r.pollTimeout = d }
}

// WithIdleSleep sets how long the loop sleeps when no socket accepts any
// notification variant, instead of polling.
func WithIdleSleep(d time.Duration) Option {
	return func(r *Reactor) { r.idleSleep = d }
}

// WithReactorObserver installs lifecycle hooks (idle/busy/timeout/
// shutdown/panic). Passing nil restores the no-op default.
func WithReactorObserver(o ReactorObserver) Option {
	return func(r *Reactor) {
		if o == nil {
			o = noopReactorObserver{}
		}
		r.observer = o
	}
}

// NewReactor creates a Reactor backed by a fresh PollSet and wakeup
// eventfd.
func NewReactor(opts ...Option) (*Reactor, error) {
	ps, err := NewPollSet()
	if err != nil {
		return nil, errors.Wrap(err, "reactorcore: NewReactor")
	}
	wake, err := newWakeSocket()
	if err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "reactorcore: NewReactor")
	}
	if err := ps.Add(wake.socket(), ModeRead); err != nil {
		_ = ps.Close()
		_ = wake.close()
		return nil, errors.Wrap(err, "reactorcore: NewReactor registering wake socket")
	}

	r := &Reactor{
		pollset:     ps,
		handlers:    make(map[Socket]*notifier),
		wake:        wake,
		pollTimeout: 100 * time.Millisecond,
		idleSleep:   50 * time.Millisecond,
		observer:    noopReactorObserver{},
		notifications: map[Kind]*Notification{
			Timeout:  {Kind: Timeout},
			Idle:     {Kind: Idle},
			Shutdown: {Kind: Shutdown},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, nf := range r.notifications {
		nf.Reactor = r
	}
	return r, nil
}

// AddEventHandler registers obs against s, creating s's notifier if this
// is its first observer, and (re)computes the kernel interest mask from
// the notifier's accepted-kind set. PollSet.Add degrades to an update
// transparently if s is already registered.
func (r *Reactor) AddEventHandler(s Socket, obs Observer) error {
	r.mu.Lock()
	n, ok := r.handlers[s]
	if !ok {
		n = newNotifier(s)
		r.handlers[s] = n
	}
	n.addObserver(obs)
	mode := n.acceptedMode()
	r.mu.Unlock()

	if err := r.pollset.Add(s, mode); err != nil {
		return errors.Wrapf(err, "reactorcore: AddEventHandler(fd=%d)", s.FD())
	}
	return r.WakeUp()
}

// RemoveEventHandler unregisters obs from s. If obs was s's only observer,
// the notifier is dropped from the handler map and the socket is removed
// from the PollSet *before* the observer is disabled — removal from the
// map first prevents a concurrently in-flight dispatch from finding the
// notifier again; disabling second silences any callback already in a
// dispatch snapshot. Otherwise the observer is removed and the interest
// mask is recomputed and pushed to the PollSet.
func (r *Reactor) RemoveEventHandler(s Socket, obs Observer) error {
	r.mu.Lock()
	n, ok := r.handlers[s]
	if !ok {
		r.mu.Unlock()
		return nil
	}

	removed, empty := n.removeObserver(obs)
	if !removed {
		r.mu.Unlock()
		return nil
	}

	if empty {
		delete(r.handlers, s)
		r.mu.Unlock()
		if err := r.pollset.Remove(s); err != nil {
			obs.Disable()
			return errors.Wrapf(err, "reactorcore: RemoveEventHandler(fd=%d)", s.FD())
		}
		obs.Disable()
		return nil
	}

	mode := n.acceptedMode()
	r.mu.Unlock()
	obs.Disable()
	if err := r.pollset.Update(s, mode); err != nil {
		return errors.Wrapf(err, "reactorcore: RemoveEventHandler(fd=%d)", s.FD())
	}
	return nil
}

// WakeUp pulls a blocked Run() out of epoll_wait early, so a handler
// added from another goroutine is considered on the next poll cycle
// rather than after a full timeout quantum.
func (r *Reactor) WakeUp() error {
	return r.wake.trigger()
}

// Stop requests the loop to exit. The current poll cycle (if any)
// completes; on its next iteration the loop observes the flag, delivers
// Shutdown to every registered notifier, and Run returns. Idempotent.
func (r *Reactor) Stop() {
	atomic.StoreInt32(&r.stopFlag, 1)
	_ = r.WakeUp()
}

func (r *Reactor) stopping() bool {
	return atomic.LoadInt32(&r.stopFlag) != 0
}

// HandlerCount reports the number of sockets currently registered with the
// reactor (excluding the internal wake socket). Intended for diagnostics
// and metrics gauges, not for control flow.
func (r *Reactor) HandlerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// anyAccepted reports whether any registered notifier currently accepts
// any notification variant at all (used for the Idle decision). The
// always-present wake socket is not itself a handler and is excluded.
func (r *Reactor) anyAccepted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.handlers {
		if n.observerCount() > 0 {
			return true
		}
	}
	return false
}

// Run executes the event loop on the calling goroutine until Stop is
// called. It is the exception firewall for the whole reactor: panics from
// user observer callbacks are recovered at the notifier's dispatch
// boundary and never escape Run; only a fatal PollSet error (anything
// other than EINTR, which Poll itself retries) returns from Run with a
// non-nil error, after Shutdown has still been delivered to every
// notifier.
func (r *Reactor) Run() error {
	defer func() {
		r.dispatchGlobal(r.notifications[Shutdown])
		r.observer.OnShutdown()
	}()

	for !r.stopping() {
		if !r.anyAccepted() {
			r.onIdle()
			time.Sleep(r.idleSleep)
			continue
		}

		readiness, err := r.pollset.Poll(int(r.pollTimeout / time.Millisecond))
		if err != nil {
			return err
		}

		if r.stopping() {
			break
		}

		if len(readiness) == 0 {
			r.onTimeout()
			continue
		}

		r.observer.OnBusy()
		hadReadable := false
		for s, mode := range readiness {
			if s == r.wake.socket() {
				r.wake.drain()
				continue
			}
			if mode.has(ModeRead) {
				r.dispatchSocket(s, Readable)
				hadReadable = true
			}
			if mode.has(ModeWrite) {
				r.dispatchSocket(s, Writable)
			}
			if mode.has(ModeError) {
				r.dispatchSocket(s, ErrorEvent)
			}
		}
		if !hadReadable {
			r.onTimeout()
		}
	}
	return nil
}

// onIdle delivers the Idle notification to every registered notifier and
// fires the host-level lifecycle hook.
func (r *Reactor) onIdle() {
	r.dispatchGlobal(r.notifications[Idle])
	r.observer.OnIdle()
}

// onTimeout delivers the Timeout notification to every registered
// notifier and fires the host-level lifecycle hook.
func (r *Reactor) onTimeout() {
	r.dispatchGlobal(r.notifications[Timeout])
	r.observer.OnTimeout()
}

func (r *Reactor) dispatchSocket(s Socket, kind Kind) {
	r.mu.Lock()
	n, ok := r.handlers[s]
	r.mu.Unlock()
	if !ok {
		return
	}
	nf := &Notification{Kind: kind, Reactor: r}
	n.dispatch(nf, func(rec any) { r.observer.OnObserverPanic(s, kind, rec) })
	r.observer.OnDispatch(kind)
}

// dispatchGlobal delivers a reactor-wide notification (Timeout, Idle,
// Shutdown) to every currently registered notifier. The handler map is
// snapshotted under the lock and iterated outside it.
func (r *Reactor) dispatchGlobal(nf *Notification) {
	r.mu.Lock()
	snapshot := make([]*notifier, 0, len(r.handlers))
	for _, n := range r.handlers {
		snapshot = append(snapshot, n)
	}
	r.mu.Unlock()

	for _, n := range snapshot {
		local := *nf
		n.dispatch(&local, func(rec any) { r.observer.OnObserverPanic(n.socket, nf.Kind, rec) })
		r.observer.OnDispatch(nf.Kind)
	}
}

// Close releases the reactor's kernel resources (PollSet and wakeup
// eventfd). Call after Run has returned.
func (r *Reactor) Close() error {
	werr := r.wake.close()
	perr := r.pollset.Close()
	if perr != nil {
		return perr
	}
	return werr
}
