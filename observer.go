package reactorcore

import "sync"

// Observer is the type-erased interface the Notifier and Reactor operate
// on. Concrete observers are always *TypedObserver[H]; the interface lets
// a notifier hold observers bound to handlers of different concrete types
// in one list.
type Observer interface {
	// Kind reports the notification variant this observer accepts.
	Kind() Kind
	// Notify invokes the bound callback if the handler has not been
	// disabled; otherwise it is a silent no-op.
	Notify(nf *Notification)
	// Disable atomically clears the handler reference. Idempotent.
	// Subsequent Notify calls become no-ops. This is the single-writer
	// rendezvous that makes it safe to deliver a notification to an
	// observer whose handler is concurrently being torn down.
	Disable()
	// Equals reports whether other binds the same concrete observer
	// subtype, the same handler instance, and the same method.
	Equals(other Observer) bool
	// Clone returns a deep copy that Equals the original.
	Clone() Observer
}

// TypedObserver binds a notification Kind to a (handler, method) pair. H
// is the concrete handler type; parameterizing on it lets "accepts"
// become a Kind comparison instead of a dynamic type check or downcast.
type TypedObserver[H any] struct {
	mu      sync.Mutex
	kind    Kind
	method  string // identifies the bound method for equality purposes
	handler *H     // nil once disabled
	fn      func(h *H, nf *Notification)
}

// NewObserver binds handler's method (identified by the method name, used
// only for equality) to kind via fn.
func NewObserver[H any](kind Kind, handler *H, method string, fn func(*H, *Notification)) *TypedObserver[H] {
	return &TypedObserver[H]{kind: kind, method: method, handler: handler, fn: fn}
}

// Kind implements Observer.
func (o *TypedObserver[H]) Kind() Kind { return o.kind }

// Notify implements Observer.
func (o *TypedObserver[H]) Notify(nf *Notification) {
	o.mu.Lock()
	h := o.handler
	fn := o.fn
	o.mu.Unlock()
	if h == nil {
		return
	}
	fn(h, nf)
}

// Disable implements Observer.
func (o *TypedObserver[H]) Disable() {
	o.mu.Lock()
	o.handler = nil
	o.mu.Unlock()
}

// Equals implements Observer.
func (o *TypedObserver[H]) Equals(other Observer) bool {
	t, ok := other.(*TypedObserver[H])
	if !ok {
		return false
	}
	o.mu.Lock()
	h := o.handler
	o.mu.Unlock()
	t.mu.Lock()
	th := t.handler
	t.mu.Unlock()
	return o.method == t.method && h == th
}

// Clone implements Observer.
func (o *TypedObserver[H]) Clone() Observer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return &TypedObserver[H]{kind: o.kind, method: o.method, handler: o.handler, fn: o.fn}
}
