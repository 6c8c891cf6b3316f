package reactorcore

// ReactorObserver receives the Reactor's own lifecycle events. All methods
// are optional: a nil ReactorObserver (the default) makes every hook a
// no-op. Implementations are invoked synchronously on the reactor's single
// dispatch goroutine and must not block it; cmd/echoreactord's
// implementation only performs buffered, non-blocking logging and
// lock-free metric increments.
type ReactorObserver interface {
	// OnIdle fires when no registered socket currently accepts any
	// notification variant, just before the reactor sleeps for its
	// idle-sleep duration (WithIdleSleep) instead of polling.
	OnIdle()
	// OnBusy fires once per poll cycle that produced at least one event,
	// before per-socket dispatch begins.
	OnBusy()
	// OnTimeout fires when a poll cycle produced events but none were
	// Readable, and also when the poll call itself timed out.
	OnTimeout()
	// OnShutdown fires once, after the loop has exited (Stop() observed,
	// or a fatal poll error) and Shutdown has been delivered to every
	// registered notifier, just before Run returns.
	OnShutdown()
	// OnObserverPanic fires when a user observer callback panics; the
	// panic has already been recovered and dispatch continues normally.
	OnObserverPanic(socket Socket, kind Kind, recovered any)
	// OnDispatch fires once per notifier a notification of the given kind
	// is handed to, whether socket-scoped (Readable/Writable/ErrorEvent)
	// or reactor-wide (Timeout/Idle/Shutdown).
	OnDispatch(kind Kind)
}

// noopReactorObserver implements ReactorObserver with no-ops; used when
// the caller supplies nil.
type noopReactorObserver struct{}

func (noopReactorObserver) OnIdle()                           {}
func (noopReactorObserver) OnBusy()                           {}
func (noopReactorObserver) OnTimeout()                        {}
func (noopReactorObserver) OnShutdown()                       {}
func (noopReactorObserver) OnObserverPanic(Socket, Kind, any) {}
func (noopReactorObserver) OnDispatch(Kind)                   {}
