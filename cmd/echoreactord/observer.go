package main

import (
	"github.com/rs/zerolog"

	"github.com/nullbyteio/reactorcore"
	"github.com/nullbyteio/reactorcore/internal/rmetrics"
)

// loggingObserver implements reactorcore.ReactorObserver by writing
// non-blocking debug/info/warn log lines through log and incrementing
// rmetrics counters. It never performs I/O that could block the reactor's
// own goroutine beyond zerolog's buffered writer and prometheus's
// lock-free atomics.
type loggingObserver struct {
	log     zerolog.Logger
	metrics *rmetrics.Collector
}

func newLoggingObserver(log zerolog.Logger, metrics *rmetrics.Collector) *loggingObserver {
	return &loggingObserver{log: log, metrics: metrics}
}

func (o *loggingObserver) OnIdle() {}

func (o *loggingObserver) OnBusy() {}

func (o *loggingObserver) OnTimeout() {}

func (o *loggingObserver) OnShutdown() {
	o.log.Info().Msg("reactor: shutdown complete")
}

func (o *loggingObserver) OnObserverPanic(socket reactorcore.Socket, kind reactorcore.Kind, recovered any) {
	o.log.Warn().Int("fd", socket.FD()).Str("kind", kind.String()).Interface("recovered", recovered).Msg("reactor: observer panic recovered")
}

func (o *loggingObserver) OnDispatch(kind reactorcore.Kind) {
	o.metrics.ObserveDispatch(kind.String())
}

var _ reactorcore.ReactorObserver = (*loggingObserver)(nil)
