package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nullbyteio/reactorcore"
	"github.com/nullbyteio/reactorcore/echo"
	"github.com/nullbyteio/reactorcore/internal/rconfig"
	"github.com/nullbyteio/reactorcore/internal/rmetrics"
)

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:          "echoreactord",
		Short:        "epoll-based reactor echo server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rconfig.Load(v, configPath)
			if err != nil {
				return exitError{code: exConfig, err: err}
			}
			return run(cmd.Context(), cfg)
		},
	}

	rconfig.BindFlags(cmd.Flags(), v)
	cmd.Flags().StringVar(&configPath, "config", "", "path to an optional YAML configuration file")

	return cmd
}

// exitError carries the sysexits code a failure should map to; main()
// unwraps it to pick the process exit status.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

func run(ctx context.Context, cfg rconfig.Config) error {
	log := newLogger()
	if cfg.Daemon {
		// True double-fork daemonization is left to the process supervisor
		// (systemd, runit); --daemon here only drops the console writer in
		// favor of a plain structured stream, since re-parenting a running
		// Go process to init is not something the runtime supports cleanly.
		log = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return exitError{code: exOSErr, err: err}
	}
	defer ln.Close()

	registry := prometheus.NewRegistry()
	metrics := rmetrics.New(registry)

	r, err := reactorcore.NewReactor(
		reactorcore.WithPollTimeout(cfg.PollTimeout),
		reactorcore.WithIdleSleep(cfg.IdleSleep),
		reactorcore.WithReactorObserver(newLoggingObserver(log, metrics)),
	)
	if err != nil {
		return exitError{code: exOSErr, err: err}
	}
	defer r.Close()

	factory := echo.NewFactory(echo.Options{
		FIFOCapacity:    cfg.FIFOCapacity,
		MaxIdleTimeouts: cfg.MaxIdleTimeout,
		Logger:          log.With().Str("component", "echo").Logger(),
		Metrics:         metrics,
	})

	acc, err := reactorcore.NewAcceptor(r, ln, countingFactory(factory, metrics), func(err error) {
		log.Warn().Err(err).Msg("acceptor: error")
	})
	if err != nil {
		return exitError{code: exOSErr, err: err}
	}
	defer acc.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("metrics server exited")
			}
		}()
		defer srv.Close()
	}

	// SIGTERM and SIGINT both end the termination wait with an orderly
	// shutdown. When ENABLE_DEBUGGER is set, SIGINT is left out of that set
	// and keeps its default handling, so an attached debugger can interrupt
	// the process normally.
	sigs := []os.Signal{syscall.SIGTERM}
	if os.Getenv("ENABLE_DEBUGGER") == "" {
		sigs = append(sigs, os.Interrupt)
	}
	sigCtx, stop := signal.NotifyContext(ctx, sigs...)
	defer stop()

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run() }()

	select {
	case <-sigCtx.Done():
		log.Info().Msg("signal received, shutting down")
		r.Stop()
		return <-runDone
	case err := <-runDone:
		if err != nil {
			return exitError{code: exSoftware, err: err}
		}
		return nil
	}
}

func countingFactory(next reactorcore.HandlerFactory, metrics *rmetrics.Collector) reactorcore.HandlerFactory {
	return func(reactor *reactorcore.Reactor, conn net.Conn) error {
		if err := next(reactor, conn); err != nil {
			return err
		}
		metrics.AcceptedConnections.Inc()
		metrics.ActiveNotifiers.Set(float64(reactor.HandlerCount()))
		return nil
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
