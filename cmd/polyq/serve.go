package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/shipq/polyq/httpserver"
	"github.com/shipq/polyq/observe"
)

// serveOptions holds flags for the serve command.
type serveOptions struct {
	*rootOptions
	Addr string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries over HTTP",
		Long: `Connect every backend and serve:

  POST /query     run a serialized query, routed by intent or "backend"
  POST /compile   show the native form without running it
  GET  /healthz   liveness and registered backends
  GET  /metrics   Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.rootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close(context.WithoutCancel(ctx))

	if err := s.connect(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	prom := observe.NewPrometheus()
	prom.MustRegister(reg)
	s.router.Observe(prom)
	s.router.Observe(observe.NewTracer(otel.GetTracerProvider()))

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           httpserver.Handler(s.router, httpserver.Options{Logger: s.logger, Gatherer: reg}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("server_started", "addr", opts.Addr, "backends", s.router.Names())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server_stopped")
	return nil
}
