package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/neurlang/fakevoice/health"
	"github.com/neurlang/fakevoice/observe"
	"github.com/neurlang/fakevoice/server"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the HTTP service: the upload page on /, POST /predict,
figures under /static, PDF reports under /reports, stored analyses under
/analyses, probes on /healthz and /readyz and Prometheus metrics on /metrics.

The PORT environment variable overrides the configured listen port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownOTel(sctx); err != nil {
					slog.Error("otel shutdown", "err", err)
				}
			}()
			metrics := observe.DefaultMetrics()

			a, err := build(ctx, cfg, buildOptions{metrics: metrics})
			if err != nil {
				return err
			}
			defer a.Close()

			gin.SetMode(gin.ReleaseMode)
			handler := server.New(server.Config{
				Detector:       a.detector,
				Store:          a.store,
				History:        a.history,
				Metrics:        metrics,
				MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
				ListLimit:      cfg.History.ListLimit,
				Checkers: []health.Checker{
					{Name: "model", Check: a.checkModel},
					{Name: "storage", Check: a.store.Ping},
					{Name: "history", Check: a.history.Ping},
				},
			})

			srv := &http.Server{
				Addr:              cfg.Server.ListenAddr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				slog.Info("listening", "addr", srv.Addr)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		},
	}
}
