// Package server builds the chi router and runs the HTTP server with
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/health"
	middleware "github.com/mohammed-shakir/h3-facility-locator/internal/core/middleware"
)

type Options struct {
	Logger *slog.Logger
	Checks health.Checks
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
	// Mount registers the application routes.
	Mount func(chi.Router)
}

func Router(o Options) http.Handler {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recover(o.Logger))
	r.Use(middleware.Logging(o.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(o.Checks))
	if o.Metrics != nil {
		path := o.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, o.Metrics)
	}
	if o.Mount != nil {
		o.Mount(r)
	}
	return r
}

// Run serves handler on addr until ctx is cancelled, then drains for up to
// ten seconds.
func Run(ctx context.Context, addr string, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("http server stopped", "addr", addr)
		return nil
	case err := <-errCh:
		return err
	}
}
