package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdown = 5 * time.Second

// ServeMetrics exposes gatherer on addr until ctx ends. It is a no-op when
// addr is empty. The returned channel yields the listener's exit error.
func (rt *Runtime) ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer) <-chan error {
	done := make(chan error, 1)
	if addr == "" {
		close(done)
		return done
	}
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdown)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		defer close(done)
		rt.Logger.Info(rt.Logger.WithField(ctx, "addr", addr), "metrics listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error(ctx, "metrics listener failed", err)
			done <- err
		}
	}()
	return done
}
