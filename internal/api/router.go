// Package api serves the read-only status and log viewer endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deps selects which routes are mounted. Nil or empty members leave their
// routes out.
type Deps struct {
	Service string
	History EventHistory
	Metrics MetricsSource
	LogPath string

	// TrustedProxies may set X-Forwarded-For and X-Real-IP
	TrustedProxies []string
}

// Router sets up the API router for the given dependencies
func Router(deps Deps, log *zap.Logger) *mux.Router {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Service == "" {
		deps.Service = "sentinel-audit"
	}

	router := mux.NewRouter()
	router.Use(SecurityHeadersMiddleware)
	ips := NewIPResolver(deps.TrustedProxies...)
	router.Use(LoggingMiddleware(log.Named("api"), ips))

	// 10 requests per second with a burst of 20 per client
	router.Use(NewRateLimiter(rate.Limit(10), 20).Middleware(ips))

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", HealthHandler(deps.Service)).Methods(http.MethodGet)

	if deps.History != nil {
		api.HandleFunc("/events", GetEventsHandler(deps.History)).Methods(http.MethodGet)
	}
	if deps.Metrics != nil {
		api.HandleFunc("/metrics", GetMetricsHandler(deps.Metrics)).Methods(http.MethodGet)
	}
	if deps.LogPath != "" {
		api.HandleFunc("/logs", GetLogsHandler(deps.LogPath)).Methods(http.MethodGet)
		api.HandleFunc("/report", GetReportHandler(deps.LogPath)).Methods(http.MethodGet)
	}

	return router
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}
