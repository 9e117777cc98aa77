// Package httpapi exposes the storage gateway over HTTP: a chi router with
// bearer-token auth, JSON error mapping and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkarpov/filevault/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the http.Server with graceful shutdown driven by the
// application context.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
}

// NewServer builds the router and binds it to addr. Auth protects the
// /api/files subtree only; health and metrics stay open.
func NewServer(addr string, gw FileGateway, secretKey []byte, maxBodyBytes int64, logger logging.Logger) *Server {
	h := &handlers{gw: gw, maxBodyBytes: maxBodyBytes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/files", func(r chi.Router) {
		r.Use(bearerAuth(secretKey))
		r.Post("/", h.upload)
		r.Get("/", h.list)
		r.Get("/stats", h.stats)
		r.Get("/storage/usage", h.storageUsage)
		r.Get("/{id}/download", h.download)
		r.Delete("/{id}", h.deleteOne)
		r.Delete("/", h.deleteAll)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger.With("component", "http"),
	}
}

// Run serves until ctx is cancelled or the listener fails, then drains
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "http server listening", "addr", s.httpServer.Addr)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info(shutdownCtx, "http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}
