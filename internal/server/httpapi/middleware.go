package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dkarpov/filevault/internal/logging"
	"github.com/dkarpov/filevault/internal/server/auth"
)

// contextKey avoids collisions with other packages' context values.
type contextKey string

const contextKeyOwnerID contextKey = "owner_id"

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "filevault_http_requests_total",
	Help: "HTTP requests by method and status code.",
}, []string{"method", "code"})

// bearerAuth validates the Authorization header and puts the owner id into
// the request context. Everything downstream can assume an authenticated
// owner.
func bearerAuth(secretKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeErrorStatus(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				writeErrorStatus(w, http.StatusUnauthorized, "expected Bearer token")
				return
			}

			ownerID, err := auth.GetOwnerIDFromToken(parts[1], secretKey)
			if err != nil {
				writeErrorStatus(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyOwnerID, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ownerIDFromContext returns the authenticated owner id, zero when the auth
// middleware did not run.
func ownerIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(contextKeyOwnerID).(int64)
	return id
}

// requestLogger logs one line per request and feeds the request counter.
func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	log := logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
			log.Info(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
