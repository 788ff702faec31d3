package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tilt-relay/internal/infrastructure/metrics"
)

// Logger defines the logging behaviour required by the HTTP API.
type Logger interface {
	Warn(msg string, args ...any)
}

// Server exposes the status API.
type Server struct {
	router chi.Router
}

// NewServer constructs a chi based HTTP server over the status source.
func NewServer(source StatusSource, logger Logger) *Server {
	router := chi.NewRouter()
	router.Use(metrics.HTTPMiddleware(func(r *http.Request) string {
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				return pattern
			}
		}
		return "unmatched"
	}))

	handler := &handler{status: source, logger: logger}
	registerRoutes(router, handler)

	return &Server{router: router}
}

// ServeHTTP allows Server to satisfy the http.Handler interface directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// NewHTTPServer wraps handler with the relay's server timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
