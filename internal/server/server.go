package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/metrics"
	"github.com/oggyb/outreach-campaigns/internal/middleware"
	routes "github.com/oggyb/outreach-campaigns/internal/router"
	"go.uber.org/zap"
)

// Server owns the underlying http.Server instance.
type Server struct {
	http *http.Server
}

// New creates a new HTTP server bound to the given address and configured
// with the provided application dependencies and middleware chain. A nil m
// disables request metrics.
func New(addr string, deps routes.AppDeps, m *metrics.Metrics, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	if m != nil && deps.Metrics == nil {
		deps.Metrics = m.Handler()
	}
	routes.Register(mux, deps)

	root := middleware.Chain(
		mux,
		middleware.Recover(logger),
		middleware.RequestLogger(logger),
		middleware.Metrics(m),
	)

	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve runs the HTTP server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.http.Serve(ln)
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight
// requests to complete until the given context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
