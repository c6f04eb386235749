// Package httpserver provides the operational HTTP endpoint for
// emberdb: Prometheus metrics, health, and build information. It is
// separate from the client-facing RESP listener so scrapes and probes
// never compete with data traffic.
package httpserver

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the operational HTTP listener.
type Server struct {
	httpServer *http.Server
}

// New creates the server for the given address and handler.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe starts the server and blocks.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
