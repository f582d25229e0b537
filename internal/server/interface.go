package server

import (
	"context"
	"net/http"
)

// Service is the relay's HTTP listener.
type Service interface {
	// Start listens and serves until a fatal error occurs or ctx is canceled.
	Start(ctx context.Context) error

	// Stop shuts the listener down, waiting for requests to drain or ctx to
	// expire.
	Stop(ctx context.Context) error

	// RegisterHTTPHandler registers a handler for a specific pattern.
	// This must be called BEFORE Start().
	RegisterHTTPHandler(pattern string, handler http.Handler)

	// HTTPMux returns the underlying HTTP ServeMux for direct route registration.
	// This must be called BEFORE Start().
	HTTPMux() *http.ServeMux

	// Addr returns the bound listen address, or "" before Start.
	Addr() string
}
