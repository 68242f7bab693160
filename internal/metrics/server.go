// Package metrics implements the pipeline's Prometheus instrumentation and
// the HTTP endpoint that serves it.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options contains configuration for the metrics server.
type Options struct {
	Enabled      bool
	Path         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("metrics port must be between 1 and 65535, got %d", o.Port)
	}
	if !strings.HasPrefix(o.Path, "/") {
		return fmt.Errorf("metrics path must start with '/', got %q", o.Path)
	}
	if o.ReadTimeout < 0 || o.WriteTimeout < 0 || o.IdleTimeout < 0 {
		return fmt.Errorf("metrics timeouts cannot be negative")
	}
	return nil
}

// NewOptions returns sensible defaults.
func NewOptions() *Options {
	return &Options{
		Enabled:      true,
		Path:         "/metrics",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is a running metrics endpoint.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Start listens on the configured port and serves the gatherer's metrics.
func Start(opt *Options, g prometheus.Gatherer) (*Server, error) {
	if opt == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}

	listenAddr := fmt.Sprintf(":%d", opt.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(fmt.Sprintf("GET %s", opt.Path), promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	s := &Server{
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  opt.ReadTimeout,
			WriteTimeout: opt.WriteTimeout,
			IdleTimeout:  opt.IdleTimeout,
		},
		listener: listener,
		done:     make(chan error, 1),
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.done <- err
		}
		close(s.done)
	}()

	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Wait blocks until the server stops.
func (s *Server) Wait() error {
	return <-s.done
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
