package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dsh2dsh/nbkp/config"
)

// Server is a running /metrics HTTP listener.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Start opens mon.Listen and serves /metrics on it. Returns nil if mon
// is nil, matching the manifest treating Global.Monitoring as optional.
func Start(mon *config.PrometheusMonitoring) (*Server, error) {
	if mon == nil {
		return nil, nil
	}

	listener, err := net.Listen("tcp", mon.Listen)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen on %s: %w", mon.Listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
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
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
