package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logging.Logger("metrics")

// Server serves /metrics on its own listener so the range resource stays the
// only path of the header server.
type Server struct {
	srv *http.Server

	mu       sync.Mutex
	listener net.Listener

	started atomic.Bool
}

// NewServer returns a metrics Server for the collectors in g.
func NewServer(addr string, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 2 * time.Second,
		},
	}
}

// Start starts listening. Serving happens in the background.
func (s *Server) Start(context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		log.Warn("cannot start server: already started")
		return nil
	}
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		s.started.Store(false)
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	log.Infow("server started", "listening on", listener.Addr().String())
	//nolint:errcheck
	go s.srv.Serve(listener)
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		log.Warn("cannot stop server: already stopped")
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
	log.Info("server stopped")
	return nil
}

// ListenAddr returns the listen address of the server.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
