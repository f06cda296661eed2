// Package server exposes the compact header store as a byte range HTTP
// resource.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/rs/cors"

	"github.com/yourusername/compressedheaders/internal/metrics"
)

var log = logging.Logger("server")

// DefaultPath is the resource the store is served at.
const DefaultPath = "/bitcoin-headers"

const (
	headerAcceptRanges  = "Accept-Ranges"
	headerContentLength = "Content-Length"
	headerContentRange  = "Content-Range"
	headerContentType   = "Content-Type"
	headerRange         = "Range"
	headerTotalLength   = "X-Total-Length"

	octetStream = "application/octet-stream"
)

// Store is the read side of the compact header store.
type Store interface {
	Len() uint64
	ReadRange(start, end uint64) ([]byte, error)
}

// Config configures a Server.
type Config struct {
	// Addr is the host:port to listen on
	Addr string
	// Path is the resource path, DefaultPath when empty
	Path string
	// AllowedOrigins lists CORS origins. Empty disables CORS handling.
	AllowedOrigins []string
}

// Server serves a single resource: the bytes of the store, whole or by range.
type Server struct {
	srv    *http.Server
	router *mux.Router

	mu       sync.Mutex
	listener net.Listener

	store   Store
	metrics *metrics.Metrics

	started atomic.Bool
}

// NewServer returns a Server reading from store. m may be nil.
func NewServer(cfg Config, store Store, m *metrics.Metrics) *Server {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	s := &Server{
		router:  mux.NewRouter(),
		store:   store,
		metrics: m,
	}
	s.router.HandleFunc(path, s.serveHeaders)
	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
	s.router.Use(logRequests)

	var handler http.Handler = s.router
	if len(cfg.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
			AllowedHeaders: []string{headerRange},
			ExposedHeaders: []string{headerAcceptRanges, headerContentLength, headerContentRange, headerTotalLength},
		}).Handler(s.router)
	}

	s.srv = &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
		// the amount of time allowed to read request headers. set to the default 2 seconds
		ReadHeaderTimeout: 2 * time.Second,
	}
	return s
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
	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("serving headers", "err", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
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

// ServeHTTP serves inbound requests on the Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.srv.Handler.ServeHTTP(w, r)
}

func (s *Server) serveHeaders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.notFound(w, r)
		return
	}

	specs := r.Header.Values(headerRange)
	switch len(specs) {
	case 0:
		s.serveInfo(w, r)
		return
	case 1:
	default:
		s.reject(w, r, ErrUnsupportedRange)
		return
	}

	rng, err := ParseRange(specs[0], s.store.Len())
	if err != nil {
		s.reject(w, r, err)
		return
	}
	// the store only grows, so a range valid against the length read above
	// is still valid here
	data, err := s.store.ReadRange(rng.Start, rng.End)
	if err != nil {
		s.reject(w, r, err)
		return
	}

	h := w.Header()
	h.Set(headerAcceptRanges, bytesUnit)
	h.Set(headerContentType, octetStream)
	h.Set(headerContentLength, strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	s.metrics.RangeRequest(metrics.TransportHTTP, metrics.ResultOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		log.Debugw("writing range", "range", rng, "remote", r.RemoteAddr, "err", err)
	}
}

// serveInfo answers a request without a range: no body, only the total length.
func (s *Server) serveInfo(w http.ResponseWriter, r *http.Request) {
	length := strconv.FormatUint(s.store.Len(), 10)

	h := w.Header()
	h.Set(headerAcceptRanges, bytesUnit)
	h.Set(headerTotalLength, length)
	h.Set(headerContentRange, bytesUnit+" */"+length)
	if r.Method == http.MethodHead {
		h.Set(headerContentLength, length)
	} else {
		h.Set(headerContentLength, "0")
	}
	w.WriteHeader(http.StatusOK)
	s.metrics.RangeRequest(metrics.TransportHTTP, metrics.ResultInfo)
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, err error) {
	log.Debugw("rejecting range", "range", r.Header.Values(headerRange), "remote", r.RemoteAddr, "err", err)
	s.metrics.RangeRequest(metrics.TransportHTTP, metrics.ResultRejected)
	http.NotFound(w, r)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.metrics.RangeRequest(metrics.TransportHTTP, metrics.ResultNotFound)
	http.NotFound(w, r)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugw("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
