// Package grpc serves the compact header store over gRPC.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yourusername/compressedheaders/internal/compact"
	"github.com/yourusername/compressedheaders/internal/metrics"
	"github.com/yourusername/compressedheaders/internal/server"
	"github.com/yourusername/compressedheaders/internal/storage"
)

var log = logging.Logger("grpc")

// SyncStatus reports the progress of the sync engine.
type SyncStatus interface {
	TipHeight() uint64
}

// Server implements HeaderServiceServer on top of the compact store.
type Server struct {
	store   server.Store
	status  SyncStatus
	reader  *compact.Reader
	metrics *metrics.Metrics

	mu         sync.Mutex
	grpcServer *grpc.Server
	listener   net.Listener
}

var _ HeaderServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server. status and m may be nil.
func NewServer(store server.Store, status SyncStatus, m *metrics.Metrics) (*Server, error) {
	reader, err := compact.NewReader(store, compact.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Server{
		store:   store,
		status:  status,
		reader:  reader,
		metrics: m,
	}, nil
}

// Start starts listening on address. Serving happens in the background.
func (s *Server) Start(_ context.Context, address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.serve(lis)
	log.Infow("gRPC server listening", "address", lis.Addr().String())
	return nil
}

func (s *Server) serve(lis net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grpcServer = grpc.NewServer()
	RegisterHeaderServiceServer(s.grpcServer, s)
	s.listener = lis

	srv := s.grpcServer
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Errorw("serving gRPC", "err", err)
		}
	}()
}

// Stop stops the gRPC server, letting in-flight calls finish.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
		s.grpcServer = nil
		s.listener = nil
		log.Info("gRPC server stopped")
	}
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

// GetInfo returns store and sync progress
func (s *Server) GetInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	fields := map[string]any{
		InfoStoreBytes:    float64(s.store.Len()),
		InfoSyncedHeaders: float64(compact.Headers(s.store.Len())),
		InfoTipHeight:     float64(0),
	}
	if s.status != nil {
		fields[InfoTipHeight] = float64(s.status.TipHeight())
	}
	info, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return info, nil
}

// GetRange returns the bytes selected by a Range header value
func (s *Server) GetRange(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	rng, err := server.ParseRange(req.GetValue(), s.store.Len())
	if err != nil {
		s.metrics.RangeRequest(metrics.TransportGRPC, metrics.ResultRejected)
		return nil, rangeError(err)
	}
	data, err := s.store.ReadRange(rng.Start, rng.End)
	if err != nil {
		s.metrics.RangeRequest(metrics.TransportGRPC, metrics.ResultRejected)
		return nil, rangeError(err)
	}
	s.metrics.RangeRequest(metrics.TransportGRPC, metrics.ResultOK)
	return wrapperspb.Bytes(data), nil
}

// GetHeader returns the full 80 byte header at a height
func (s *Server) GetHeader(_ context.Context, req *wrapperspb.UInt64Value) (*wrapperspb.BytesValue, error) {
	h, err := s.reader.HeaderAt(req.GetValue())
	if err != nil {
		s.metrics.RangeRequest(metrics.TransportGRPC, metrics.ResultRejected)
		return nil, rangeError(err)
	}
	s.metrics.RangeRequest(metrics.TransportGRPC, metrics.ResultOK)
	raw := h.Serialize()
	return wrapperspb.Bytes(raw[:]), nil
}

func rangeError(err error) error {
	switch {
	case errors.Is(err, server.ErrNotSatisfiable),
		errors.Is(err, storage.ErrOutOfRange),
		errors.Is(err, compact.ErrOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, server.ErrInvalidRange),
		errors.Is(err, server.ErrUnsupportedRange):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		log.Errorw("reading store", "err", err)
		return status.Error(codes.Internal, err.Error())
	}
}
