// Package grpcapi serves the standard gRPC health service. The overall
// status is SERVING while the relay runs; the uplink service follows the
// connection state.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"

	"tilt-relay/internal/domain"
	"tilt-relay/internal/infrastructure/logging"
)

const (
	defaultShutdownTimeout = 10 * time.Second

	// UplinkService is the health service name tracking the upload link.
	UplinkService = "tilt.relay.Uplink"

	correlationHeader = "x-correlation-id"
)

// Options describes how the server listens.
type Options struct {
	// Address is used when Listener is nil, e.g. ":50051".
	Address string
	// Listener overrides Address, mainly for bufconn tests.
	Listener        net.Listener
	ShutdownTimeout time.Duration
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Server wraps the gRPC server and its lifecycle.
type Server struct {
	logger          *logging.Logger
	grpcServer      *grpc.Server
	health          *health.Server
	listener        net.Listener
	shutdownTimeout time.Duration
}

// NewServer creates the health server with logging and metrics interceptors.
func NewServer(logger *logging.Logger, opts Options) (*Server, error) {
	listener := opts.Listener
	if listener == nil {
		if opts.Address == "" {
			return nil, errors.New("address is required")
		}
		var err error
		listener, err = net.Listen("tcp", opts.Address)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", opts.Address, err)
		}
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	serverMetrics := grpc_prometheus.NewServerMetrics()
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if err := registerer.Register(serverMetrics); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			_ = listener.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		existing, ok := already.ExistingCollector.(*grpc_prometheus.ServerMetrics)
		if !ok {
			_ = listener.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		serverMetrics = existing
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingUnaryInterceptor(logger),
			serverMetrics.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			loggingStreamInterceptor(logger),
			serverMetrics.StreamServerInterceptor(),
		),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(UplinkService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	serverMetrics.InitializeMetrics(server)

	return &Server{
		logger:          logger,
		grpcServer:      server,
		health:          healthServer,
		listener:        listener,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

// ObserveConnection updates the uplink status. It matches the connection
// manager's observer signature.
func (s *Server) ObserveConnection(state domain.ConnectionState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state.Kind == domain.Connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(UplinkService, status)
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the server until ctx is done, then stops it gracefully.
func (s *Server) Serve(ctx context.Context) error {
	defer s.listener.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(s.listener)
	}()

	s.logger.Info("gRPC server started", "address", s.listener.Addr().String())

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		shutdownErr := s.shutdown()
		serveErr := <-errCh
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			serveErr = nil
		}
		if serveErr != nil && shutdownErr == nil {
			shutdownErr = serveErr
		}
		return shutdownErr
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func (s *Server) shutdown() error {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.Info("gRPC server stopped gracefully")
		return nil
	case <-timer.C:
		s.logger.Warn("gRPC server graceful shutdown timed out, forcing stop", "timeout", s.shutdownTimeout.String())
		s.grpcServer.Stop()
		return fmt.Errorf("graceful shutdown exceeded %s", s.shutdownTimeout)
	}
}

func loggingUnaryInterceptor(logger *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		log := withCorrelation(logger, ctx)
		fields := logging.AttachError(err, "method", info.FullMethod, "duration", time.Since(start).String())
		if err != nil {
			log.Warn("gRPC unary call failed", fields...)
		} else {
			log.Debug("gRPC unary call completed", fields...)
		}
		return resp, err
	}
}

func loggingStreamInterceptor(logger *logging.Logger) grpc.StreamServerInterceptor {
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, stream)

		log := withCorrelation(logger, stream.Context())
		fields := logging.AttachError(err, "method", info.FullMethod, "duration", time.Since(start).String())
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("gRPC stream call failed", fields...)
		} else {
			log.Debug("gRPC stream call completed", fields...)
		}
		return err
	}
}

func withCorrelation(logger *logging.Logger, ctx context.Context) *logging.Logger {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return logger
	}
	if ids := md.Get(correlationHeader); len(ids) > 0 && ids[0] != "" {
		return logger.WithCorrelationID(ids[0])
	}
	return logger
}
