// Package grpc hosts the gRPC side of the server: the standard health
// service plus an auth gate applied to every other registered method.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Gate authenticates bearer tokens. *services.Authenticator implements it.
type Gate interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type GRPCServer struct {
	address     string
	serviceName string
	gate        Gate
	logger      logging.Logger
	health      *health.Server
	registrars  []func(grpc.ServiceRegistrar)
}

func NewGRPCServer(a, serviceName string, l logging.Logger, gate Gate) *GRPCServer {
	return &GRPCServer{
		address:     a,
		serviceName: serviceName,
		gate:        gate,
		logger:      l.With("module", "grpc_server"),
		health:      health.NewServer(),
	}
}

// Register adds a service registration run when the server starts. Methods
// of such services require a valid access token.
func (s *GRPCServer) Register(fn func(grpc.ServiceRegistrar)) {
	s.registrars = append(s.registrars, fn)
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.unaryAuthInterceptor),
		grpc.ChainStreamInterceptor(s.streamAuthInterceptor),
	)

	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)
	for _, fn := range s.registrars {
		fn(srv)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(s.serviceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
