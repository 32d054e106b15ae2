// Package relay runs the sync relay: a gRPC endpoint that stores the rows
// field devices push and serves them back on pull. Storage is any
// remote.Client (in memory or Postgres).
package relay

import (
	"context"
	"net"

	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"github.com/BrennanVollmar/vplm/internal/remote/grpcremote"
	"google.golang.org/grpc"
)

type Server struct {
	address   string
	backend   remote.Client
	logger    logging.Logger
	jwtSecret []byte
}

// NewServer builds a relay on address. An empty secretKey disables token
// checks.
func NewServer(address string, l logging.Logger, backend remote.Client, secretKey string) *Server {
	return &Server{
		address:   address,
		backend:   backend,
		logger:    l.With("module", "relay"),
		jwtSecret: []byte(secretKey),
	}
}

func (s *Server) newGRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	grpcremote.Register(srv, s.backend, s.logger)
	return srv
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping relay...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting relay", "address", lis.Addr().String())

	return srv.Serve(lis)
}
