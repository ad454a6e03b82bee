// Package grpcserver exposes pkg/reactor's operator command surface over
// gRPC, the gRPC half of component 10 (Boundary) from SPEC_FULL.md §2. It
// forces the JSON codec (codec.go) rather than requiring a .proto build
// step, and gates the mutating RPCs behind a bearer JWT (auth.go).
package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"

	"github.com/p2pim/node/internal/logger"
	"github.com/p2pim/node/pkg/reactor"
)

// Config configures the gRPC boundary server.
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// AuthSecret, when non-empty, is the HMAC secret mutating RPCs'
	// bearer JWTs must verify against.
	AuthSecret string
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 9090
	}
}

// Server wraps a grpc.Server bound to the reactor's command surface, with
// the same Start(ctx)/Stop(ctx) lifecycle shape as the teacher's HTTP API
// server.
type Server struct {
	config       Config
	grpcServer   *grpc.Server
	shutdownOnce sync.Once
}

// New creates a gRPC boundary server. The server is created in a stopped
// state; call Start to begin serving.
func New(config Config, r *reactor.Reactor) *Server {
	config.applyDefaults()

	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.UnaryInterceptor(authInterceptor(config.AuthSecret)),
	)
	grpcServer.RegisterService(&serviceDesc, &nodeService{reactor: r})

	return &Server{config: config, grpcServer: grpcServer}
}

// Start listens on the configured port and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("grpcserver: listening on port %d: %w", s.config.Port, err)
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("gRPC boundary server listening", slog.Int("port", s.config.Port))
		if err := s.grpcServer.Serve(lis); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("gRPC boundary server shutdown signal received")
		s.Stop()
		return nil
	case err := <-errChan:
		return fmt.Errorf("grpcserver: serve failed: %w", err)
	}
}

// Stop gracefully stops the server. Safe to call multiple times.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		s.grpcServer.GracefulStop()
		logger.Info("gRPC boundary server stopped gracefully")
	})
}
