package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/dtroode/sheetkeeper/internal/model"
)

var _ model.Server = (*GRPCServer)(nil)

// GRPCServer runs the health service on one address.
type GRPCServer struct {
	server *grpc.Server
	addr   string
}

func NewGRPCServer(server *grpc.Server, addr string) *GRPCServer {
	return &GRPCServer{server: server, addr: addr}
}

// Start listens through securityLayer and serves until Stop is called.
func (s *GRPCServer) Start(securityLayer model.SecurityLayer) error {
	listener, err := securityLayer.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.server.Serve(listener)
}

// Stop waits for in-flight calls to finish. Open health watch streams never
// finish on their own, so once ctx expires the remaining calls are cut off.
func (s *GRPCServer) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		<-done
		return fmt.Errorf("forced gRPC server stop: %w", ctx.Err())
	}
}

func (s *GRPCServer) Address() string {
	return s.addr
}
