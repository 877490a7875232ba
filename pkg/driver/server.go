package driver

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/nlcache/nlcache/pkg/log"
)

// Server hosts the CSI services on a unix socket. The orchestrator's
// sidecars (provisioner, registrar) are the only clients.
type Server struct {
	endpoint string
	grpc     *grpc.Server
	logger   zerolog.Logger
}

// NewServer creates a CSI server. Any of the service arguments may be nil;
// only the non-nil ones are registered, so the controller and node
// deployments can expose different service sets over the same binary.
func NewServer(endpoint string, identity *IdentityServer, controller *ControllerServer, node *NodeServer) *Server {
	s := &Server{
		endpoint: endpoint,
		grpc:     grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor())),
		logger:   log.WithComponent("csi-server"),
	}

	if identity != nil {
		csi.RegisterIdentityServer(s.grpc, identity)
	}
	if controller != nil {
		csi.RegisterControllerServer(s.grpc, controller)
	}
	if node != nil {
		csi.RegisterNodeServer(s.grpc, node)
	}
	return s
}

// Start listens on the configured endpoint and serves until Stop. A stale
// socket file from a previous run is removed before listening.
func (s *Server) Start() error {
	network, address := parseEndpoint(s.endpoint)

	if network == "unix" {
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale socket %s: %w", address, err)
		}
	}

	lis, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.endpoint, err)
	}

	s.logger.Info().Str("endpoint", s.endpoint).Msg("CSI server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the server
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

// parseEndpoint splits "unix:///csi/csi.sock" or "tcp://addr:port" into
// network and address; a bare path is treated as a unix socket
func parseEndpoint(endpoint string) (string, string) {
	if strings.HasPrefix(endpoint, "unix://") {
		return "unix", strings.TrimPrefix(endpoint, "unix://")
	}
	if strings.HasPrefix(endpoint, "tcp://") {
		return "tcp", strings.TrimPrefix(endpoint, "tcp://")
	}
	return "unix", endpoint
}

// loggingInterceptor logs every RPC at debug level and failures at warn
func loggingInterceptor() grpc.UnaryServerInterceptor {
	logger := log.WithComponent("csi-rpc")
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn().Err(err).Str("method", info.FullMethod).
				Dur("duration", time.Since(start)).Msg("RPC failed")
		} else {
			logger.Debug().Str("method", info.FullMethod).
				Dur("duration", time.Since(start)).Msg("RPC handled")
		}
		return resp, err
	}
}
