package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/config"
)

const requestIDKey = "x-request-id"

type Server struct {
	cfg        config.GRPCConfig
	grpcServer *grpc.Server
}

func New(cfg config.GRPCConfig, svc ToolExecutorServer) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	if cfg.Port <= 0 {
		cfg.Port = 50055
	}
	cfg.Host = host

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(requestInterceptor))
	RegisterToolExecutorServer(gs, svc)
	return &Server{cfg: cfg, grpcServer: gs}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("grpc listening", "addr", lis.Addr().String(), "service", ServiceName)
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown stops gracefully, forcing a stop when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.grpcServer.Stop()
		return ctx.Err()
	}
}

// requestInterceptor attaches request metadata for the audit trail and logs
// each call.
func requestInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	meta := audit.RequestMeta{Transport: "grpc"}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(requestIDKey); len(ids) > 0 {
			meta.RequestID = strings.TrimSpace(ids[0])
		}
	}
	if meta.RequestID == "" {
		meta.RequestID = uuid.NewString()
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		meta.Caller = p.Addr.String()
	}

	start := time.Now()
	resp, err := handler(audit.WithRequest(ctx, meta), req)
	slog.Debug("grpc call", "method", info.FullMethod, "request_id", meta.RequestID, "duration", time.Since(start), "error", err)
	return resp, err
}
