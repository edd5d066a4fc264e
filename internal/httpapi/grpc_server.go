package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"archmarket.io/internal/authz"
	"archmarket.io/internal/identity"
	"archmarket.io/internal/obs"
)

const healthMethodPrefix = "/grpc.health.v1.Health/"

// GRPCServer hosts the standard health service. Every other method registered
// on Server() goes through the bearer-token interceptors.
type GRPCServer struct {
	srv       *grpc.Server
	health    *health.Server
	readiness readinessChecker
	logger    *slog.Logger
}

// NewGRPCServer creates the gRPC server with auth interceptors installed.
func NewGRPCServer(resolver *identity.Resolver, r readinessChecker, logger *slog.Logger, opts ...grpc.ServerOption) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	opts = append(opts,
		grpc.ChainUnaryInterceptor(UnaryAuthInterceptor(resolver)),
		grpc.ChainStreamInterceptor(StreamAuthInterceptor(resolver)),
	)
	s := &GRPCServer{
		srv:       grpc.NewServer(opts...),
		health:    health.NewServer(),
		readiness: r,
		logger:    obs.ResolveLogger(logger),
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Server exposes the underlying server for service registration.
func (s *GRPCServer) Server() *grpc.Server { return s.srv }

func (s *GRPCServer) Serve(lis net.Listener) error { return s.srv.Serve(lis) }

// GracefulStop marks every service NOT_SERVING and drains in-flight calls.
func (s *GRPCServer) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

// SyncReadiness runs the readiness check once and publishes the result.
func (s *GRPCServer) SyncReadiness(ctx context.Context) bool {
	st := healthpb.HealthCheckResponse_SERVING
	err := s.readiness.Check(ctx)
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("readiness probe failed", "event", "not_ready", "module", "grpc", "error", err)
	}
	s.health.SetServingStatus(serviceName, st)
	s.health.SetServingStatus("", st)
	obs.SetReady(err == nil)
	return err == nil
}

// WatchReadiness calls SyncReadiness every interval until ctx is done.
func (s *GRPCServer) WatchReadiness(ctx context.Context, interval time.Duration) {
	s.SyncReadiness(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SyncReadiness(ctx)
		}
	}
}

// metadataHeaders adapts incoming gRPC metadata to identity.Headers.
type metadataHeaders metadata.MD

func (h metadataHeaders) Get(key string) string {
	vals := metadata.MD(h).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func authenticateRPC(ctx context.Context, resolver *identity.Resolver) (context.Context, error) {
	if resolver == nil {
		return nil, status.Error(codes.Unauthenticated, msgAuthRequired)
	}
	md, _ := metadata.FromIncomingContext(ctx)
	p, err := resolver.Authenticate(ctx, metadataHeaders(md))
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, msgAuthRequired)
	}
	return identity.ContextWithPrincipal(ctx, p), nil
}

// rpcError maps domain errors returned by handlers to status codes.
func rpcError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrAuthenticationFailed):
		return status.Error(codes.Unauthenticated, msgAuthRequired)
	case errors.Is(err, authz.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, msgAccessDenied)
	}
	return err
}

// UnaryAuthInterceptor requires a valid bearer token in the "authorization"
// metadata for every method except the health service.
func UnaryAuthInterceptor(resolver *identity.Resolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthMethodPrefix) {
			return handler(ctx, req)
		}
		authed, err := authenticateRPC(ctx, resolver)
		if err != nil {
			return nil, err
		}
		resp, err := handler(authed, req)
		return resp, rpcError(err)
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s authedStream) Context() context.Context { return s.ctx }

// StreamAuthInterceptor is UnaryAuthInterceptor for streaming methods.
func StreamAuthInterceptor(resolver *identity.Resolver) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if strings.HasPrefix(info.FullMethod, healthMethodPrefix) {
			return handler(srv, ss)
		}
		authed, err := authenticateRPC(ss.Context(), resolver)
		if err != nil {
			return err
		}
		return rpcError(handler(srv, authedStream{ServerStream: ss, ctx: authed}))
	}
}
