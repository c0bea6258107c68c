package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCHealth is a gRPC server exposing the standard health service, so
// orchestrators can probe the gateway without speaking HTTP
type GRPCHealth struct {
	Server *grpc.Server
	health *health.Server
}

// NewGRPCHealth creates the server with health and reflection registered.
// Status starts NOT_SERVING until SetServing is called.
func NewGRPCHealth() *GRPCHealth {
	server := grpc.NewServer(grpc.UnaryInterceptor(UnaryServerInterceptor()))

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// grpcurl and friends
	reflection.Register(server)

	return &GRPCHealth{Server: server, health: hs}
}

// SetServing flips the overall status
func (g *GRPCHealth) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", st)
}

// Watch re-runs checks every interval and reports the aggregate as the
// serving status until ctx is done
func (g *GRPCHealth) Watch(ctx context.Context, checks map[string]HealthCheckFunc, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, ok := RunChecks(probeCtx, checks)
		g.SetServing(ok)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// Stop marks the service NOT_SERVING and drains in-flight calls
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.Server.GracefulStop()
}

// UnaryServerInterceptor logs every unary call with its status code
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		st, _ := status.FromError(err)

		log.Debug().
			Str("method", info.FullMethod).
			Str("code", st.Code().String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC unary call")
		return resp, err
	}
}
