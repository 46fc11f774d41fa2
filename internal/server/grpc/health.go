package grpcserver

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	logpkg "github.com/rzbill/listsync/pkg/log"
)

const healthInterval = 5 * time.Second

// watchHealth mirrors runtime.CheckHealth into the health service until ctx
// is done.
func (s *Server) watchHealth(ctx context.Context) {
	check := func() {
		status := healthpb.HealthCheckResponse_SERVING
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		err := s.rt.CheckHealth(cctx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.Warn("health check failed", logpkg.Err(err))
		}
		s.health.SetServingStatus("", status)
	}
	check()
	t := time.NewTicker(healthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			check()
		}
	}
}
