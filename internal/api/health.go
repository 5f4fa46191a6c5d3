package api

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"signal-core/internal/engine"
	"signal-core/internal/events"
)

// HealthServiceName is the service name reported alongside the overall "".
const HealthServiceName = "signal-core.Engine"

// HealthServer exposes the standard gRPC health service. It reports
// NOT_SERVING until the engine is started and SERVING afterwards.
type HealthServer struct {
	engine engine.Service
	bus    *events.Bus
	health *health.Server
	grpc   *grpc.Server
	log    zerolog.Logger
}

func NewHealthServer(svc engine.Service, bus *events.Bus, logger zerolog.Logger) *HealthServer {
	h := &HealthServer{
		engine: svc,
		bus:    bus,
		health: health.NewServer(),
		grpc:   grpc.NewServer(),
		log:    logger.With().Str("component", "grpc_health").Logger(),
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.sync()
	return h
}

// sync mirrors the engine run state into the health table.
func (h *HealthServer) sync() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.engine.IsRunning() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthServiceName, status)
}

// Serve listens on addr and keeps the reported status current until ctx is
// cancelled.
func (h *HealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.ServeListener(ctx, lis)
}

// ServeListener is Serve on an existing listener.
func (h *HealthServer) ServeListener(ctx context.Context, lis net.Listener) error {
	go h.watch(ctx)

	errCh := make(chan error, 1)
	go func() {
		h.log.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")
		errCh <- h.grpc.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		h.health.Shutdown()
		h.grpc.GracefulStop()
		return nil
	}
}

func (h *HealthServer) watch(ctx context.Context) {
	var started <-chan any
	if h.bus != nil {
		ch, unsub := h.bus.Subscribe(events.EventEngineStarted, 1)
		defer unsub()
		started = ch
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-started:
		case <-ticker.C:
		}
		h.sync()
	}
}
