package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/eventbooking/config"
	"github.com/Domenick1991/eventbooking/internal/logger"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

const readinessInterval = 15 * time.Second

// Check is a dependency polled for readiness (postgres, redis, kafka).
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Servers struct {
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	conn       *grpc.ClientConn
	checks     []Check
}

// Run starts the gRPC health server and the HTTP server (API, /metrics, /healthz)
// and blocks until ctx is canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, api http.Handler, reg *prometheus.Registry, checks ...Check) error {
	s, err := newServers(cfg, api, reg, checks)
	if err != nil {
		return err
	}
	defer s.conn.Close()

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() { errCh <- s.grpcServer.Serve(lis) }()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.checkReadiness(ctx)
	ticker := time.NewTicker(readinessInterval)
	defer ticker.Stop()

	logger.Get().Info("servers started", "http", cfg.HTTP.Address, "grpc", cfg.GRPC.Address)

	for {
		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.checkReadiness(ctx)
		case <-ctx.Done():
			return s.shutdown()
		}
	}
}

func newServers(cfg *config.Config, api http.Handler, reg *prometheus.Registry, checks []Check) (*Servers, error) {
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	conn, err := grpc.NewClient(cfg.GRPC.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial gRPC %s: %w", cfg.GRPC.Address, err)
	}

	gw := runtime.NewServeMux()
	if err := gw.HandlePath(http.MethodGet, "/healthz", healthzHandler(healthpb.NewHealthClient(conn))); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register healthz: %w", err)
	}

	handler := http.NewServeMux()
	handler.Handle("/api/", api)
	handler.Handle("/healthz", gw)
	handler.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &Servers{
		grpcServer: grpcSrv,
		health:     healthSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		conn:   conn,
		checks: checks,
	}, nil
}

// checkReadiness marks the server NOT_SERVING while any dependency is down.
func (s *Servers) checkReadiness(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.checks {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Ping(pingCtx)
		cancel()

		componentStatus := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			logger.WithContext(ctx).Warn("dependency check failed", "dependency", c.Name, "error", err)
			componentStatus = healthpb.HealthCheckResponse_NOT_SERVING
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(c.Name, componentStatus)
	}
	s.health.SetServingStatus("", status)
}

func (s *Servers) shutdown() error {
	s.health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Get().Info("servers stopped")
	return nil
}

func healthzHandler(client healthpb.HealthClient) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		resp, err := client.Check(r.Context(), &healthpb.HealthCheckRequest{Service: r.URL.Query().Get("service")})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		body, err := protojson.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write(body)
	}
}
