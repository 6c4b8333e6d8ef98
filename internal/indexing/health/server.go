// Package health exposes the agent's liveness surface: an HTTP listener with
// /health and /metrics, and an optional gRPC health service for probe-based
// orchestrators.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server provides HTTP and gRPC endpoints for health monitoring.
type Server struct {
	agent      string
	instanceID string
	chainCount int

	server     *http.Server
	grpcPort   int
	grpcServer *grpc.Server
	health     *grpchealth.Server
}

// NewServer creates a health server. grpcPort of 0 disables the gRPC listener.
func NewServer(agent, instanceID string, chainCount, port, grpcPort int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		agent:      agent,
		instanceID: instanceID,
		chainCount: chainCount,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		grpcPort: grpcPort,
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	if grpcPort > 0 {
		s.grpcServer = grpc.NewServer()
		s.health = grpchealth.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.health)
	}

	return s
}

// Start serves until Stop is called. It blocks on the HTTP listener; the gRPC
// listener, when enabled, runs alongside it.
func (s *Server) Start() error {
	if s.grpcServer != nil {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
		if err != nil {
			return fmt.Errorf("grpc health listen: %w", err)
		}
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		go func() {
			if err := s.grpcServer.Serve(lis); err != nil {
				slog.Error("grpc health server failed", "error", err)
			}
		}()
	}

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts both listeners down.
func (s *Server) Stop(ctx context.Context) error {
	if s.grpcServer != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		s.grpcServer.GracefulStop()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":   "ok",
		"agent":    s.agent,
		"instance": s.instanceID,
		"chains":   s.chainCount,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
