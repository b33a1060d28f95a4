// Package service runs the engine's sidecar HTTP servers: a healthz endpoint
// and the prometheus metrics endpoint.
package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/crucible-dev/crucible/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer
	log     zerolog.Logger
}

// New creates the sidecar service.
func New(log zerolog.Logger) *Service {
	return &Service{
		Healthz: &HealthzServer{log: log},
		Metrics: &MetricsServer{log: log},
		log:     log.With().Str("component", "service").Logger(),
	}
}

// Start launches the healthz and metrics servers in the background.
func (s *Service) Start(ctx context.Context) {
	go func() {
		addr := HealthzHost + ":" + HealthzPort
		s.log.Info().Str("addr", addr).Msg("starting healthz server")
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("healthz server failed")
			metrics.RecordErrorDetails("healthz_server", err)
		}
	}()

	go func() {
		addr := MetricsHost + ":" + MetricsPort
		s.log.Info().Str("addr", addr).Msg("starting metrics server")
		if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server failed")
			metrics.RecordErrorDetails("metrics_server", err)
		}
	}()
}

// Shutdown stops both servers.
func (s *Service) Shutdown() {
	if err := s.Healthz.Shutdown(); err != nil {
		s.log.Error().Err(err).Msg("healthz server shutdown failed")
	}
	if err := s.Metrics.Shutdown(); err != nil {
		s.log.Error().Err(err).Msg("metrics server shutdown failed")
	}
}

// MetricsServer serves the prometheus scrape endpoint.
type MetricsServer struct {
	ctx    context.Context
	log    zerolog.Logger
	server *http.Server
}

func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.Handler())
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(hdlr),
		Addr:    addr,
	}
	m.server = server
	m.ctx = ctx
	return m.server.ListenAndServe()
}

func (m *MetricsServer) Shutdown() error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(m.ctx)
}
