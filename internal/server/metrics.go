package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes Prometheus metrics on a listener of its own,
// since every GET path on the front-end belongs to the static site.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewMetricsServer creates a /metrics endpoint for gatherer
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger.With(slog.String("component", "metrics")),
	}
}

// Handler returns the metrics handler
func (m *MetricsServer) Handler() http.Handler {
	return m.server.Handler
}

// Serve listens until ctx is cancelled
func (m *MetricsServer) Serve(ctx context.Context) error {
	m.logger.Info("Metrics server started", slog.String("address", m.server.Addr))
	defer m.logger.Info("Metrics server stopped")

	return serveHTTP(ctx, m.server, m.logger)
}
