package service

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the default Prometheus registry.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics server
func NewMetricsServer() *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{server: &http.Server{Handler: mux}}
}

// Serve blocks serving /metrics on l until Shutdown.
func (m *MetricsServer) Serve(l net.Listener) error {
	return m.server.Serve(l)
}

// Shutdown stops the server
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
