package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the configuration for the metrics server.
type Config struct {
	Enabled    bool
	Address    string
	Path       string
	HealthPath string // defaults to DefaultHealthPath
}

// NoopServer is a no-op implementation of the Server interface.
// It does nothing when started or shut down.
type NoopServer struct{}

// Start is a no-op that returns immediately.
func (n *NoopServer) Start(ctx context.Context) error {
	return nil
}

// Shutdown is a no-op that returns immediately.
func (n *NoopServer) Shutdown(ctx context.Context) error {
	return nil
}

// SetHealthCheck is a no-op.
func (n *NoopServer) SetHealthCheck(HealthCheck) {}

// New creates a Collector and Server based on the provided configuration.
// When cfg.Enabled is false both are no-ops. Otherwise the collector is
// registered with reg, or the default registerer when reg is nil.
func New(cfg Config, reg prometheus.Registerer) (Collector, Server) {
	if !cfg.Enabled {
		return &NoopCollector{}, &NoopServer{}
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	return NewPrometheusCollector(reg), NewPrometheusServer(cfg.Address, cfg.Path, cfg.HealthPath, gatherer)
}
