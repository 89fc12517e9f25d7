package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultHealthPath is where the health probe is served when no path is
// configured.
const DefaultHealthPath = "/healthz"

// healthTimeout bounds a single health probe.
const healthTimeout = 2 * time.Second

// PrometheusServer implements the Server interface. It serves the metrics
// gathered from one registry and a health endpoint that runs the installed
// HealthCheck.
type PrometheusServer struct {
	server *http.Server
	check  atomic.Pointer[HealthCheck]
}

// NewPrometheusServer creates a server exposing g at metricsPath and the
// health probe at healthPath. A nil gatherer serves the default registry.
func NewPrometheusServer(address, metricsPath, healthPath string, g prometheus.Gatherer) *PrometheusServer {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if healthPath == "" {
		healthPath = DefaultHealthPath
	}

	s := &PrometheusServer{}
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc(healthPath, s.serveHealth)
	s.server = &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetHealthCheck installs the probe run on each health request.
func (s *PrometheusServer) SetHealthCheck(check HealthCheck) {
	if check == nil {
		s.check.Store(nil)
		return
	}
	s.check.Store(&check)
}

func (s *PrometheusServer) serveHealth(w http.ResponseWriter, r *http.Request) {
	check := s.check.Load()
	if check == nil {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := (*check)(ctx); err != nil {
		http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// Start serves until the context is canceled or the listener fails. It
// returns nil when the server is shut down.
func (s *PrometheusServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *PrometheusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
