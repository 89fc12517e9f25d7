package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/infodancer/msgstore"

	"github.com/infodancer/mailroute/internal/authres"
	"github.com/infodancer/mailroute/internal/config"
	"github.com/infodancer/mailroute/internal/inbound"
	"github.com/infodancer/mailroute/internal/metrics"
	"github.com/infodancer/mailroute/internal/notify"
	"github.com/infodancer/mailroute/internal/routing"
	"github.com/infodancer/mailroute/internal/store"
)

// Stack owns all components of a running mailrouted instance and manages
// their lifecycle.
type Stack struct {
	Server  *Server
	Handler *inbound.Handler
	DB      *store.DB
	closers []io.Closer
	logger  *slog.Logger
}

// StackConfig groups config needed to build a Stack.
// TLSConfig is caller-supplied (main.go builds it; tests omit it).
type StackConfig struct {
	Config    config.Config
	TLSConfig *tls.Config
	Collector metrics.Collector // nil → NoopCollector
	Logger    *slog.Logger      // nil → slog.Default()
	// LookupTXT overrides DNS for DKIM key lookups; nil uses the system
	// resolver.
	LookupTXT authres.LookupTXTFunc
}

// NewStack creates a Stack from the given configuration, wiring up all components.
func NewStack(cfg StackConfig) (*Stack, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	s := &Stack{logger: logger}

	db, err := store.Open(cfg.Config.Store.Path)
	if err != nil {
		return nil, err
	}
	s.DB = db
	s.closers = append(s.closers, db)
	logger.Info("store opened", "path", cfg.Config.Store.Path)

	// Create archive agent if configured.
	var archive msgstore.DeliveryAgent
	if cfg.Config.Archive.Type != "" {
		storeConfig := msgstore.StoreConfig{
			Type:     cfg.Config.Archive.Type,
			BasePath: cfg.Config.Archive.BasePath,
			Options:  cfg.Config.Archive.Options,
		}
		agent, err := msgstore.Open(storeConfig)
		if err != nil {
			s.Close() //nolint:errcheck
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		if c, ok := any(agent).(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
		archive = agent
		logger.Info("archive enabled", "type", cfg.Config.Archive.Type, "path", cfg.Config.Archive.BasePath)
	}

	dispatcher, err := notify.NewFromConfig(context.Background(), cfg.Config.Notify, collector, logger)
	if err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	s.closers = append(s.closers, dispatcher)
	var notifier inbound.Notifier
	if dispatcher.Len() > 0 {
		notifier = dispatcher
		logger.Info("notifications enabled", "targets", dispatcher.Len())
	}

	var verifier *authres.Verifier
	if cfg.Config.DKIM.Enabled {
		verifier = authres.NewVerifier(cfg.LookupTXT)
		logger.Info("dkim verification enabled")
	}

	var settings routing.SettingsSource
	if len(cfg.Config.Settings) > 0 {
		settings = routing.MapSource(cfg.Config.Settings)
	}

	s.Handler = inbound.NewHandler(inbound.Config{
		Store:     db,
		Settings:  settings,
		Verifier:  verifier,
		Archive:   archive,
		Notifier:  notifier,
		Collector: collector,
		Logger:    logger,
		Hostname:  cfg.Config.Hostname,
	})

	backend := NewBackend(BackendConfig{
		Hostname:      cfg.Config.Hostname,
		Handler:       s.Handler,
		Collector:     collector,
		MaxRecipients: cfg.Config.Limits.MaxRecipients,
		Logger:        logger,
	})

	srv, err := NewServer(ServerConfig{
		Backend:        backend,
		Listeners:      cfg.Config.Listeners,
		Hostname:       cfg.Config.Hostname,
		TLSConfig:      cfg.TLSConfig,
		ReadTimeout:    cfg.Config.Timeouts.ConnectionTimeout(),
		WriteTimeout:   cfg.Config.Timeouts.ConnectionTimeout(),
		MaxMessageSize: cfg.Config.Limits.MaxMessageSize,
		MaxRecipients:  cfg.Config.Limits.MaxRecipients,
		Trace:          logger.Enabled(context.Background(), slog.LevelDebug),
		Logger:         logger,
	})
	if err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}

	s.Server = srv
	return s, nil
}

// Run starts the server and blocks until the context is cancelled.
func (s *Stack) Run(ctx context.Context) error {
	return s.Server.Run(ctx)
}

// Close shuts down all closeable components in reverse registration order.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadTLSConfig builds a server TLS configuration from the certificate and
// key files. It returns nil when no certificate is configured.
func LoadTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   cfg.MinTLSVersion(),
	}, nil
}
