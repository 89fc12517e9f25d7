package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/infodancer/mailroute/internal/config"
	"github.com/infodancer/mailroute/internal/logging"
	"github.com/infodancer/mailroute/internal/metrics"
	"github.com/infodancer/mailroute/internal/smtp"
)

func runServe() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	tlsConfig, err := smtp.LoadTLSConfig(cfg.TLS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading TLS configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	collector, metricsServer := metrics.New(metrics.Config{
		Enabled:    cfg.Metrics.Enabled,
		Address:    cfg.Metrics.Address,
		Path:       cfg.Metrics.Path,
		HealthPath: cfg.Metrics.HealthPath,
	}, nil)
	go func() {
		if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("metrics server error", "error", err)
		}
	}()

	stack, err := smtp.NewStack(smtp.StackConfig{
		Config:    cfg,
		TLSConfig: tlsConfig,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("error closing stack", "error", err)
		}
	}()

	metricsServer.SetHealthCheck(stack.DB.PingContext)

	logger.Info("starting mailrouted",
		"hostname", cfg.Hostname,
		"listeners", len(cfg.Listeners),
		"store", cfg.Store.Path)

	if err := stack.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("server error", "error", err)
		cancel()
		_ = stack.Close()
		os.Exit(1)
	}
}
