package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/config"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/metrics"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/server"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/storage"
)

const (
	serviceName    = "formrelay"
	serviceVersion = "1.0.0"
)

func main() {
	// Without -config only the compiled-in defaults are used
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger, closeLog := initLogger(cfg.Logging)
	defer closeLog()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTPAddr()),
		slog.String("relay_address", cfg.RelayAddr()),
		slog.Int("relay_buffer_size", cfg.Relay.BufferSize),
		slog.String("database", cfg.Storage.Database),
		slog.String("collection", cfg.Storage.Collection),
		slog.String("static_root", cfg.Static.Root),
		slog.Bool("metrics_enabled", cfg.Metrics.Enabled),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)

	writer := storage.NewWriter(storage.NewMongoConnector(cfg.Storage), cfg.Storage, logger)
	relay := server.NewRelayServer(cfg.Relay, logger, writer, appMetrics)
	httpServer := server.NewHTTPServer(cfg.HTTP, cfg.Static, server.NewUDPForwarder(cfg.RelayAddr()), logger, appMetrics)

	// Bind before starting anything so a taken port fails the process
	if err := relay.Listen(); err != nil {
		logger.Error("Failed to start relay server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A plain group: one task ending does not cancel the others
	var g errgroup.Group

	g.Go(func() error {
		return runTask(logger, "relay", func() error { return relay.Serve(ctx) })
	})
	g.Go(func() error {
		return runTask(logger, "http", func() error { return httpServer.Serve(ctx) })
	})
	if cfg.Metrics.Enabled {
		metricsServer := server.NewMetricsServer(cfg.MetricsAddr(), registry, logger)
		g.Go(func() error {
			return runTask(logger, "metrics", func() error { return metricsServer.Serve(ctx) })
		})
	}

	logger.Info("Service started successfully, waiting for signals...")

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		err = <-waitErr
	case err = <-waitErr:
		logger.Warn("All tasks ended without a shutdown signal")
	}

	if err != nil {
		logger.Error("Service stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

// runTask runs one long-lived task and logs how it ended
func runTask(logger *slog.Logger, name string, run func() error) error {
	err := run()
	if err != nil {
		logger.Error("Task terminated", slog.String("task", name), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.Info("Task finished", slog.String("task", name))
	return nil
}

// initLogger builds the slog logger described by the logging section.
// The returned func closes the log file when output is a path.
func initLogger(cfg config.LoggingConfig) (*slog.Logger, func()) {
	// Level names were checked by config validation
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	// Source locations only at debug level
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	output, closeOutput := openLogOutput(cfg.Output)

	// Create handler based on format
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler).With(slog.String("service", serviceName)), closeOutput
}

// openLogOutput resolves stdout, stderr or an append-only log file
func openLogOutput(dest string) (io.Writer, func()) {
	switch dest {
	case "", "stdout":
		return os.Stdout, func() {}
	case "stderr":
		return os.Stderr, func() {}
	}

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", dest, err)
		return os.Stdout, func() {}
	}
	return file, func() { _ = file.Close() }
}
