package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/session-gateway/internal/auth"
	"github.com/lexiqai/session-gateway/internal/config"
	"github.com/lexiqai/session-gateway/internal/events"
	"github.com/lexiqai/session-gateway/internal/export"
	"github.com/lexiqai/session-gateway/internal/gateway"
	"github.com/lexiqai/session-gateway/internal/notify"
	"github.com/lexiqai/session-gateway/internal/observability"
	"github.com/lexiqai/session-gateway/internal/records"
	"github.com/lexiqai/session-gateway/internal/stt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("stt_provider", cfg.STTProvider).
		Str("records_backend", cfg.RecordsBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Session Gateway Service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory, err := stt.NewFactory(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create STT factory")
	}

	store, err := records.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open records store")
	}
	defer store.Close()

	var authProvider auth.Provider
	if cfg.AuthRequired {
		if sb, ok := store.(*records.SupabaseStore); ok {
			authProvider = auth.NewSupabaseProviderWithClient(sb.Client())
		} else {
			provider, err := auth.NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseKey)
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to create auth provider")
			}
			authProvider = provider
		}
	}

	publisher := events.New(events.ConfigFrom(cfg))
	defer publisher.Close()

	exporter := export.NewExporter(cfg.ExportDir,
		export.WithNotifier(notify.NewLogNotifier(observability.WithComponent("export"))))

	// Readiness checks are built here to keep observability free of domain imports
	checks := map[string]observability.HealthCheckFunc{
		"records": func(ctx context.Context) (bool, error) {
			if err := store.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"stt": func(ctx context.Context) (bool, error) {
			// constructing a client validates config without opening an upstream stream
			client, err := factory(ctx)
			if err != nil {
				return false, err
			}
			client.Close()
			return true, nil
		},
	}

	router := gateway.NewRouter(gateway.Dependencies{
		Config:   cfg,
		STT:      factory,
		Auth:     authProvider,
		Records:  store,
		Exporter: exporter,
		Events:   publisher,
		Checks:   checks,
	})
	if cfg.MetricsEnabled {
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// WriteTimeout stays zero: transcription sockets are long-lived
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/transcribe", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// gRPC health service
	grpcHealth := observability.NewGRPCHealth()
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal().Err(err).Str("grpc_port", cfg.GRPCPort).Msg("Failed to listen for gRPC")
	}
	go func() {
		logger.Info().Str("grpc_port", cfg.GRPCPort).Msg("gRPC health service listening")
		if err := grpcHealth.Server.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC server stopped")
		}
	}()
	go grpcHealth.Watch(ctx, checks, 30*time.Second)

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	grpcHealth.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
