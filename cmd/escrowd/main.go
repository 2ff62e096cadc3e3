package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efreitasn/tradeescrow/internal/auth"
	"github.com/efreitasn/tradeescrow/internal/config"
	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/handler"
	"github.com/efreitasn/tradeescrow/internal/kv"
	"github.com/efreitasn/tradeescrow/internal/metrics"
	"github.com/efreitasn/tradeescrow/internal/service"
	"github.com/efreitasn/tradeescrow/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	mintToken := flag.String("mint-token", "", "Print a bearer token for the given identity and exit")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// A missing .env file is fine; the environment may be set directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to read .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *mintToken != "" {
		tok, err := auth.MintToken(cfg.TokenConfig(), time.Now(), domain.Identity(*mintToken))
		if err != nil {
			slog.Error("failed to mint token", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Println(tok)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger storage.
	backend, err := kv.Open(ctx, cfg.KVOptions())
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.StorageBackend, err)
	}
	ledger := store.New(backend)
	defer ledger.Close()

	settings, err := service.Bootstrap(ctx, ledger, cfg.Settings())
	if err != nil {
		return fmt.Errorf("bootstrapping ledger: %w", err)
	}
	if settings.FeeRateBps != cfg.FeeRateBps || settings.Treasury != domain.Identity(cfg.Treasury) {
		logger.Warn("ledger settings differ from configuration; keeping stored values",
			slog.Uint64("fee_rate_bps", uint64(settings.FeeRateBps)),
			slog.String("treasury", string(settings.Treasury)),
		)
	}

	// Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	escrowMetrics := metrics.NewEscrowMetrics(registry)

	// Services.
	webhookSvc := service.NewWebhookService(store.NewWebhookStore(), ledger, cfg.WebhookTimeout, logger)
	registrySvc := service.NewRegistryService(ledger, nil, nil, logger)
	tradeSvc := service.NewTradeService(service.TradeServiceConfig{
		Store:         ledger,
		VLEIValidator: domain.Identity(cfg.VLEIValidator),
		Notifier:      webhookSvc,
		Metrics:       escrowMetrics,
		Logger:        logger,
	})

	router := handler.NewRouter(
		tradeSvc,
		registrySvc,
		webhookSvc,
		cfg.TokenConfig(),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		logger,
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("storage", cfg.StorageBackend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}
