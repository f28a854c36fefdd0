package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/creditgate/internal/api"
	"github.com/punchamoorthee/creditgate/internal/config"
	"github.com/punchamoorthee/creditgate/internal/logging"
	"github.com/punchamoorthee/creditgate/internal/payment"
	"github.com/punchamoorthee/creditgate/internal/provider"
	"github.com/punchamoorthee/creditgate/internal/service"
	"github.com/punchamoorthee/creditgate/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("production", "info")
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	ctx := context.Background()
	dbPool, err := store.NewPool(ctx, cfg.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer dbPool.Close()

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, dbPool); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
	}

	generator, err := provider.NewGemini(provider.GeminiOptions{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Timeout: cfg.ProviderTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("provider setup failed")
	}

	var processor payment.Processor
	if cfg.PaymentsEnabled() {
		pp, err := payment.NewPayPal(payment.PayPalOptions{
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			BaseURL:      cfg.PayPalBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("payment setup failed")
		}
		processor = pp
	} else {
		logger.Warn().Msg("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET not set, payments disabled")
	}

	// Initialize Layers
	ledgerStore := store.NewLedgerStore(dbPool)
	gateway := service.NewGateway(ledgerStore, generator, logger)
	accounts := service.NewAccounts(ledgerStore, processor, service.ProPlan{Price: cfg.ProPrice, Currency: cfg.ProCurrency}, logger)
	handler := api.NewHandler(gateway, accounts, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// In-flight generations get time to finish their compensation.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout+15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
