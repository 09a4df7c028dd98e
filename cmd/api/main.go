package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"postergen/internal/bootstrap"
	"postergen/internal/http/handlers"
	httpapi "postergen/internal/http/httpapi"
	"postergen/internal/infra"
	"postergen/internal/infra/geoip"
	"postergen/internal/middleware"
)

func main() {
	// Load .env when present
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	backend, err := bootstrap.NewBackend(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create model client")
	}

	stack, err := bootstrap.New(ctx, cfg, backend, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("history_backend", cfg.HistoryBackend).Msg("failed to build pipeline")
	}
	defer stack.Close()

	// Country tagging is optional; without a database requests log no country.
	var lookup middleware.CountryLookup
	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	app := handlers.NewApp(stack.Pipeline, cfg, &logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   lookup,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Bool("offline", cfg.OfflineMode).
			Str("history_backend", cfg.HistoryBackend).
			Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
