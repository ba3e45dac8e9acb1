package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jorra-tryon/internal/app"
	"jorra-tryon/internal/config"
	"jorra-tryon/internal/logger"
	"jorra-tryon/internal/router"

	"golang.org/x/time/rate"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.InitLogger()
	log.Info().Str("api", cfg.APIBaseURL).Str("partner", cfg.NHBBaseURL).Msg("Starting try-on companion server")

	client, err := app.New(cfg, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer client.Close()

	startup, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	if session := client.Sessions.Refresh(startup); session != nil {
		log.Info().Str("username", session.Username).Int("try_ons", session.CreditsRemaining).Msg("Restored session")
	}
	cancel()

	handler := router.SetupRouter(router.Services{
		Sessions: client.Sessions,
		Catalog:  client.Catalog,
		TryOn:    client.TryOn,
		Shares:   client.Shares,
		Admin:    client.Admin,
	}, router.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      rate.Limit(cfg.RateLimitRPS),
		RateBurst:      cfg.RateLimitBurst,
	}, log)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// generation responses can take up to the generation timeout
		WriteTimeout: cfg.GenerationTimeout + 10*time.Second,
	}

	go func() {
		log.Info().Msgf("Listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
