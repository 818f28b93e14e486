package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicelink/internal/app"
	"github.com/antoniostano/voicelink/internal/config"
	"github.com/antoniostano/voicelink/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	observability.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	built, err := app.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	log.Info().
		Str("live_provider", built.Providers.Live).
		Str("live_detail", built.Providers.LiveDetail).
		Str("reply_provider", built.Providers.Reply).
		Msg("providers ready")
	if cfg.APIKey == "" {
		log.Warn().Msg("API_KEY is not set; remote calls and replies will fail")
	}

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	built.Calls.StartJanitor(ctx, 5*time.Second)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Fatal().Err(err).Msg("listen error")
		}
	}

	// End calls first so device sockets see a clean call_state before the listener goes.
	if err := built.Cleanup(); err != nil {
		log.Error().Err(err).Msg("cleanup failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}
	log.Info().Msg("shutdown complete")
}
