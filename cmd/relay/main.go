package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/adapters/httpapi"
	"github.com/careline/telecall/internal/adapters/signalws"
	"github.com/careline/telecall/internal/config"
	"github.com/careline/telecall/internal/consult"
	"github.com/careline/telecall/internal/relay"
	"github.com/careline/telecall/internal/turnserver"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	store, err := consult.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open consultation store")
	}
	defer store.Close()

	turnSrv, err := turnserver.Start(cfg.TURN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start TURN relay")
	}
	defer turnSrv.Close()

	svc := relay.NewService(relay.NewRegistry())
	ws := signalws.NewController(svc, cfg)

	r := httpapi.SetupRouter(ctx, cfg, store, ws)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Telecall relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
