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

	router "parley/internal/adapters/http"
	"parley/internal/adapters/ws"
	"parley/internal/app"
	"parley/internal/auth"
	"parley/internal/config"
	"parley/internal/media"
	"parley/internal/storage"
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
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	files, err := media.NewDiskStore(cfg.UploadDir, "/api/v1/files", cfg.MaxUpload)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	tokens, err := auth.NewManager(cfg.JWTSecret, "parley", cfg.SessionTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token manager")
	}

	registry := app.NewRegistry()
	presence := app.NewPresence()

	gw := ws.NewGateway(ws.Config{
		CookieName:  cfg.CookieName,
		ReadLimit:   cfg.ReadLimit,
		PingPeriod:  cfg.PingPeriod,
		RingTimeout: cfg.RingTime,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateWindow,
	}, tokens, store, store, store, registry, presence)

	api := router.NewAPI(store, files, tokens, gw.Router(), gw.Calls(), cfg.CookieName, cfg.Mode == "release")

	r := router.SetupRouter(ctx, cfg, api, gw)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Parley server started")
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
